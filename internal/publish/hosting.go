package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"dappforge/internal/pipeline"
)

// HostingPublisher uploads frontend pages to a static hosting service
// in a single deploy request.
type HostingPublisher struct {
	apiURL string
	token  string
	client *http.Client
}

func NewHostingPublisher(apiURL, token string) *HostingPublisher {
	return &HostingPublisher{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Site describes a deployed static site.
type Site struct {
	URL      string `json:"url"`
	DeployID string `json:"deploy_id"`
}

type deployRequest struct {
	Name  string            `json:"name"`
	Files map[string]string `json:"files"`
}

// Deploy uploads all pages as one site. Returns an error when the code
// has no frontend to host.
func (h *HostingPublisher) Deploy(ctx context.Context, name string, code pipeline.GeneratedCode) (*Site, error) {
	if len(code.Pages) == 0 {
		return nil, fmt.Errorf("project has no frontend pages to host")
	}

	files := make(map[string]string, len(code.Pages))
	for _, pg := range code.Pages {
		files[path.Base(pg.Path)] = pg.Content
	}

	payload, err := json.Marshal(deployRequest{Name: name, Files: files})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.apiURL+"/v1/deploys", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hosting deploy failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("hosting service returned status %d: %s", resp.StatusCode, truncate(body))
	}

	var site Site
	if err := json.Unmarshal(body, &site); err != nil {
		return nil, fmt.Errorf("malformed hosting response: %w", err)
	}
	return &site, nil
}
