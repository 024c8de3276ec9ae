// Package publish - Project Publishing
// Pushes generated projects to GitHub and deploys frontend pages to
// static hosting.
package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"golang.org/x/oauth2"

	"dappforge/internal/logging"
	"dappforge/internal/pipeline"
)

const githubAPIBase = "https://api.github.com"

// GitPublisher pushes generated code to a GitHub repository using the
// contents API, one commit per file.
type GitPublisher struct {
	client  *http.Client
	apiBase string
}

// NewGitPublisher creates a publisher authenticated with an OAuth2
// token (a PAT or an app installation token).
func NewGitPublisher(ctx context.Context, token string) *GitPublisher {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GitPublisher{
		client:  oauth2.NewClient(ctx, src),
		apiBase: githubAPIBase,
	}
}

// PublishResult describes a completed push.
type PublishResult struct {
	RepoURL string   `json:"repo_url"`
	Files   []string `json:"files"`
}

// Publish creates the repository if needed and uploads every generated
// file. Existing files are updated in place.
func (p *GitPublisher) Publish(ctx context.Context, owner, repo string, code pipeline.GeneratedCode) (*PublishResult, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}

	if err := p.ensureRepo(ctx, owner, repo); err != nil {
		return nil, err
	}

	result := &PublishResult{RepoURL: fmt.Sprintf("https://github.com/%s/%s", owner, repo)}
	for filePath, content := range projectFiles(code) {
		if err := p.putFile(ctx, owner, repo, filePath, content); err != nil {
			return nil, fmt.Errorf("push %s: %w", filePath, err)
		}
		result.Files = append(result.Files, filePath)
	}

	logging.S().Infow("project published", "repo", result.RepoURL, "files", len(result.Files))
	return result, nil
}

// projectFiles lays the generated code out as a repository tree.
func projectFiles(code pipeline.GeneratedCode) map[string]string {
	files := make(map[string]string)
	for _, c := range code.Contracts {
		files[path.Join("contracts", c.Name)] = c.Content
	}
	for _, t := range code.Tests {
		files[path.Join("test", t.Name)] = t.Content
	}
	for _, pg := range code.Pages {
		rel := pg.Path
		if !strings.HasPrefix(rel, "frontend/") {
			rel = path.Join("frontend", path.Base(rel))
		}
		files[rel] = pg.Content
	}
	return files
}

func (p *GitPublisher) ensureRepo(ctx context.Context, owner, repo string) error {
	status, _, err := p.do(ctx, http.MethodGet, fmt.Sprintf("%s/repos/%s/%s", p.apiBase, owner, repo), nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("github repo lookup failed with status %d", status)
	}

	payload := map[string]interface{}{"name": repo, "private": true, "auto_init": false}
	status, body, err := p.do(ctx, http.MethodPost, p.apiBase+"/user/repos", payload)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("github repo create failed with status %d: %s", status, truncate(body))
	}
	return nil
}

// putFile creates or updates one file via the contents API.
func (p *GitPublisher) putFile(ctx context.Context, owner, repo, filePath, content string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", p.apiBase, owner, repo, filePath)

	payload := map[string]interface{}{
		"message": fmt.Sprintf("Add %s", filePath),
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
	}

	// An existing file needs its blob SHA to be updated.
	if sha := p.existingSHA(ctx, url); sha != "" {
		payload["message"] = fmt.Sprintf("Update %s", filePath)
		payload["sha"] = sha
	}

	status, body, err := p.do(ctx, http.MethodPut, url, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("github returned status %d: %s", status, truncate(body))
	}
	return nil
}

func (p *GitPublisher) existingSHA(ctx context.Context, url string) string {
	status, body, err := p.do(ctx, http.MethodGet, url, nil)
	if err != nil || status != http.StatusOK {
		return ""
	}
	var meta struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return ""
	}
	return meta.SHA
}

func (p *GitPublisher) do(ctx context.Context, method, url string, payload interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func truncate(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
