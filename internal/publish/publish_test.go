package publish

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dappforge/internal/pipeline"
)

func sampleCode() pipeline.GeneratedCode {
	return pipeline.GeneratedCode{
		Contracts: []pipeline.ContractFile{{Name: "Token.sol", Content: "contract Token {}"}},
		Tests:     []pipeline.TestFile{{Name: "Token.test.js", Content: "it('x', async () => {});"}},
		Pages:     []pipeline.PageFile{{Path: "frontend/index.html", Content: "<html></html>"}},
	}
}

func TestPublishCreatesRepoAndPushesFiles(t *testing.T) {
	var created bool
	pushed := map[string]string{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/alice/dapp":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/user/repos":
			created = true
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/repos/alice/dapp/contents/"):
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/repos/alice/dapp/contents/"):
			var payload struct {
				Content string `json:"content"`
				SHA     string `json:"sha"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			decoded, _ := base64.StdEncoding.DecodeString(payload.Content)
			rel := strings.TrimPrefix(r.URL.Path, "/repos/alice/dapp/contents/")
			pushed[rel] = string(decoded)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	p := NewGitPublisher(context.Background(), "token")
	p.apiBase = srv.URL

	result, err := p.Publish(context.Background(), "alice", "dapp", sampleCode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected missing repo to be created")
	}
	if len(result.Files) != 3 {
		t.Errorf("expected 3 files pushed, got %v", result.Files)
	}
	if pushed["contracts/Token.sol"] != "contract Token {}" {
		t.Errorf("contract content lost: %q", pushed["contracts/Token.sol"])
	}
	if _, ok := pushed["frontend/index.html"]; !ok {
		t.Errorf("page not pushed, saw %v", pushed)
	}
	if result.RepoURL != "https://github.com/alice/dapp" {
		t.Errorf("unexpected repo url %q", result.RepoURL)
	}
}

func TestPublishUpdatesExistingFileWithSHA(t *testing.T) {
	var gotSHA string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/alice/dapp":
			w.Write([]byte(`{}`))
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/repos/alice/dapp/contents/"):
			w.Write([]byte(`{"sha": "abc123"}`))
		case r.Method == http.MethodPut:
			var payload struct {
				SHA string `json:"sha"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			gotSHA = payload.SHA
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)

	p := NewGitPublisher(context.Background(), "token")
	p.apiBase = srv.URL

	code := pipeline.GeneratedCode{Contracts: []pipeline.ContractFile{{Name: "A.sol", Content: "contract A {}"}}}
	if _, err := p.Publish(context.Background(), "alice", "dapp", code); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSHA != "abc123" {
		t.Errorf("expected existing blob sha in update, got %q", gotSHA)
	}
}

func TestHostingDeploy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/deploys" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("unexpected auth header %q", auth)
		}
		var req deployRequest
		json.NewDecoder(r.Body).Decode(&req)
		if _, ok := req.Files["index.html"]; !ok {
			t.Errorf("page missing from deploy payload: %v", req.Files)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Site{URL: "https://dapp.example.app", DeployID: "d-1"})
	}))
	t.Cleanup(srv.Close)

	h := NewHostingPublisher(srv.URL, "tok")
	site, err := h.Deploy(context.Background(), "dapp", sampleCode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if site.URL != "https://dapp.example.app" {
		t.Errorf("unexpected site url %q", site.URL)
	}
}

func TestHostingDeployNoPages(t *testing.T) {
	h := NewHostingPublisher("http://localhost:0", "tok")
	code := sampleCode()
	code.Pages = nil
	if _, err := h.Deploy(context.Background(), "dapp", code); err == nil {
		t.Fatal("expected error for project without pages")
	}
}
