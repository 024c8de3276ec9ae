package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"dappforge/internal/metrics"
)

// ClaudeClient implements the Claude/Anthropic API client
type ClaudeClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	usage      *ProviderUsage
	usageMu    sync.RWMutex // Protects usage statistics
}

// Claude API request/response structures
type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float32         `json:"temperature,omitempty"`
	System      string          `json:"system,omitempty"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClaudeClient creates a new Claude API client
func NewClaudeClient(apiKey string) *ClaudeClient {
	return &ClaudeClient{
		apiKey:  apiKey,
		baseURL: "https://api.anthropic.com/v1/messages",
		model:   "claude-sonnet-4-20250514",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		usage: &ProviderUsage{
			Provider: ProviderClaude,
			LastUsed: time.Now(),
		},
	}
}

// Generate implements the Client interface for Claude
func (c *ClaudeClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	claudeReq := &claudeRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []claudeMessage{
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		System:      req.System,
	}

	resp, err := c.makeRequest(ctx, claudeReq)
	duration := time.Since(startTime)
	if err != nil {
		c.incrementErrorCount()
		metrics.Get().AIRequestsTotal.WithLabelValues(string(ProviderClaude), "error").Inc()
		return nil, err
	}

	c.updateUsage(resp.Usage.InputTokens+resp.Usage.OutputTokens, duration)
	m := metrics.Get()
	m.AIRequestsTotal.WithLabelValues(string(ProviderClaude), "ok").Inc()
	m.AIRequestDuration.WithLabelValues(string(ProviderClaude)).Observe(duration.Seconds())
	m.AITokensUsed.WithLabelValues(string(ProviderClaude), "input").Add(float64(resp.Usage.InputTokens))
	m.AITokensUsed.WithLabelValues(string(ProviderClaude), "output").Add(float64(resp.Usage.OutputTokens))

	content := ""
	if len(resp.Content) > 0 && resp.Content[0].Type == "text" {
		content = resp.Content[0].Text
	}

	return &Response{
		ID:       req.ID,
		Provider: ProviderClaude,
		Content:  content,
		Usage: &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Duration:  duration,
		CreatedAt: time.Now(),
	}, nil
}

// makeRequest sends HTTP request to Claude API
func (c *ClaudeClient) makeRequest(ctx context.Context, req *claudeRequest) (*claudeResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case 429:
			return nil, fmt.Errorf("RATE_LIMIT: Claude API rate limit exceeded")
		case 401:
			return nil, fmt.Errorf("UNAUTHORIZED: Invalid Claude API key")
		case 402:
			return nil, fmt.Errorf("QUOTA_EXCEEDED: Claude API quota exhausted")
		case 500, 502, 503, 504, 529:
			return nil, fmt.Errorf("SERVICE_ERROR: Claude service temporarily unavailable (status %d)", resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: Claude request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if claudeResp.Error != nil {
		return nil, fmt.Errorf("Claude API error: %s", claudeResp.Error.Message)
	}

	return &claudeResp, nil
}

// GetProvider returns the provider identifier
func (c *ClaudeClient) GetProvider() Provider {
	return ProviderClaude
}

// Health checks if Claude API is accessible
func (c *ClaudeClient) Health(ctx context.Context) error {
	testReq := &claudeRequest{
		Model:     c.model,
		MaxTokens: 5,
		Messages: []claudeMessage{
			{Role: "user", Content: "Hello"},
		},
	}

	_, err := c.makeRequest(ctx, testReq)
	return err
}

// updateUsage updates internal usage statistics (thread-safe)
func (c *ClaudeClient) updateUsage(totalTokens int, duration time.Duration) {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()

	c.usage.RequestCount++
	c.usage.TotalTokens += int64(totalTokens)
	c.usage.AvgLatency = (c.usage.AvgLatency*float64(c.usage.RequestCount-1) + duration.Seconds()) / float64(c.usage.RequestCount)
	c.usage.LastUsed = time.Now()
}

// incrementErrorCount safely increments the error count
func (c *ClaudeClient) incrementErrorCount() {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	c.usage.ErrorCount++
}

// GetUsage returns current usage statistics (thread-safe copy)
func (c *ClaudeClient) GetUsage() *ProviderUsage {
	c.usageMu.RLock()
	defer c.usageMu.RUnlock()

	u := *c.usage
	return &u
}
