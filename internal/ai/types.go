package ai

import (
	"context"
	"time"
)

// Provider identifies an LLM provider backend.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
)

// Request represents a single LLM generation request. The system prompt
// carries the task framing; the orchestrator-level retry loops own all
// retry policy, so a request is a single attempt.
type Request struct {
	ID          string  `json:"id"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// Response represents a response from an LLM provider.
type Response struct {
	ID        string        `json:"id"`
	Provider  Provider      `json:"provider"`
	Content   string        `json:"content"`
	Usage     *Usage        `json:"usage,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Usage represents token usage for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client is the interface all LLM providers implement.
type Client interface {
	// Generate performs one generation request. No internal retry.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// GetProvider returns the provider identifier.
	GetProvider() Provider

	// Health checks if the provider is reachable.
	Health(ctx context.Context) error
}

// ProviderUsage tracks cumulative usage statistics for a provider.
type ProviderUsage struct {
	Provider     Provider  `json:"provider"`
	RequestCount int64     `json:"request_count"`
	TotalTokens  int64     `json:"total_tokens"`
	AvgLatency   float64   `json:"avg_latency"`
	ErrorCount   int64     `json:"error_count"`
	LastUsed     time.Time `json:"last_used"`
}
