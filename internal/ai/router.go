// Package ai - Provider Router
// Routes generation requests to a preferred LLM provider with fallback.
// Each request is a single attempt per provider; retry policy lives in
// the build pipeline, not here.
package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dappforge/internal/logging"
)

// Router holds the configured provider clients and picks one per request.
type Router struct {
	clients  map[Provider]Client
	order    []Provider
	mu       sync.RWMutex
	healthy  map[Provider]bool
}

// NewRouter creates a router from the configured API keys. Providers
// with empty keys are skipped; preferred names the first choice.
func NewRouter(anthropicKey, openAIKey string, preferred Provider) *Router {
	clients := make(map[Provider]Client)
	if anthropicKey != "" {
		clients[ProviderClaude] = NewClaudeClient(anthropicKey)
	}
	if openAIKey != "" {
		clients[ProviderOpenAI] = NewOpenAIClient(openAIKey)
	}

	order := []Provider{ProviderClaude, ProviderOpenAI}
	if preferred == ProviderOpenAI {
		order = []Provider{ProviderOpenAI, ProviderClaude}
	}

	healthy := make(map[Provider]bool)
	for p := range clients {
		healthy[p] = true
	}

	return &Router{
		clients: clients,
		order:   order,
		healthy: healthy,
	}
}

// Configured reports whether any provider client is available.
func (r *Router) Configured() bool {
	return len(r.clients) > 0
}

// Generate issues one generation request, falling back across providers
// in preference order. One attempt per provider, no retry.
func (r *Router) Generate(ctx context.Context, system, prompt string) (string, error) {
	req := &Request{
		ID:     uuid.New().String(),
		System: system,
		Prompt: prompt,
	}

	var lastErr error
	for _, provider := range r.order {
		client, ok := r.clients[provider]
		if !ok {
			continue
		}
		resp, err := client.Generate(ctx, req)
		if err != nil {
			logging.L().Warn("provider generation failed",
				zap.String("provider", string(provider)),
				zap.Error(err))
			r.setHealthy(provider, false)
			lastErr = err
			continue
		}
		if resp.Content == "" {
			lastErr = fmt.Errorf("provider %s returned empty response", provider)
			continue
		}
		r.setHealthy(provider, true)
		return resp.Content, nil
	}

	if lastErr == nil {
		return "", fmt.Errorf("no AI provider configured")
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}

// GenerateWith issues a request with explicit model and token settings.
func (r *Router) GenerateWith(ctx context.Context, req *Request) (*Response, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	var lastErr error
	for _, provider := range r.order {
		client, ok := r.clients[provider]
		if !ok {
			continue
		}
		resp, err := client.Generate(ctx, req)
		if err != nil {
			r.setHealthy(provider, false)
			lastErr = err
			continue
		}
		r.setHealthy(provider, true)
		return resp, nil
	}

	if lastErr == nil {
		return nil, fmt.Errorf("no AI provider configured")
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// Health pings every configured provider and returns per-provider state.
func (r *Router) Health(ctx context.Context) map[Provider]bool {
	out := make(map[Provider]bool, len(r.clients))
	for provider, client := range r.clients {
		err := client.Health(ctx)
		r.setHealthy(provider, err == nil)
		out[provider] = err == nil
	}
	return out
}

// Providers returns the configured providers in preference order.
func (r *Router) Providers() []Provider {
	out := make([]Provider, 0, len(r.clients))
	for _, p := range r.order {
		if _, ok := r.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Router) setHealthy(p Provider, ok bool) {
	r.mu.Lock()
	r.healthy[p] = ok
	r.mu.Unlock()
}
