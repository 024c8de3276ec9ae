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

// OpenAIClient implements the OpenAI chat completions client
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	usage      *ProviderUsage
	usageMu    sync.RWMutex
}

// OpenAI API request/response structures
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a new OpenAI API client
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1/chat/completions",
		model:   "gpt-4o",
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		usage: &ProviderUsage{
			Provider: ProviderOpenAI,
			LastUsed: time.Now(),
		},
	}
}

// Generate implements the Client interface for OpenAI
func (o *OpenAIClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	model := o.model
	if req.Model != "" {
		model = req.Model
	}

	messages := make([]openAIMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	openAIReq := &openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      false,
	}

	resp, err := o.makeRequest(ctx, openAIReq)
	duration := time.Since(startTime)
	if err != nil {
		o.incrementErrorCount()
		metrics.Get().AIRequestsTotal.WithLabelValues(string(ProviderOpenAI), "error").Inc()
		return nil, err
	}

	if len(resp.Choices) == 0 {
		o.incrementErrorCount()
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	o.updateUsage(resp.Usage.TotalTokens, duration)
	m := metrics.Get()
	m.AIRequestsTotal.WithLabelValues(string(ProviderOpenAI), "ok").Inc()
	m.AIRequestDuration.WithLabelValues(string(ProviderOpenAI)).Observe(duration.Seconds())
	m.AITokensUsed.WithLabelValues(string(ProviderOpenAI), "input").Add(float64(resp.Usage.PromptTokens))
	m.AITokensUsed.WithLabelValues(string(ProviderOpenAI), "output").Add(float64(resp.Usage.CompletionTokens))

	return &Response{
		ID:       req.ID,
		Provider: ProviderOpenAI,
		Content:  resp.Choices[0].Message.Content,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Duration:  duration,
		CreatedAt: time.Now(),
	}, nil
}

// makeRequest sends HTTP request to the OpenAI API
func (o *OpenAIClient) makeRequest(ctx context.Context, req *openAIRequest) (*openAIResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
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
			return nil, fmt.Errorf("RATE_LIMIT: OpenAI API rate limit exceeded")
		case 401:
			return nil, fmt.Errorf("UNAUTHORIZED: Invalid OpenAI API key")
		case 500, 502, 503, 504:
			return nil, fmt.Errorf("SERVICE_ERROR: OpenAI service temporarily unavailable (status %d)", resp.StatusCode)
		default:
			return nil, fmt.Errorf("API_ERROR: OpenAI request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if openAIResp.Error != nil {
		return nil, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}

	return &openAIResp, nil
}

// GetProvider returns the provider identifier
func (o *OpenAIClient) GetProvider() Provider {
	return ProviderOpenAI
}

// Health checks if the OpenAI API is accessible
func (o *OpenAIClient) Health(ctx context.Context) error {
	testReq := &openAIRequest{
		Model:     o.model,
		MaxTokens: 5,
		Messages:  []openAIMessage{{Role: "user", Content: "Hello"}},
	}
	_, err := o.makeRequest(ctx, testReq)
	return err
}

func (o *OpenAIClient) updateUsage(totalTokens int, duration time.Duration) {
	o.usageMu.Lock()
	defer o.usageMu.Unlock()

	o.usage.RequestCount++
	o.usage.TotalTokens += int64(totalTokens)
	o.usage.AvgLatency = (o.usage.AvgLatency*float64(o.usage.RequestCount-1) + duration.Seconds()) / float64(o.usage.RequestCount)
	o.usage.LastUsed = time.Now()
}

func (o *OpenAIClient) incrementErrorCount() {
	o.usageMu.Lock()
	defer o.usageMu.Unlock()
	o.usage.ErrorCount++
}

// GetUsage returns current usage statistics (thread-safe copy)
func (o *OpenAIClient) GetUsage() *ProviderUsage {
	o.usageMu.RLock()
	defer o.usageMu.RUnlock()

	u := *o.usage
	return &u
}
