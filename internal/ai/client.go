// Package ai wraps the Anthropic API for the analysis and fix-generation
// collaborators: model selection, retry with backoff, request pacing, and
// JSON extraction from model responses.
package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Model constants. Analysis and fix generation both need real reasoning, so
// the default is Sonnet; Haiku is kept for cheap auxiliary prompts like
// commit message drafting.
//
// Environment overrides:
// - CODEMEND_MODEL: override the default model
// - CODEMEND_MODEL_SIMPLE: override the simple-task model
const (
	ModelSonnet = "claude-sonnet-4-5-20250929"
	ModelHaiku  = "claude-3-5-haiku-20241022"
)

// GetDefaultModel returns the default model, checking CODEMEND_MODEL first
func GetDefaultModel() string {
	if model := os.Getenv("CODEMEND_MODEL"); model != "" {
		return model
	}
	return ModelSonnet
}

// GetSimpleTaskModel returns the model for simple tasks, checking
// CODEMEND_MODEL_SIMPLE first
func GetSimpleTaskModel() string {
	if model := os.Getenv("CODEMEND_MODEL_SIMPLE"); model != "" {
		return model
	}
	return ModelHaiku
}

// Client is a rate-limited, retrying Anthropic client shared by the LLM
// analyzer and the fix generator.
type Client struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	retry     RetryConfig
	sem       *semaphore.Weighted // caps in-flight API calls
	limiter   *rate.Limiter       // paces request starts
}

// Config holds client configuration
type Config struct {
	// APIKey is the Anthropic API key (falls back to ANTHROPIC_API_KEY)
	APIKey string

	// Model overrides the default model
	Model string

	// MaxTokens bounds each response (default 4096)
	MaxTokens int64

	// Retry configures backoff behavior (defaults if zero)
	Retry RetryConfig

	// RequestsPerMinute paces API calls, 0 = unpaced
	RequestsPerMinute int
}

// NewClient creates an Anthropic-backed client
func NewClient(cfg *Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var sem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		retry:     retry,
		sem:       sem,
		limiter:   limiter,
	}, nil
}

// Model returns the model id the client sends requests with
func (c *Client) Model() string {
	return c.model
}

// Complete sends one user prompt and returns the concatenated text blocks of
// the response. Transient API failures are retried with backoff.
func (c *Client) Complete(ctx context.Context, operation, prompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait for %s: %w", operation, err)
		}
	}

	var response *anthropic.Message
	err := c.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", err
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("%s returned no text content", operation)
	}
	return text, nil
}
