package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"mailtriage/pkg/httputil"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/resilience"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultGroqBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultTimeout     = 30 * time.Second
)

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("llm returned empty response")

// Backend sends a single-turn prompt to a model.
type Backend interface {
	Name() string
	// Complete returns the model text. jsonMode asks for a JSON object.
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// Client is the oracle used by the triage pipeline. Calls are bounded by a
// timeout and guarded by a circuit breaker; there are no retries.
type Client struct {
	backend Backend
	breaker *resilience.Breaker
	timeout time.Duration
}

func NewClient(backend Backend, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg := resilience.DefaultBreakerConfig("llm-" + backend.Name())
	cfg.Timeout = 60 * time.Second
	return &Client{
		backend: backend,
		breaker: resilience.NewBreaker(cfg),
		timeout: timeout,
	}
}

// Complete sends prompt and returns the trimmed-by-caller model text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, false)
}

// CompleteJSON asks the model for a JSON object.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, true)
}

func (c *Client) complete(ctx context.Context, prompt string, jsonMode bool) (text string, err error) {
	start := time.Now()
	defer func() { metrics.Since("llm", start, err) }()

	return resilience.Execute(ctx, c.breaker, func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		text, err := c.backend.Complete(ctx, prompt, jsonMode)
		if err != nil {
			return "", fmt.Errorf("%s: %w", c.backend.Name(), err)
		}
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	})
}

// =============================================================================
// OpenAI-compatible backend (Groq, OpenAI)
// =============================================================================

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // empty means api.openai.com
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

type OpenAIBackend struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	name        string
}

func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	name := "openai"
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
		if cfg.BaseURL == DefaultGroqBaseURL {
			name = "groq"
		}
	}
	clientCfg.HTTPClient = httputil.NewOptimizedClient(httputil.LLMClientConfig(cfg.Timeout))

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}

	// The request field is omitempty, so an exact zero would not be sent and
	// the server default would apply instead.
	temperature := float32(cfg.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return &OpenAIBackend{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		name:        name,
	}
}

func (b *OpenAIBackend) Name() string { return b.name }

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		Temperature: b.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
