package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// rateLimitCooldown is how long Generate refuses upstream calls after a
// 429 response.
const rateLimitCooldown = 30 * time.Minute

// Config holds the settings for the OpenAI-compatible completion client.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// OpenAIClient calls an OpenAI-compatible chat completion endpoint.
// Safe for concurrent use.
type OpenAIClient struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger

	mu             sync.Mutex
	rateLimitUntil time.Time

	// injectable for tests
	now func() time.Time
}

// NewOpenAIClient creates a completion client. BaseURL is optional and
// points the SDK at a compatible provider or a test server.
func NewOpenAIClient(cfg Config, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
		now:         time.Now,
	}
}

// Generate returns a completion for the prompt. While the cooldown latch
// is active it returns ErrRateLimited without calling upstream; a fresh
// 429 from upstream arms the latch for 30 minutes.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	if status := c.Status(); status.RateLimited {
		return "", ErrRateLimited
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a helpful AI assistant."),
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(int64(c.maxTokens)),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			c.armRateLimit()
			return "", ErrRateLimited
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}

// Status reports the rate-limit latch. Expiry is evaluated lazily on read.
func (c *OpenAIClient) Status() RateLimitStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.rateLimitUntil.Sub(c.now())
	if remaining <= 0 {
		return RateLimitStatus{}
	}
	return RateLimitStatus{RateLimited: true, Remaining: remaining}
}

func (c *OpenAIClient) armRateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rateLimitUntil = c.now().Add(rateLimitCooldown)
	c.logger.Warn("upstream rate limited, pausing completions",
		slog.Time("until", c.rateLimitUntil))
}
