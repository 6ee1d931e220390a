// Package llm is the text-generation client. Errors surface as generation
// failures for the router to convert into error events; nothing here panics.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"querybot/internal/config"
)

// TokenFunc receives incremental output when the backend streams tokens.
type TokenFunc func(ctx context.Context, chunk []byte) error

// Generator produces text from a prompt. When stream is non-nil the
// implementation forwards tokens as they arrive; the full text is returned
// either way.
type Generator interface {
	Generate(ctx context.Context, prompt string, stream TokenFunc) (string, error)
}

// Client calls an OpenAI-compatible or Ollama chat model via langchaingo.
type Client struct {
	model   llms.Model
	timeout time.Duration
}

// defaultTimeout bounds a single generation call so a stalled upstream does
// not hold resources indefinitely.
const defaultTimeout = 120 * time.Second

func NewClient(cfg *config.LLMConfig) (*Client, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "ollama":
		model, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		model, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing chat model: %w", err)
	}
	return &Client{model: model, timeout: defaultTimeout}, nil
}

func (c *Client) Generate(ctx context.Context, prompt string, stream TokenFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	opts := []llms.CallOption{}
	if stream != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return stream(ctx, chunk)
		}))
	}

	res, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("generation returned no choices")
	}
	return res.Choices[0].Content, nil
}
