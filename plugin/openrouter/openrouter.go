// Package openrouter completes conversations against an OpenAI-compatible endpoint
// (OpenRouter by default) through langchaingo.
package openrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/chat"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"
)

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	llm   *openai.LLM
	model string
}

func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, apperr.InvalidInput("OpenRouter API key is not configured")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	opts := []openai.Option{
		openai.WithToken(config.APIKey),
		openai.WithBaseURL(config.BaseURL),
		openai.WithModel(config.Model),
	}
	if config.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(config.HTTPClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create openrouter client")
	}
	return &Client{llm: llm, model: config.Model}, nil
}

// Complete implements chat.Completer.
func (c *Client) Complete(ctx context.Context, messages []chat.Message, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == chat.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}
	resp, err := c.llm.GenerateContent(ctx, content, llms.WithModel(model))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return "", apperr.Network(fmt.Sprintf("Cannot reach the completion endpoint: %v", urlErr.Err), err)
		}
		return "", apperr.Upstream(0, "", err.Error())
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Upstream(http.StatusOK, "OK", "empty response from LLM")
	}
	return resp.Choices[0].Content, nil
}

// Generate runs a single-turn prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Complete(ctx, []chat.Message{{Role: chat.RoleUser, Content: prompt}}, "")
}
