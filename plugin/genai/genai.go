// Package genai talks to Google Gemini through the google.golang.org/genai SDK.
package genai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/chat"
)

// DefaultModel is used when neither the caller nor the profile names a model.
const DefaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string // optional, overrides the Gemini API endpoint
	HTTPClient *http.Client
}

// Client implements chat.Completer for Gemini.
type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, apperr.InvalidInput("Google GenAI API key is not configured")
	}
	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: config.HTTPClient,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}
	model := config.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}, nil
}

// Model returns the configured default model.
func (c *Client) Model() string {
	return c.model
}

// Complete sends the whole conversation and returns the reply text.
func (c *Client) Complete(ctx context.Context, messages []chat.Message, model string) (string, error) {
	if model == "" {
		model = c.model
	}
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, genai.NewContentFromText(m.Content, toRole(m.Role)))
	}
	res, err := c.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", translateError(err)
	}
	return res.Text(), nil
}

// Generate runs a single-turn prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Complete(ctx, []chat.Message{{Role: chat.RoleUser, Content: prompt}}, "")
}

func toRole(role chat.Role) genai.Role {
	if role == chat.RoleUser {
		return genai.RoleUser
	}
	return genai.RoleModel
}

func translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return upstreamError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return upstreamError(*apiErrPtr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return apperr.Network(fmt.Sprintf("Cannot reach Google GenAI: %v", urlErr.Err), err)
	}
	return apperr.Upstream(0, "", "GenAI chat error: "+err.Error())
}

func upstreamError(apiErr genai.APIError) error {
	message := apiErr.Message
	if message == "" {
		message = http.StatusText(apiErr.Code)
	}
	return apperr.Upstream(apiErr.Code, apiErr.Status, message)
}
