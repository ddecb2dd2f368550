// Package agno is a client for an Agno AgentOS backend.
package agno

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/chat"
)

// DefaultBaseURL is where a local AgentOS listens.
const DefaultBaseURL = "http://localhost:8000"

// MessageRequest is the body of POST /agents/message.
type MessageRequest struct {
	Message string         `json:"message"`
	AgentID string         `json:"agent_id,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// AgentResponse is a normalized reply from an agent.
type AgentResponse struct {
	Response  string `json:"response"`
	AgentID   string `json:"agent_id"`
	Timestamp string `json:"timestamp"`
}

// Agent describes one entry of GET /agents.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       any    `json:"model,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendMessage posts a message to an agent.
func (c *Client) SendMessage(ctx context.Context, request MessageRequest) (*AgentResponse, error) {
	url := c.baseURL + "/agents/message"
	body, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal agno request")
	}

	var data struct {
		Response  string `json:"response"`
		Message   string `json:"message"`
		AgentID   string `json:"agent_id"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.do(ctx, http.MethodPost, url, body, "Failed to communicate with Agno agent", &data); err != nil {
		return nil, err
	}

	resp := &AgentResponse{
		Response:  data.Response,
		AgentID:   data.AgentID,
		Timestamp: data.Timestamp,
	}
	if resp.Response == "" {
		resp.Response = data.Message
	}
	if resp.AgentID == "" {
		resp.AgentID = request.AgentID
	}
	if resp.Timestamp == "" {
		resp.Timestamp = c.now().UTC().Format(time.RFC3339)
	}
	return resp, nil
}

// ListAgents returns the agents registered on the backend.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/agents", nil, "Failed to fetch agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// Complete implements chat.Completer. The last user turn is the agent message;
// earlier turns travel in context.history. model selects the agent id.
func (c *Client) Complete(ctx context.Context, messages []chat.Message, agentID string) (string, error) {
	if len(messages) == 0 {
		return "", apperr.InvalidInput("No messages provided")
	}
	last := messages[len(messages)-1]
	request := MessageRequest{
		Message: last.Content,
		AgentID: agentID,
	}
	if history := messages[:len(messages)-1]; len(history) > 0 {
		request.Context = map[string]any{"history": history}
	}
	resp, err := c.SendMessage(ctx, request)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, fallback string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build agno request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Network(NetworkErrorMessage(url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errorData struct {
			Message string `json:"message"`
			Detail  any    `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errorData)
		message := errorData.Message
		if message == "" {
			message = detailString(errorData.Detail)
		}
		if message == "" {
			message = fallback
		}
		return apperr.Upstream(resp.StatusCode, http.StatusText(resp.StatusCode), message)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Upstream(resp.StatusCode, http.StatusText(resp.StatusCode), "Agno service error: malformed response body")
	}
	return nil
}

// NetworkErrorMessage is the hint shown when the backend cannot be reached.
func NetworkErrorMessage(url string) string {
	return fmt.Sprintf(`Cannot connect to Agno service at %s. Please ensure:
- The Agno backend server is running
- The URL is correct (check SAASKIT_AGNO_URL in your .env file)
- CORS is properly configured if the URL differs from the frontend origin`, url)
}

// FastAPI validation errors put a list in detail; plain errors a string.
func detailString(detail any) string {
	switch v := detail.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
