package agno

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/chat"
)

func TestSendMessage(t *testing.T) {
	var got MessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/message", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"Hi!","agent_id":"support","timestamp":"2026-01-02T03:04:05Z"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL+"/", srv.Client()).SendMessage(context.Background(), MessageRequest{
		Message: "hello",
		AgentID: "support",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Message)
	assert.Equal(t, "support", got.AgentID)
	assert.Equal(t, &AgentResponse{Response: "Hi!", AgentID: "support", Timestamp: "2026-01-02T03:04:05Z"}, resp)
}

func TestSendMessageDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":"from message field"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	client.now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

	resp, err := client.SendMessage(context.Background(), MessageRequest{Message: "x", AgentID: "requested"})
	require.NoError(t, err)
	assert.Equal(t, "from message field", resp.Response)
	assert.Equal(t, "requested", resp.AgentID)
	assert.Equal(t, "2026-10-19T12:00:00Z", resp.Timestamp)
}

func TestSendMessageUpstreamErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"message":"agent not found"}`, "agent not found"},
		{"detail", `{"detail":"Not Found"}`, "Not Found"},
		{"empty", ``, "Failed to communicate with Agno agent"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client()).SendMessage(context.Background(), MessageRequest{Message: "x"})
			var appErr *apperr.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperr.KindUpstream, appErr.Kind)
			assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
			assert.Equal(t, tc.want, appErr.Message)
		})
	}
}

func TestSendMessageNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	_, err := NewClient(baseURL, nil).SendMessage(context.Background(), MessageRequest{Message: "x"})
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindNetwork, appErr.Kind)
	assert.Equal(t, 0, appErr.StatusCode)
	assert.Contains(t, appErr.Message, baseURL+"/agents/message")
	assert.Contains(t, appErr.Message, "SAASKIT_AGNO_URL")
	assert.Contains(t, appErr.Message, "CORS")
}

func TestMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).SendMessage(context.Background(), MessageRequest{Message: "x"})
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
}

func TestListAgents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"support","name":"Support"},{"id":"sales","name":"Sales"}]`))
	}))
	defer srv.Close()

	agents, err := NewClient(srv.URL, srv.Client()).ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "sales", agents[1].ID)
}

func TestCompleteSendsLastTurnAndHistory(t *testing.T) {
	var got struct {
		Message string `json:"message"`
		AgentID string `json:"agent_id"`
		Context struct {
			History []chat.Message `json:"history"`
		} `json:"context"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"answer"}`))
	}))
	defer srv.Close()

	text, err := NewClient(srv.URL, srv.Client()).Complete(context.Background(), []chat.Message{
		{Role: chat.RoleUser, Content: "first"},
		{Role: chat.RoleAssistant, Content: "reply"},
		{Role: chat.RoleUser, Content: "second"},
	}, "support")
	require.NoError(t, err)
	assert.Equal(t, "answer", text)
	assert.Equal(t, "second", got.Message)
	assert.Equal(t, "support", got.AgentID)
	assert.Len(t, got.Context.History, 2)
}

func TestCompleteOmitsUnsetAgent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"response":"answer"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client()).Complete(context.Background(), []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "hi", got["message"])
	assert.NotContains(t, got, "agent_id")
}
