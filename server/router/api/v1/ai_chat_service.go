package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/usememos/saaskit/internal/chat"
	"github.com/usememos/saaskit/internal/provider"
	"github.com/usememos/saaskit/plugin/vectorstore"
	"github.com/usememos/saaskit/store"
)

// historyTokenBudget is the estimated token count above which older turns are
// folded into the session summary.
var historyTokenBudget int32 = 100_000

const (
	// keptTurns is how many of the latest messages survive a compaction as is.
	keptTurns = 10

	// autoTitleTimeout bounds the background title generation.
	autoTitleTimeout = 30 * time.Second

	defaultSearchLimit = 5
	maxSearchLimit     = 20
	snippetLength      = 200
)

type chatRequest struct {
	Content  string `json:"content"`            // user message text
	Provider string `json:"provider,omitempty"` // "genai", "agno" or "openrouter"
	Model    string `json:"model,omitempty"`
	AgentID  string `json:"agentId,omitempty"` // agno only, takes precedence over model
}

type sessionRequest struct {
	Title    string `json:"title"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type sessionResponse struct {
	UID       string `json:"uid"`
	Title     string `json:"title"`
	Provider  string `json:"provider,omitempty"`
	Model     string `json:"model,omitempty"`
	CreatedTs int64  `json:"createdTs"`
	UpdatedTs int64  `json:"updatedTs"`
}

type messageResponse struct {
	ID        int32  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

type searchResponse struct {
	MessageID  string  `json:"messageId"`
	SessionUID string  `json:"sessionUid"`
	Role       string  `json:"role"`
	Snippet    string  `json:"snippet"`
	Score      float32 `json:"score"`
}

func (s *APIV1Service) registerChatRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/ai")
	g.GET("/sessions", s.listChatSessions)
	g.POST("/sessions", s.createChatSession)
	g.PATCH("/sessions/:uid", s.updateChatSession)
	g.DELETE("/sessions/:uid", s.deleteChatSession)
	g.GET("/sessions/:uid/messages", s.listChatMessages)
	g.POST("/sessions/:uid/chat", s.handleChat)
	g.GET("/search", s.searchChatMessages)
	g.GET("/agents", s.listAgents)
}

func convertSession(sess *store.ChatSession) sessionResponse {
	return sessionResponse{
		UID:       sess.UID,
		Title:     sess.Title,
		Provider:  sess.Provider,
		Model:     sess.Model,
		CreatedTs: sess.CreatedTs,
		UpdatedTs: sess.UpdatedTs,
	}
}

func (s *APIV1Service) listChatSessions(c *echo.Context) error {
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	sessions, err := s.Store.ListChatSessions(c.Request().Context(), &store.FindChatSession{
		CreatorID: &user.UserID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, convertSession(sess))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *APIV1Service) createChatSession(c *echo.Context) error {
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		req = sessionRequest{}
	}
	if req.Provider != "" {
		if _, err := s.Providers.Adapter(req.Provider); err != nil {
			return toHTTPError(err)
		}
	}
	sess, err := s.Store.CreateChatSession(c.Request().Context(), &store.ChatSession{
		UID:       shortuuid.New(),
		CreatorID: user.UserID,
		Title:     strings.TrimSpace(req.Title),
		Provider:  req.Provider,
		Model:     req.Model,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, convertSession(sess))
}

// findOwnedSession loads a session of the caller; others' sessions look missing.
func (s *APIV1Service) findOwnedSession(ctx context.Context, uid, userID string) (*store.ChatSession, error) {
	sess, err := s.Store.GetChatSession(ctx, &store.FindChatSession{UID: &uid})
	if err != nil || sess == nil || sess.CreatorID != userID {
		return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func (s *APIV1Service) updateChatSession(c *echo.Context) error {
	uid := c.Param("uid")
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	if _, err := s.findOwnedSession(c.Request().Context(), uid, user.UserID); err != nil {
		return err
	}

	var req sessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	update := &store.UpdateChatSession{UID: uid}
	if title := strings.TrimSpace(req.Title); title != "" {
		update.Title = &title
	}
	if req.Provider != "" {
		if _, err := s.Providers.Adapter(req.Provider); err != nil {
			return toHTTPError(err)
		}
		update.Provider = &req.Provider
	}
	if req.Model != "" {
		update.Model = &req.Model
	}
	if update.Title == nil && update.Provider == nil && update.Model == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "title, provider or model required")
	}
	updated, err := s.Store.UpdateChatSession(c.Request().Context(), update)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, convertSession(updated))
}

func (s *APIV1Service) deleteChatSession(c *echo.Context) error {
	uid := c.Param("uid")
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.findOwnedSession(ctx, uid, user.UserID); err != nil {
		return err
	}
	if err := s.Store.DeleteChatSession(ctx, uid); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if s.VectorStore != nil {
		if err := s.VectorStore.DeleteSession(ctx, user.UserID, uid); err != nil {
			slog.Warn("failed to drop session from vector index", "session", uid, "err", err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIV1Service) listChatMessages(c *echo.Context) error {
	uid := c.Param("uid")
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	sess, err := s.findOwnedSession(c.Request().Context(), uid, user.UserID)
	if err != nil {
		return err
	}
	msgs, err := s.Store.ListChatMessages(c.Request().Context(), &store.FindChatMessage{
		SessionID: sess.ID,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedTs: m.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// sseWriter writes server-sent events and flushes after each one.
type sseWriter struct {
	rw http.ResponseWriter
}

func newSSEWriter(rw http.ResponseWriter) *sseWriter {
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)
	return &sseWriter{rw: rw}
}

func (w *sseWriter) emit(eventType, payload string) {
	data, _ := json.Marshal(map[string]string{"type": eventType, "content": payload})
	fmt.Fprintf(w.rw, "data: %s\n\n", data)
	if f, ok := w.rw.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *APIV1Service) handleChat(c *echo.Context) error {
	uid := c.Param("uid")
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}

	var req chatRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content required")
	}

	ctx := c.Request().Context()

	sess, err := s.findOwnedSession(ctx, uid, user.UserID)
	if err != nil {
		return err
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = sess.Provider
	}
	if providerName == "" {
		providerName = s.Providers.Default()
	}
	adapter, err := s.Providers.Adapter(providerName)
	if err != nil {
		return toHTTPError(err)
	}
	model := req.Model
	if providerName == provider.Agno && req.AgentID != "" {
		model = req.AgentID
	}
	if model == "" && providerName == sess.Provider {
		model = sess.Model
	}

	history, err := s.Store.ListChatMessages(ctx, &store.FindChatMessage{SessionID: sess.ID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	history, sess, err = s.maybeCompact(ctx, user.UserID, sess, history)
	if err != nil {
		slog.Warn("context compaction failed", "err", err)
	}

	userMsg, err := s.Store.CreateChatMessage(ctx, &store.CreateChatMessage{
		SessionID: sess.ID,
		Role:      string(chat.RoleUser),
		Content:   req.Content,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.indexMessage(ctx, user.UserID, sess.UID, userMsg)

	if len(history) == 0 && sess.Title == store.DefaultChatTitle {
		go s.autoTitleSession(context.WithoutCancel(ctx), sess.UID, req.Content)
	}

	conversation := buildConversation(sess.Summary, history, req.Content)
	sse := newSSEWriter(c.Response())

	stream, err := adapter.Stream(ctx, conversation, model)
	if err != nil {
		slog.Warn("chat completion failed", "session", sess.UID, "provider", providerName, "err", err)
		sse.emit("error", err.Error())
		return nil
	}

	var reply strings.Builder
	for chunk := range stream.All() {
		reply.WriteString(chunk)
		sse.emit("token", chunk)
	}
	if err := stream.Err(); err != nil {
		slog.Info("chat stream abandoned", "session", sess.UID, "emitted", stream.Emitted(), "total", stream.Len())
		return nil
	}

	assistantMsg, err := s.Store.CreateChatMessage(ctx, &store.CreateChatMessage{
		SessionID: sess.ID,
		Role:      string(chat.RoleAssistant),
		Content:   reply.String(),
	})
	if err != nil {
		slog.Warn("failed to persist assistant message", "err", err)
	} else {
		s.indexMessage(ctx, user.UserID, sess.UID, assistantMsg)
	}

	if providerName != sess.Provider || model != sess.Model {
		if _, err := s.Store.UpdateChatSession(ctx, &store.UpdateChatSession{
			UID:      sess.UID,
			Provider: &providerName,
			Model:    &model,
		}); err != nil {
			slog.Warn("failed to record session provider", "err", err)
		}
	}

	sse.emit("done", uid)
	return nil
}

// buildConversation turns the stored history into the upstream conversation.
// A compacted summary is replayed as an opening exchange.
func buildConversation(summary string, history []*store.ChatMessage, content string) []chat.Message {
	messages := make([]chat.Message, 0, len(history)+3)
	if summary != "" {
		messages = append(messages,
			chat.Message{Role: chat.RoleUser, Content: "Summary of our earlier conversation:\n" + summary},
			chat.Message{Role: chat.RoleAssistant, Content: "Understood, I will keep that in mind."},
		)
	}
	for _, m := range history {
		role := chat.Role(m.Role)
		if role == chat.RoleUser || role == chat.RoleAssistant {
			messages = append(messages, chat.Message{Role: role, Content: m.Content})
		}
	}
	return append(messages, chat.Message{Role: chat.RoleUser, Content: content})
}

func (s *APIV1Service) indexMessage(ctx context.Context, userID, sessionUID string, m *store.ChatMessage) {
	if s.VectorStore == nil || m == nil {
		return
	}
	if err := s.VectorStore.IndexMessage(ctx, userID, vectorstore.Document{
		MessageID:  strconv.Itoa(int(m.ID)),
		SessionUID: sessionUID,
		Role:       m.Role,
		Content:    m.Content,
	}); err != nil {
		slog.Warn("failed to index chat message", "message", m.ID, "err", err)
	}
}

// maybeCompact folds everything but the last keptTurns messages into the session
// summary once the history outgrows historyTokenBudget.
func (s *APIV1Service) maybeCompact(ctx context.Context, userID string, sess *store.ChatSession, history []*store.ChatMessage) ([]*store.ChatMessage, *store.ChatSession, error) {
	if s.Providers == nil || s.Providers.Generator == nil || len(history) <= keptTurns {
		return history, sess, nil
	}
	var tokens int32
	for _, m := range history {
		tokens += m.TokenCount
	}
	if tokens <= historyTokenBudget {
		return history, sess, nil
	}

	folded, kept := history[:len(history)-keptTurns], history[len(history)-keptTurns:]
	transcript := make([]string, 0, len(folded))
	for _, m := range folded {
		transcript = append(transcript, fmt.Sprintf("[%s] %s", m.Role, m.Content))
	}
	prompt := "Write a brief summary of the conversation below. Keep names, numbers and every decision that was made.\n\n" +
		strings.Join(transcript, "\n")
	summary, err := s.Providers.Generator.Generate(ctx, prompt)
	if err != nil {
		return history, sess, errors.Wrap(err, "failed to summarize history")
	}
	summary = strings.TrimSpace(summary)
	if sess.Summary != "" {
		summary = sess.Summary + "\n\n" + summary
	}

	updated, err := s.Store.UpdateChatSession(ctx, &store.UpdateChatSession{UID: sess.UID, Summary: &summary})
	if err != nil {
		return history, sess, err
	}
	if err := s.Store.DeleteChatMessages(ctx, sess.ID); err != nil {
		return history, sess, err
	}
	// The kept messages get new IDs below.
	if s.VectorStore != nil {
		if err := s.VectorStore.DeleteSession(ctx, userID, sess.UID); err != nil {
			slog.Warn("failed to drop compacted messages from index", "session", sess.UID, "err", err)
		}
	}
	rewritten := make([]*store.ChatMessage, 0, len(kept))
	for _, m := range kept {
		created, err := s.Store.CreateChatMessage(ctx, &store.CreateChatMessage{
			SessionID:  sess.ID,
			Role:       m.Role,
			Content:    m.Content,
			TokenCount: m.TokenCount,
		})
		if err != nil {
			return kept, updated, err
		}
		s.indexMessage(ctx, userID, sess.UID, created)
		rewritten = append(rewritten, created)
	}

	slog.Info("chat history compacted", "session", sess.UID, "folded", len(folded), "tokens", tokens)
	return rewritten, updated, nil
}

func (s *APIV1Service) autoTitleSession(ctx context.Context, uid, firstMessage string) {
	if s.Providers == nil || s.Providers.Generator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, autoTitleTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Generate a short (5-7 word) title for a chat that starts with:\n\"%s\"\nReturn only the title, no quotes.",
		firstMessage,
	)
	title, err := s.Providers.Generator.Generate(ctx, prompt)
	if err != nil {
		slog.Warn("failed to generate session title", "session", uid, "err", err)
		return
	}
	title = strings.Trim(strings.TrimSpace(title), "\"")
	if title == "" {
		return
	}
	if _, err := s.Store.UpdateChatSession(ctx, &store.UpdateChatSession{UID: uid, Title: &title}); err != nil {
		slog.Warn("failed to store session title", "session", uid, "err", err)
	}
}

func (s *APIV1Service) searchChatMessages(c *echo.Context) error {
	user, err := s.requireAuth(c)
	if err != nil {
		return err
	}
	if s.VectorStore == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "semantic search is not configured")
	}
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit := defaultSearchLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = min(n, maxSearchLimit)
	}

	results, err := s.VectorStore.Search(c.Request().Context(), user.UserID, query, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := make([]searchResponse, 0, len(results))
	for _, r := range results {
		resp = append(resp, searchResponse{
			MessageID:  r.MessageID,
			SessionUID: r.SessionUID,
			Role:       r.Role,
			Snippet:    snippet(r.Content, snippetLength),
			Score:      r.Score,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// snippet cuts content to at most limit runes.
func snippet(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}

func (s *APIV1Service) listAgents(c *echo.Context) error {
	if _, err := s.requireAuth(c); err != nil {
		return err
	}
	if s.Agents == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no agent endpoint is configured")
	}
	agents, err := s.Agents.ListAgents(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, agents)
}
