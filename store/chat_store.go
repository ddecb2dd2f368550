package store

import "context"

// CreateChatSession creates a new chat session.
func (s *Store) CreateChatSession(ctx context.Context, create *ChatSession) (*ChatSession, error) {
	if create.Title == "" {
		create.Title = DefaultChatTitle
	}
	return s.driver.CreateChatSession(ctx, create)
}

// ListChatSessions lists chat sessions matching the given filter, most recently updated first.
func (s *Store) ListChatSessions(ctx context.Context, find *FindChatSession) ([]*ChatSession, error) {
	return s.driver.ListChatSessions(ctx, find)
}

// GetChatSession returns the first session matching the given filter, nil when there is none.
func (s *Store) GetChatSession(ctx context.Context, find *FindChatSession) (*ChatSession, error) {
	list, err := s.driver.ListChatSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateChatSession updates a session's mutable fields and bumps its updated time.
func (s *Store) UpdateChatSession(ctx context.Context, update *UpdateChatSession) (*ChatSession, error) {
	return s.driver.UpdateChatSession(ctx, update)
}

// DeleteChatSession deletes a session and all its messages.
func (s *Store) DeleteChatSession(ctx context.Context, uid string) error {
	return s.driver.DeleteChatSession(ctx, uid)
}

// CreateChatMessage persists a new message to a session.
func (s *Store) CreateChatMessage(ctx context.Context, create *CreateChatMessage) (*ChatMessage, error) {
	if create.TokenCount == 0 {
		create.TokenCount = EstimateTokens(create.Content)
	}
	return s.driver.CreateChatMessage(ctx, create)
}

// ListChatMessages returns all messages for a given session, ordered oldest first.
func (s *Store) ListChatMessages(ctx context.Context, find *FindChatMessage) ([]*ChatMessage, error) {
	return s.driver.ListChatMessages(ctx, find)
}

// DeleteChatMessages deletes all messages for the given session (used during compaction).
func (s *Store) DeleteChatMessages(ctx context.Context, sessionID int32) error {
	return s.driver.DeleteChatMessages(ctx, sessionID)
}

// EstimateTokens approximates the token count of text, 4 characters per token.
func EstimateTokens(text string) int32 {
	return int32(len(text) / 4)
}
