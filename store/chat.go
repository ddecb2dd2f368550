package store

// DefaultChatTitle is the title of a session until it is auto-titled or renamed.
const DefaultChatTitle = "New Chat"

// ChatSession represents a single conversation thread.
type ChatSession struct {
	ID        int32
	UID       string
	CreatorID string // identity provider user id
	Title     string
	Summary   string // compacted/summarized older history
	Provider  string // chat provider used last, e.g. "genai" or "agno"
	Model     string
	CreatedTs int64
	UpdatedTs int64
}

// ChatMessage is a single message within a session.
type ChatMessage struct {
	ID         int32
	SessionID  int32
	Role       string // "user" | "assistant"
	Content    string
	TokenCount int32
	CreatedTs  int64
}

// FindChatSession filters for ListChatSessions.
type FindChatSession struct {
	ID        *int32
	UID       *string
	CreatorID *string
}

// UpdateChatSession carries fields accepted by UpdateChatSession.
type UpdateChatSession struct {
	UID      string
	Title    *string
	Summary  *string
	Provider *string
	Model    *string
}

// FindChatMessage filters for ListChatMessages.
type FindChatMessage struct {
	SessionID int32
}

// CreateChatMessage is the payload for CreateChatMessage.
type CreateChatMessage struct {
	SessionID  int32
	Role       string
	Content    string
	TokenCount int32
}
