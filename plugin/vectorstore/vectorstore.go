// Package vectorstore indexes chat messages for semantic search, one collection per user.
package vectorstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
)

// SearchResult is a single semantic-search hit.
type SearchResult struct {
	MessageID  string
	SessionUID string
	Role       string
	Content    string
	Score      float32
}

// Document is a chat message to index.
type Document struct {
	MessageID  string
	SessionUID string
	Role       string
	Content    string
}

// Store wraps chromem-go with per-user collections.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	embedFn chromem.EmbeddingFunc
}

// New opens the persistent vector store at dataDir/vectorstore/.
// An empty dataDir keeps the index in memory.
func New(dataDir string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	if dataDir == "" {
		return &Store{db: chromem.NewDB(), embedFn: embedFunc}, nil
	}
	dir := filepath.Join(dataDir, "vectorstore")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create vectorstore dir")
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open vectorstore")
	}
	return &Store{db: db, embedFn: embedFunc}, nil
}

// NewEmbeddingFunc returns an embedding function for any OpenAI compatible endpoint.
func NewEmbeddingFunc(baseURL, apiKey, model string) chromem.EmbeddingFunc {
	return chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil)
}

func collectionName(userID string) string {
	return "user_" + userID + "_messages"
}

// collection returns the user's collection, creating it when create is set.
func (s *Store) collection(userID string, create bool) (*chromem.Collection, error) {
	name := collectionName(userID)
	col := s.db.GetCollection(name, s.embedFn)
	if col != nil || !create {
		return col, nil
	}
	col, err := s.db.CreateCollection(name, map[string]string{"user": userID}, s.embedFn)
	if err != nil {
		slog.Error("failed to create vector collection", "user", userID, "err", err)
		return nil, errors.Wrapf(err, "failed to create collection for user %s", userID)
	}
	return col, nil
}

// IndexMessage indexes (or re-indexes) a chat message for a user.
func (s *Store) IndexMessage(ctx context.Context, userID string, doc Document) error {
	if doc.Content == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection(userID, true)
	if err != nil {
		return err
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:      doc.MessageID,
		Content: doc.Content,
		Metadata: map[string]string{
			"session": doc.SessionUID,
			"role":    doc.Role,
		},
	})
}

// DeleteSession drops every indexed message of a session.
func (s *Store) DeleteSession(ctx context.Context, userID, sessionUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return err
	}
	return col.Delete(ctx, map[string]string{"session": sessionUID}, nil)
}

// Search returns the top-k messages most similar to query.
func (s *Store) Search(ctx context.Context, userID, query string, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return nil, err
	}
	count := col.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query vectorstore")
	}
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			MessageID:  r.ID,
			SessionUID: r.Metadata["session"],
			Role:       r.Metadata["role"],
			Content:    r.Content,
			Score:      r.Similarity,
		})
	}
	return out, nil
}
