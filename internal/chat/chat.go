// Package chat turns a single upstream completion into an incremental chunk stream.
//
// Upstream providers used here answer with the full text in one response, so the
// adapter works in two phases: fetch the whole reply once, then replay it word by
// word with a short pause between words. Consumers see the same incremental
// contract they would get from a token stream.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/usememos/saaskit/internal/apperr"
)

// DefaultPause is the delay between two emitted chunks.
const DefaultPause = 20 * time.Millisecond

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completer performs one non-streaming completion for a whole conversation.
// The last message is always from the user.
type Completer interface {
	Complete(ctx context.Context, messages []Message, model string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, messages []Message, model string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	return f(ctx, messages, model)
}

// Adapter binds a Completer to the chunking and pacing contract.
type Adapter struct {
	name         string
	completer    Completer
	defaultModel string
	pause        time.Duration
}

type Option func(*Adapter)

// WithDefaultModel sets the model used when Stream is called without one.
func WithDefaultModel(model string) Option {
	return func(a *Adapter) {
		a.defaultModel = model
	}
}

// WithPause overrides DefaultPause. Zero disables pacing.
func WithPause(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.pause = d
		}
	}
}

// NewAdapter creates an adapter. name prefixes upstream error messages, e.g. "GenAI".
func NewAdapter(name string, completer Completer, opts ...Option) *Adapter {
	a := &Adapter{
		name:      name,
		completer: completer,
		pause:     DefaultPause,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string {
	return a.name
}

// Stream validates the conversation, calls the upstream once and returns a stream
// over the reply. Upstream failures are returned here, before any chunk exists.
// ctx also governs the emission loop: cancelling it stops the stream.
func (a *Adapter) Stream(ctx context.Context, messages []Message, model string) (*Stream, error) {
	if err := Validate(messages); err != nil {
		return nil, err
	}
	if model == "" {
		model = a.defaultModel
	}

	history := make([]Message, len(messages))
	copy(history, messages)

	start := time.Now()
	text, err := a.completer.Complete(ctx, history, model)
	if err != nil {
		return nil, errors.Wrapf(err, "%s streaming error", a.name)
	}
	slog.Debug("upstream completion finished", "adapter", a.name, "model", model, "chars", len(text), "elapsed", time.Since(start))

	return newStream(ctx, text, a.pause), nil
}

// Validate checks that a conversation can be sent upstream.
func Validate(messages []Message) error {
	if len(messages) == 0 {
		return apperr.InvalidInput("No messages provided")
	}
	for _, m := range messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return apperr.InvalidInput("unknown message role: " + string(m.Role))
		}
	}
	if messages[len(messages)-1].Role != RoleUser {
		return apperr.InvalidInput("Last message must be from user")
	}
	return nil
}

// SplitChunks cuts text at single spaces. Every chunk after the first keeps its
// leading space, so strings.Join(SplitChunks(s), "") == s.
func SplitChunks(text string) []string {
	if text == "" {
		return nil
	}
	words := strings.Split(text, " ")
	chunks := make([]string, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		chunks[i] = w
	}
	return chunks
}
