// Package provider wires the configured chat upstreams into stream adapters.
package provider

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/pkg/errors"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/chat"
	"github.com/usememos/saaskit/internal/profile"
	"github.com/usememos/saaskit/plugin/agno"
	"github.com/usememos/saaskit/plugin/genai"
	"github.com/usememos/saaskit/plugin/openrouter"
)

const (
	GenAI      = "genai"
	Agno       = "agno"
	OpenRouter = "openrouter"
)

// Generator runs a single-turn prompt, used for titles and history summaries.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Registry holds one adapter per configured upstream.
type Registry struct {
	adapters map[string]*chat.Adapter
	fallback string
	// Generator is nil when no upstream supports single-turn prompts.
	Generator Generator
	// Agno is nil when no agent endpoint is configured.
	Agno *agno.Client
}

// NewRegistry returns an empty registry; Register fills it.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]*chat.Adapter{}}
}

// Register adds an adapter under key. The first registered adapter is the default.
func (r *Registry) Register(key string, adapter *chat.Adapter) {
	if r.fallback == "" {
		r.fallback = key
	}
	r.adapters[key] = adapter
}

// Adapter looks up an adapter by name; an empty name selects the default.
func (r *Registry) Adapter(name string) (*chat.Adapter, error) {
	if name == "" {
		name = r.fallback
	}
	if name == "" {
		return nil, apperr.InvalidInput("no chat provider is configured")
	}
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, apperr.InvalidInput("unknown chat provider: " + name)
	}
	return adapter, nil
}

// Default is the name of the default adapter, "" when none is registered.
func (r *Registry) Default() string {
	return r.fallback
}

// Names lists the registered adapters.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromProfile builds adapters for every upstream the profile configures, in the
// order of profile.Providers.
func FromProfile(ctx context.Context, p *profile.Profile, httpClient *http.Client) (*Registry, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	pause := chat.DefaultPause
	if p.StreamPause > 0 {
		pause = p.StreamPause
	}

	r := NewRegistry()
	for _, name := range p.Providers() {
		switch name {
		case GenAI:
			client, err := genai.NewClient(ctx, genai.Config{
				APIKey:     p.GenAIAPIKey,
				Model:      p.GenAIModel,
				BaseURL:    p.GenAIBaseURL,
				HTTPClient: httpClient,
			})
			if err != nil {
				return nil, errors.Wrap(err, "failed to create genai client")
			}
			r.Register(GenAI, chat.NewAdapter("GenAI", client, chat.WithDefaultModel(client.Model()), chat.WithPause(pause)))
			if r.Generator == nil {
				r.Generator = client
			}
		case Agno:
			client := agno.NewClient(p.AgnoURL, httpClient)
			r.Agno = client
			r.Register(Agno, chat.NewAdapter("Agno", client, chat.WithDefaultModel(p.AgnoAgentID), chat.WithPause(pause)))
		case OpenRouter:
			client, err := openrouter.NewClient(openrouter.Config{
				APIKey:     p.OpenRouterAPIKey,
				Model:      p.OpenRouterModel,
				HTTPClient: httpClient,
			})
			if err != nil {
				return nil, errors.Wrap(err, "failed to create openrouter client")
			}
			r.Register(OpenRouter, chat.NewAdapter("OpenRouter", client, chat.WithPause(pause)))
			if r.Generator == nil {
				r.Generator = client
			}
		}
	}
	slog.Debug("chat providers ready", "providers", r.Names(), "default", r.Default())
	return r, nil
}
