package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/chat"
	"github.com/usememos/saaskit/internal/profile"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Adapter("")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidInput))

	echo := chat.CompleterFunc(func(_ context.Context, messages []chat.Message, _ string) (string, error) {
		return messages[len(messages)-1].Content, nil
	})
	r.Register("first", chat.NewAdapter("First", echo))
	r.Register("second", chat.NewAdapter("Second", echo))

	adapter, err := r.Adapter("")
	require.NoError(t, err)
	assert.Equal(t, "First", adapter.Name())
	adapter, err = r.Adapter("second")
	require.NoError(t, err)
	assert.Equal(t, "Second", adapter.Name())

	_, err = r.Adapter("third")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidInput))
	assert.Equal(t, []string{"first", "second"}, r.Names())
}

func TestFromProfile(t *testing.T) {
	r, err := FromProfile(context.Background(), &profile.Profile{
		AgnoURL:          "http://localhost:8000",
		AgnoAgentID:      "support",
		OpenRouterAPIKey: "sk-test",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{Agno, OpenRouter}, r.Names())
	assert.Equal(t, Agno, r.Default())
	require.NotNil(t, r.Agno)
	assert.Equal(t, "http://localhost:8000", r.Agno.BaseURL())
	assert.NotNil(t, r.Generator)

	empty, err := FromProfile(context.Background(), &profile.Profile{}, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Names())
	assert.Nil(t, empty.Generator)
}
