package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usememos/saaskit/internal/provider"
	teststore "github.com/usememos/saaskit/store/test"
)

func TestNewServer(t *testing.T) {
	ctx := context.Background()
	st := teststore.NewTestingStore(ctx, t)
	profile := st.Profile()

	_, err := NewServer(ctx, profile, st, provider.NewRegistry(), nil)
	require.Error(t, err)

	profile.AuthJWTSecret = "secret"
	s, err := NewServer(ctx, profile, st, provider.NewRegistry(), nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ai/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := teststore.NewTestingStore(ctx, t)
	profile := st.Profile()
	profile.Addr = "127.0.0.1"
	profile.Port = 0
	profile.AuthJWTSecret = "secret"

	s, err := NewServer(ctx, profile, st, provider.NewRegistry(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	cancel()
	assert.NoError(t, <-done)
}
