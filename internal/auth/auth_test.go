package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/plugin/gotrue"
)

type fakeProvider struct {
	session    *gotrue.Session
	sessionErr error
	// onGetSession runs while GetSession is in flight.
	onGetSession func()
	exchanged  []string
	exchangeFn func(code string) (*gotrue.Session, error)
	signOutErr error
	signOuts   int
}

func (p *fakeProvider) GetSession(context.Context) (*gotrue.Session, error) {
	if p.onGetSession != nil {
		p.onGetSession()
	}
	return p.session, p.sessionErr
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (*gotrue.Session, error) {
	p.exchanged = append(p.exchanged, code)
	if p.exchangeFn != nil {
		return p.exchangeFn(code)
	}
	return &gotrue.Session{AccessToken: "a"}, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.signOuts++
	return p.signOutErr
}

type recordingNavigator struct {
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.routes = append(n.routes, route)
}

var created = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func session(user *gotrue.User) *gotrue.Session {
	return &gotrue.Session{AccessToken: "token", User: user}
}

func newTestReconciler(provider *fakeProvider) (*Reconciler, *recordingNavigator) {
	nav := &recordingNavigator{}
	return NewReconciler(NewState(), provider, nav), nav
}

func TestUserFromSession(t *testing.T) {
	assert.Nil(t, UserFromSession(nil))
	assert.Nil(t, UserFromSession(&gotrue.Session{}))

	user := UserFromSession(session(&gotrue.User{ID: "u1", Email: "a@b.com", CreatedAt: created}))
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "a@b.com", user.Email)
	assert.Empty(t, user.Name)
	assert.Empty(t, user.AvatarURL)
	assert.Equal(t, created, user.UpdatedAt)
	assert.Equal(t, "a@b.com", user.DisplayName())

	updated := created.Add(time.Hour)
	user = UserFromSession(session(&gotrue.User{
		ID:           "u1",
		UserMetadata: map[string]any{"name": "Ada", "avatar_url": "https://x/a.png", "age": 3},
		CreatedAt:    created,
		UpdatedAt:    &updated,
	}))
	assert.Equal(t, "Ada", user.Name)
	assert.Equal(t, "https://x/a.png", user.AvatarURL)
	assert.Equal(t, updated, user.UpdatedAt)
	assert.Equal(t, "Ada", user.DisplayName())
}

func TestStateStartsLoading(t *testing.T) {
	snap := NewState().Snapshot()
	assert.True(t, snap.IsLoading)
	assert.False(t, snap.IsAuthenticated)
	assert.Nil(t, snap.User)
}

func TestSignedInNavigatesToDashboard(t *testing.T) {
	r, nav := newTestReconciler(&fakeProvider{})

	r.Handle(gotrue.Event{Kind: gotrue.EventSignedIn, Session: session(&gotrue.User{ID: "u1", Email: "a@b.com", CreatedAt: created})})

	snap := r.State().Snapshot()
	require.True(t, snap.IsAuthenticated)
	assert.Equal(t, &SessionUser{ID: "u1", Email: "a@b.com", CreatedAt: created, UpdatedAt: created}, snap.User)
	assert.Equal(t, []string{RouteDashboard}, nav.routes)
}

func TestSignedOutAlwaysClears(t *testing.T) {
	for _, prior := range []*SessionUser{nil, {ID: "u1"}} {
		r, nav := newTestReconciler(&fakeProvider{})
		r.State().SetUser(prior)

		r.Handle(gotrue.Event{Kind: gotrue.EventSignedOut})

		snap := r.State().Snapshot()
		assert.Nil(t, snap.User)
		assert.False(t, snap.IsAuthenticated)
		assert.Empty(t, nav.routes)
	}
}

func TestTokenRefreshedOverwritesWithoutNavigation(t *testing.T) {
	r, nav := newTestReconciler(&fakeProvider{})
	r.State().SetUser(&SessionUser{ID: "u1", Name: "Old"})

	r.Handle(gotrue.Event{Kind: gotrue.EventTokenRefreshed, Session: session(&gotrue.User{ID: "u1", CreatedAt: created})})

	snap := r.State().Snapshot()
	assert.Empty(t, snap.User.Name)
	assert.Equal(t, created, snap.User.UpdatedAt)
	assert.Empty(t, nav.routes)
}

func TestUserUpdatedWithoutSessionKeepsState(t *testing.T) {
	r, nav := newTestReconciler(&fakeProvider{})
	r.State().SetUser(&SessionUser{ID: "u1"})

	r.Handle(gotrue.Event{Kind: gotrue.EventUserUpdated})

	assert.Equal(t, "u1", r.State().Snapshot().User.ID)
	assert.Empty(t, nav.routes)
}

func TestRunHandlesEventsInOrder(t *testing.T) {
	r, nav := newTestReconciler(&fakeProvider{})
	events := make(chan gotrue.Event, 3)
	events <- gotrue.Event{Kind: gotrue.EventSignedIn, Session: session(&gotrue.User{ID: "u1"})}
	events <- gotrue.Event{Kind: gotrue.EventTokenRefreshed, Session: session(&gotrue.User{ID: "u2"})}
	events <- gotrue.Event{Kind: gotrue.EventSignedOut}
	close(events)

	require.NoError(t, r.Run(context.Background(), events))
	assert.False(t, r.State().Snapshot().IsAuthenticated)
	assert.Equal(t, []string{RouteDashboard}, nav.routes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx, make(chan gotrue.Event)), context.Canceled)
}

func TestBootstrap(t *testing.T) {
	r, _ := newTestReconciler(&fakeProvider{session: session(&gotrue.User{ID: "u1"})})
	r.Bootstrap(context.Background())
	snap := r.State().Snapshot()
	assert.False(t, snap.IsLoading)
	assert.True(t, snap.IsAuthenticated)

	r, _ = newTestReconciler(&fakeProvider{sessionErr: errors.New("boom")})
	r.State().SetUser(&SessionUser{ID: "stale"})
	r.Bootstrap(context.Background())
	snap = r.State().Snapshot()
	assert.False(t, snap.IsLoading)
	assert.False(t, snap.IsAuthenticated)
}

func TestBootstrapKeepsUserFromConcurrentEvent(t *testing.T) {
	provider := &fakeProvider{}
	r, nav := newTestReconciler(provider)
	provider.onGetSession = func() {
		r.Handle(gotrue.Event{Kind: gotrue.EventSignedIn, Session: session(&gotrue.User{ID: "u1", Email: "a@b.com"})})
	}

	r.Bootstrap(context.Background())
	snap := r.State().Snapshot()
	assert.False(t, snap.IsLoading)
	require.True(t, snap.IsAuthenticated)
	assert.Equal(t, "u1", snap.User.ID)
	assert.Equal(t, []string{RouteDashboard}, nav.routes)

	// A sign out during bootstrap is kept too.
	provider.session = session(&gotrue.User{ID: "u1"})
	provider.onGetSession = func() {
		r.Handle(gotrue.Event{Kind: gotrue.EventSignedOut})
	}
	r.Bootstrap(context.Background())
	assert.False(t, r.State().Snapshot().IsAuthenticated)
}

func TestHandleCallbackWithoutParameters(t *testing.T) {
	provider := &fakeProvider{}
	r, nav := newTestReconciler(provider)

	cleaned, err := r.HandleCallback(context.Background(), "http://localhost:5173/dashboard?tab=chat")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173/dashboard?tab=chat", cleaned)
	assert.Empty(t, nav.routes)
	assert.Empty(t, provider.exchanged)
}

func TestHandleCallbackError(t *testing.T) {
	provider := &fakeProvider{}
	r, nav := newTestReconciler(provider)

	cleaned, err := r.HandleCallback(context.Background(), "http://localhost:5173/dashboard#error=access_denied&error_description=Email+link+is+invalid")
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, cleaned)
	assert.Equal(t, []string{"/login?mode=sign-in"}, nav.routes)
	assert.Empty(t, provider.exchanged)
}

func TestHandleCallbackAccessTokenOnlyStrips(t *testing.T) {
	provider := &fakeProvider{}
	r, nav := newTestReconciler(provider)

	cleaned, err := r.HandleCallback(context.Background(), "http://localhost:5173/dashboard#access_token=abc&type=magiclink")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5173/dashboard", cleaned)
	assert.Empty(t, nav.routes)
	assert.Empty(t, provider.exchanged)
	assert.False(t, r.State().Snapshot().IsAuthenticated)
}

func TestHandleCallbackExchangesCode(t *testing.T) {
	provider := &fakeProvider{}
	r, nav := newTestReconciler(provider)

	cleaned, err := r.HandleCallback(context.Background(), "http://127.0.0.1:54321/auth/callback?code=xyz&keep=1")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:54321/auth/callback?keep=1", cleaned)
	assert.Equal(t, []string{"xyz"}, provider.exchanged)
	assert.Empty(t, nav.routes)

	provider.exchangeFn = func(string) (*gotrue.Session, error) {
		return nil, apperr.Authentication("invalid flow state")
	}
	_, err = r.HandleCallback(context.Background(), "http://127.0.0.1:54321/auth/callback?code=bad")
	require.Error(t, err)
	assert.Equal(t, "invalid flow state", apperr.Message(err))
	assert.Equal(t, []string{"/login?mode=sign-in"}, nav.routes)
}

func TestLogout(t *testing.T) {
	provider := &fakeProvider{}
	r, _ := newTestReconciler(provider)
	r.State().SetUser(&SessionUser{ID: "u1"})
	require.NoError(t, r.Logout(context.Background()))
	assert.False(t, r.State().Snapshot().IsAuthenticated)

	provider.signOutErr = apperr.Network("offline", nil)
	r.State().SetUser(&SessionUser{ID: "u1"})
	require.Error(t, r.Logout(context.Background()))
	assert.True(t, r.State().Snapshot().IsAuthenticated)
	assert.Equal(t, 2, provider.signOuts)
}

func TestGuard(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		want     Decision
	}{
		{
			name:     "loading never navigates",
			snapshot: Snapshot{IsLoading: true},
			want:     Decision{Outcome: Loading},
		},
		{
			name:     "signed out redirects with destination",
			snapshot: Snapshot{},
			want:     Decision{Outcome: Redirect, To: "/login?redirect=%2Fdashboard"},
		},
		{
			name:     "signed in renders",
			snapshot: Snapshot{User: &SessionUser{ID: "u1"}, IsAuthenticated: true},
			want:     Decision{Outcome: Render},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Guard(tt.snapshot, RouteDashboard))
		})
	}
}

func TestResolve(t *testing.T) {
	signedIn := Snapshot{User: &SessionUser{ID: "u1"}, IsAuthenticated: true}

	assert.Equal(t, Decision{Outcome: Render}, Resolve(Snapshot{}, RouteAbout))
	assert.Equal(t, Decision{Outcome: Render}, Resolve(Snapshot{}, LoginRoute(ModeMagicLink)))
	assert.Equal(t, Decision{Outcome: Redirect, To: "/login?redirect=%2Fchat"}, Resolve(Snapshot{}, RouteChat))
	assert.Equal(t, Decision{Outcome: Redirect, To: RouteChat}, Resolve(signedIn, "/login?redirect=%2Fchat"))
	assert.Equal(t, Decision{Outcome: Redirect, To: RouteDashboard}, Resolve(signedIn, "/login?redirect=%2Fabout"))
	assert.Equal(t, Decision{Outcome: Render}, Resolve(Snapshot{IsLoading: true}, RouteLogin))
}
