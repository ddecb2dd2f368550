package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/auth"
	"github.com/usememos/saaskit/internal/chat"
	"github.com/usememos/saaskit/internal/provider"
	"github.com/usememos/saaskit/plugin/gotrue"
)

type fakeIdentity struct {
	mu         sync.Mutex
	events     chan gotrue.Event
	session    *gotrue.Session
	pending    bool
	signInErr  error
	signOutErr error
	calls      []string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{events: make(chan gotrue.Event, 8)}
}

func (f *fakeIdentity) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeIdentity) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeIdentity) Events() <-chan gotrue.Event { return f.events }

func (f *fakeIdentity) GetSession(context.Context) (*gotrue.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeIdentity) ExchangeCode(_ context.Context, code string) (*gotrue.Session, error) {
	f.record("exchange:" + code)
	return nil, errors.New("invalid flow state")
}

func (f *fakeIdentity) SignOut(context.Context) error {
	f.record("sign-out")
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.mu.Lock()
	f.session = nil
	f.mu.Unlock()
	f.events <- gotrue.Event{Kind: gotrue.EventSignedOut}
	return nil
}

func (f *fakeIdentity) SignIn(_ context.Context, credentials gotrue.SignInCredentials) (*gotrue.Session, error) {
	f.record("sign-in:" + credentials.Email)
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	session := testSession(credentials.Email)
	f.mu.Lock()
	f.session = session
	f.mu.Unlock()
	f.events <- gotrue.Event{Kind: gotrue.EventSignedIn, Session: session}
	return session, nil
}

func (f *fakeIdentity) SignUp(_ context.Context, credentials gotrue.SignUpCredentials) (*gotrue.SignUpResult, error) {
	f.record("sign-up:" + credentials.Email + ":" + credentials.Name)
	if f.pending {
		return &gotrue.SignUpResult{User: &gotrue.User{ID: "u1", Email: credentials.Email}}, nil
	}
	session := testSession(credentials.Email)
	f.events <- gotrue.Event{Kind: gotrue.EventSignedIn, Session: session}
	return &gotrue.SignUpResult{User: session.User, Session: session}, nil
}

func (f *fakeIdentity) ResetPassword(_ context.Context, email string) error {
	f.record("reset:" + email)
	return nil
}

func (f *fakeIdentity) ResendConfirmation(_ context.Context, email string) error {
	f.record("resend:" + email)
	return nil
}

func (f *fakeIdentity) SignInWithMagicLink(_ context.Context, email string) error {
	f.record("magic-link:" + email)
	return nil
}

func (f *fakeIdentity) SignInWithOAuth(provider gotrue.OAuthProvider) (string, error) {
	f.record("oauth:" + string(provider))
	return "https://auth.example.com/authorize?provider=" + string(provider), nil
}

func (f *fakeIdentity) UpdatePassword(_ context.Context, password string) (*gotrue.User, error) {
	f.record("update-password")
	f.mu.Lock()
	session := f.session
	f.mu.Unlock()
	if session == nil {
		return nil, apperr.Authentication("Auth session missing!")
	}
	f.events <- gotrue.Event{Kind: gotrue.EventUserUpdated, Session: session}
	return session.User, nil
}

func testSession(email string) *gotrue.Session {
	return &gotrue.Session{
		AccessToken: "token",
		User: &gotrue.User{
			ID:           "u1",
			Email:        email,
			UserMetadata: map[string]any{"name": "Ada"},
			CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

type harness struct {
	identity *fakeIdentity
	router   *Router
	opened   []string
}

func newModel(t *testing.T, identity *fakeIdentity, providers *provider.Registry, route string) (Model, *harness) {
	t.Helper()
	h := &harness{identity: identity, router: NewRouter()}
	reconciler := auth.NewReconciler(auth.NewState(), identity, h.router)
	m := New(context.Background(), Config{
		Reconciler: reconciler,
		Identity:   identity,
		Router:     h.router,
		Providers:  providers,
		OpenBrowser: func(url string) error {
			h.opened = append(h.opened, url)
			return nil
		},
		Route: route,
	})
	m, _ = update(t, m, m.bootstrap()())
	return m, h
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

// run executes cmd and feeds its messages back until no command is left.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	for cmd != nil {
		m, cmd = update(t, m, cmd())
	}
	return m
}

// deliver hands queued provider events and navigations to the model.
func (h *harness) deliver(t *testing.T, m Model) Model {
	t.Helper()
	for {
		select {
		case event := <-h.identity.events:
			m, _ = update(t, m, authEventMsg{event: event})
		case route := <-h.router.routes:
			m, _ = update(t, m, navigateMsg{route: route})
		default:
			return m
		}
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	case "ctrl+o":
		return tea.KeyMsg{Type: tea.KeyCtrlO}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLoadingUntilBootstrapped(t *testing.T) {
	identity := newFakeIdentity()
	router := NewRouter()
	m := New(context.Background(), Config{
		Reconciler: auth.NewReconciler(auth.NewState(), identity, router),
		Identity:   identity,
		Router:     router,
		Route:      auth.RouteDashboard,
	})
	assert.Equal(t, auth.RouteDashboard, m.Route())
	assert.Contains(t, m.View(), "Loading")

	m, _ = update(t, m, m.bootstrap()())
	assert.Equal(t, "/login?redirect=%2Fdashboard", m.Route())
	assert.Contains(t, m.View(), "Password")
}

func TestSignInNavigatesToDashboard(t *testing.T) {
	m, h := newModel(t, newFakeIdentity(), nil, auth.RouteChat)
	require.Equal(t, "/login?redirect=%2Fchat", m.Route())

	m.login.inputs[fieldEmail].SetValue("ada@example.com")
	m.login.inputs[fieldPassword].SetValue("secret-password")
	m, cmd := update(t, m, key("enter"))
	require.True(t, m.busy)
	m = run(t, m, cmd)
	assert.NoError(t, m.err)

	m = h.deliver(t, m)
	assert.Equal(t, auth.RouteDashboard, m.Route())
	view := m.View()
	assert.Contains(t, view, "ada@example.com")
	assert.Contains(t, view, "Ada")
	assert.Equal(t, []string{"sign-in:ada@example.com"}, h.identity.Calls())
}

func TestSignInFailureShowsProviderMessage(t *testing.T) {
	identity := newFakeIdentity()
	identity.signInErr = apperr.Authentication("Invalid login credentials")
	m, _ := newModel(t, identity, nil, auth.LoginRoute(auth.ModeSignIn))

	m.login.inputs[fieldEmail].SetValue("ada@example.com")
	m.login.inputs[fieldPassword].SetValue("wrong-password")
	m, cmd := update(t, m, key("enter"))
	m = run(t, m, cmd)

	assert.Contains(t, m.View(), "Invalid login credentials")
	assert.Equal(t, auth.LoginRoute(auth.ModeSignIn), m.Route())
	assert.False(t, m.reconciler.State().Snapshot().IsAuthenticated)
}

func TestLoginValidation(t *testing.T) {
	identity := newFakeIdentity()
	m, _ := newModel(t, identity, nil, auth.LoginRoute(auth.ModeSignIn))

	m, cmd := update(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.True(t, apperr.IsKind(m.err, apperr.KindInvalidInput))

	m.login.inputs[fieldEmail].SetValue("ada@example.com")
	m.login.inputs[fieldPassword].SetValue("123")
	m, cmd = update(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "at least 6 characters")
	assert.Empty(t, identity.Calls())
}

func TestLoginModes(t *testing.T) {
	identity := newFakeIdentity()
	m, _ := newModel(t, identity, nil, auth.LoginRoute(auth.ModeSignIn))
	assert.Equal(t, []int{fieldEmail, fieldPassword}, m.login.fields())

	m, _ = update(t, m, key("ctrl+n"))
	assert.Equal(t, auth.LoginRoute(auth.ModeSignUp), m.Route())
	assert.Equal(t, []int{fieldName, fieldEmail, fieldPassword}, m.login.fields())

	m, _ = update(t, m, key("ctrl+n"))
	assert.Equal(t, auth.ModeMagicLink, m.login.mode)
	m.login.inputs[fieldEmail].SetValue("ada@example.com")
	m, cmd := update(t, m, key("enter"))
	m = run(t, m, cmd)
	assert.Contains(t, m.notice, "sign in link")

	m, _ = update(t, m, key("ctrl+n"))
	assert.Equal(t, auth.ModeForgotPassword, m.login.mode)
	m.login.inputs[fieldEmail].SetValue("ada@example.com")
	m, cmd = update(t, m, key("enter"))
	m = run(t, m, cmd)
	assert.Contains(t, m.notice, "password reset link")

	assert.Equal(t, []string{"magic-link:ada@example.com", "reset:ada@example.com"}, identity.Calls())
	assert.Equal(t, auth.ModeSignIn, nextLoginMode(m.login.mode))
}

func TestSignUpPendingConfirmation(t *testing.T) {
	identity := newFakeIdentity()
	identity.pending = true
	m, _ := newModel(t, identity, nil, auth.LoginRoute(auth.ModeSignUp))

	m.login.inputs[fieldName].SetValue("Ada")
	m.login.inputs[fieldEmail].SetValue("ada@example.com")
	m.login.inputs[fieldPassword].SetValue("secret-password")
	m, cmd := update(t, m, key("enter"))
	m = run(t, m, cmd)
	assert.Equal(t, "ada@example.com", m.login.pendingEmail)
	assert.Contains(t, m.View(), "ctrl+r: resend confirmation")

	m, cmd = update(t, m, key("ctrl+r"))
	m = run(t, m, cmd)
	assert.Contains(t, m.notice, "sent again")
	assert.Equal(t, []string{"sign-up:ada@example.com:Ada", "resend:ada@example.com"}, identity.Calls())
}

func TestOAuthOpensBrowser(t *testing.T) {
	m, h := newModel(t, newFakeIdentity(), nil, auth.LoginRoute(auth.ModeSignIn))
	m, cmd := update(t, m, key("ctrl+o"))
	m = run(t, m, cmd)
	assert.Equal(t, []string{"https://auth.example.com/authorize?provider=google"}, h.opened)
	assert.Contains(t, m.notice, "Continue in your browser")
}

func TestSignedInUserBouncedFromLogin(t *testing.T) {
	identity := newFakeIdentity()
	identity.session = testSession("ada@example.com")
	m, _ := newModel(t, identity, nil, "/login?redirect=%2Fchat")
	assert.Equal(t, auth.RouteChat, m.Route())

	m, _ = update(t, m, navigateMsg{route: auth.RouteResetPassword})
	assert.Equal(t, auth.RouteDashboard, m.Route())
}

func TestCallbackErrorNavigatesToSignIn(t *testing.T) {
	m, h := newModel(t, newFakeIdentity(), nil, auth.RouteHome)

	route, err := m.reconciler.HandleCallback(context.Background(), "http://127.0.0.1:4567/auth/callback?error=access_denied&error_description=denied")
	require.NoError(t, err)
	assert.Equal(t, auth.RouteLogin, route)

	m = h.deliver(t, m)
	assert.Equal(t, auth.LoginRoute(auth.ModeSignIn), m.Route())
	assert.Equal(t, auth.ModeSignIn, m.login.mode)
}

func TestChangePasswordFromDashboard(t *testing.T) {
	identity := newFakeIdentity()
	identity.session = testSession("ada@example.com")
	m, h := newModel(t, identity, nil, auth.RouteDashboard)

	m, _ = update(t, m, key("p"))
	require.True(t, m.changingPassword)
	m.password.SetValue("brand-new-password")
	m, cmd := update(t, m, key("enter"))
	m = run(t, m, cmd)
	assert.Equal(t, "Password updated.", m.notice)

	m = h.deliver(t, m)
	assert.False(t, m.changingPassword)
	assert.Equal(t, auth.RouteDashboard, m.Route())
}

func TestLogout(t *testing.T) {
	identity := newFakeIdentity()
	identity.session = testSession("ada@example.com")
	identity.signOutErr = apperr.Authentication("network down")
	m, h := newModel(t, identity, nil, auth.RouteDashboard)

	m, cmd := update(t, m, key("o"))
	m = run(t, m, cmd)
	assert.Equal(t, auth.RouteDashboard, m.Route())
	assert.Contains(t, m.View(), "network down")
	assert.True(t, m.reconciler.State().Snapshot().IsAuthenticated)

	identity.signOutErr = nil
	m, cmd = update(t, m, key("o"))
	m = run(t, m, cmd)
	m = h.deliver(t, m)
	assert.Equal(t, auth.RouteHome, m.Route())
	assert.False(t, m.reconciler.State().Snapshot().IsAuthenticated)
	assert.Equal(t, []string{"sign-out", "sign-out"}, identity.Calls())
}

func fakeProviders(completer chat.CompleterFunc) *provider.Registry {
	r := provider.NewRegistry()
	r.Register("fake", chat.NewAdapter("Fake", completer, chat.WithPause(0)))
	return r
}

func signedInChat(t *testing.T, providers *provider.Registry) Model {
	t.Helper()
	identity := newFakeIdentity()
	identity.session = testSession("ada@example.com")
	m, _ := newModel(t, identity, providers, auth.RouteChat)
	require.Equal(t, auth.RouteChat, m.Route())
	return m
}

func TestChatStreamsReply(t *testing.T) {
	var calls int
	providers := fakeProviders(func(_ context.Context, messages []chat.Message, _ string) (string, error) {
		calls++
		return "Hello there, how can I help?", nil
	})
	m := signedInChat(t, providers)

	m.chat.input.SetValue("hi")
	m, cmd := update(t, m, key("enter"))
	require.True(t, m.chat.streaming)
	assert.Contains(t, m.View(), "esc: stop reply")
	m = run(t, m, cmd)

	assert.False(t, m.chat.streaming)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "Hello there, how can I help?"},
	}, m.chat.messages)
	assert.Empty(t, m.chat.input.Value())
}

func TestChatUpstreamErrorRestoresInput(t *testing.T) {
	providers := fakeProviders(func(context.Context, []chat.Message, string) (string, error) {
		return "", apperr.Upstream(429, "Too Many Requests", "quota exceeded")
	})
	m := signedInChat(t, providers)

	m.chat.input.SetValue("hi")
	m, cmd := update(t, m, key("enter"))
	m = run(t, m, cmd)

	assert.False(t, m.chat.streaming)
	assert.Empty(t, m.chat.messages)
	assert.Equal(t, "hi", m.chat.input.Value())
	assert.True(t, apperr.IsKind(m.err, apperr.KindUpstream))
}

func TestChatCancelKeepsEmittedChunks(t *testing.T) {
	providers := fakeProviders(func(context.Context, []chat.Message, string) (string, error) {
		return "one two three", nil
	})
	m := signedInChat(t, providers)

	m.chat.input.SetValue("count")
	m, cmd := update(t, m, key("enter"))
	m, cmd = update(t, m, cmd())
	m, cmd = update(t, m, cmd())
	require.Equal(t, "one", m.chat.partial)

	m, _ = update(t, m, key("esc"))
	assert.Equal(t, auth.RouteChat, m.Route())
	m = run(t, m, cmd)

	assert.False(t, m.chat.streaming)
	assert.Equal(t, chat.Message{Role: chat.RoleAssistant, Content: "one"}, m.chat.messages[1])
	assert.Equal(t, "Reply stopped.", m.notice)

	m, _ = update(t, m, key("esc"))
	assert.Equal(t, auth.RouteDashboard, m.Route())
}

func TestChatWithoutProviders(t *testing.T) {
	m := signedInChat(t, provider.NewRegistry())
	assert.Contains(t, m.View(), "No chat provider is configured.")

	m.chat.input.SetValue("hi")
	m, cmd := update(t, m, key("enter"))
	assert.Nil(t, cmd)
	assert.True(t, apperr.IsKind(m.err, apperr.KindInvalidInput))
}
