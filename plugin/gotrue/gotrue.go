// Package gotrue is a client for a Supabase GoTrue auth server built on auth-go.
//
// Besides the REST operations it keeps the current session, persists it through a
// Storage and publishes auth state changes on a channel returned by Events.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	auth "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
	"golang.org/x/oauth2"

	"github.com/usememos/saaskit/internal/apperr"
)

// EventKind is the kind of an auth state change.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventUserUpdated    EventKind = "USER_UPDATED"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is published after every change of the current session.
// Session is nil for EventSignedOut.
type Event struct {
	Kind    EventKind
	Session *Session
}

// OAuthProvider names an external identity provider enabled on the auth server.
type OAuthProvider string

const (
	OAuthGoogle  OAuthProvider = "google"
	OAuthGitHub  OAuthProvider = "github"
	OAuthDiscord OAuthProvider = "discord"
	OAuthApple   OAuthProvider = "apple"
)

func (p OAuthProvider) Valid() bool {
	switch p {
	case OAuthGoogle, OAuthGitHub, OAuthDiscord, OAuthApple:
		return true
	}
	return false
}

type SignUpCredentials struct {
	Email    string
	Password string
	Name     string
}

type SignInCredentials struct {
	Email    string
	Password string
}

// SignUpResult holds a session when the server confirms accounts automatically,
// otherwise only the pending user.
type SignUpResult struct {
	User    *User
	Session *Session
}

type Config struct {
	// URL is the auth server base, e.g. https://<project>.supabase.co/auth/v1.
	URL     string
	AnonKey string
	// SiteURL is where password recovery links land.
	SiteURL string
	// RedirectURL is where magic links and OAuth flows land, <SiteURL>/dashboard by default.
	RedirectURL   string
	HTTPClient    *http.Client
	Storage       Storage
	RefreshMargin time.Duration
}

type Client struct {
	config Config
	events chan Event
	now    func() time.Time

	mu       sync.Mutex
	session  *Session
	loaded   bool
	verifier string
}

const eventBuffer = 32

func NewClient(config Config) *Client {
	config.URL = strings.TrimRight(config.URL, "/")
	config.SiteURL = strings.TrimRight(config.SiteURL, "/")
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Storage == nil {
		config.Storage = NewMemoryStorage()
	}
	if config.RedirectURL == "" {
		config.RedirectURL = config.SiteURL + "/dashboard"
	}
	if config.RefreshMargin == 0 {
		config.RefreshMargin = time.Minute
	}
	return &Client{
		config: config,
		events: make(chan Event, eventBuffer),
		now:    time.Now,
	}
}

// Events delivers auth state changes in the order they happened.
func (c *Client) Events() <-chan Event {
	return c.events
}

// SignUp registers a user with an optional display name.
func (c *Client) SignUp(ctx context.Context, credentials SignUpCredentials) (*SignUpResult, error) {
	req := types.SignupRequest{
		Email:    credentials.Email,
		Password: credentials.Password,
	}
	if credentials.Name != "" {
		req.Data = map[string]any{"name": credentials.Name}
	}
	resp, err := c.api(ctx, "").Signup(req)
	if err != nil {
		return nil, c.translate(ctx, err)
	}

	// With autoconfirm the response is a session, otherwise the pending user.
	session := &Session{}
	if err := convert(resp, session); err == nil && session.AccessToken != "" {
		c.prepare(session)
		c.install(session, EventSignedIn)
		return &SignUpResult{User: session.User, Session: session}, nil
	}
	user := &User{}
	if err := convert(resp, user); err != nil {
		return nil, apperr.Authentication("unexpected sign up response")
	}
	return &SignUpResult{User: user.normalize()}, nil
}

// SignIn signs in with email and password.
func (c *Client) SignIn(ctx context.Context, credentials SignInCredentials) (*Session, error) {
	return c.grant(ctx, types.TokenRequest{
		GrantType: "password",
		Email:     credentials.Email,
		Password:  credentials.Password,
	}, EventSignedIn)
}

// SignOut revokes the session on the server and forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	session, err := c.currentSession()
	if err != nil {
		return err
	}
	if session != nil {
		err := c.translate(ctx, c.api(ctx, session.AccessToken).Logout())
		// An expired or already revoked token still means we are signed out.
		var appErr *apperr.Error
		if err != nil && !(errors.As(err, &appErr) && (appErr.StatusCode == http.StatusUnauthorized || appErr.StatusCode == http.StatusNotFound)) {
			return err
		}
	}
	c.forget(nil)
	return nil
}

// GetSession returns the current session, refreshing it first when it is about to expire.
// It returns nil without error when nobody is signed in.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	session, err := c.currentSession()
	if err != nil || session == nil {
		return nil, err
	}
	if session.RefreshToken != "" && session.ExpiresWithin(c.now(), c.config.RefreshMargin) {
		return c.RefreshSession(ctx)
	}
	return session, nil
}

// GetUser asks the server for the user behind the current session.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	session, err := c.GetSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	resp, err := c.api(ctx, session.AccessToken).GetUser()
	if err != nil {
		return nil, c.translate(ctx, err)
	}
	user := &User{}
	if err := convert(resp, user); err != nil {
		return nil, apperr.Authentication("malformed auth server response")
	}
	return user.normalize(), nil
}

// ResetPassword sends a recovery email that lands on <site>/reset-password.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	query := url.Values{"redirect_to": {c.config.SiteURL + "/reset-password"}}
	return c.do(ctx, "/recover", query, map[string]any{"email": email})
}

// UpdatePassword changes the password of the signed in user.
func (c *Client) UpdatePassword(ctx context.Context, password string) (*User, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.Authentication("Auth session missing!")
	}
	resp, err := c.api(ctx, session.AccessToken).UpdateUser(types.UpdateUserRequest{Password: &password})
	if err != nil {
		return nil, c.translate(ctx, err)
	}
	user := &User{}
	if err := convert(resp, user); err != nil {
		return nil, apperr.Authentication("malformed auth server response")
	}
	updated := *session
	updated.User = user.normalize()
	c.install(&updated, EventUserUpdated)
	return updated.User, nil
}

// ResendConfirmation sends the sign up confirmation email again.
func (c *Client) ResendConfirmation(ctx context.Context, email string) error {
	return c.do(ctx, "/resend", nil, map[string]any{"type": "signup", "email": email})
}

// SignInWithMagicLink emails a one-time link that lands on the redirect URL.
// Like OAuth, the link carries a PKCE code for ExchangeCode.
func (c *Client) SignInWithMagicLink(ctx context.Context, email string) error {
	query := url.Values{"redirect_to": {c.config.RedirectURL}}
	body := map[string]any{
		"email":                 email,
		"create_user":           true,
		"code_challenge":        c.startPKCE(),
		"code_challenge_method": "s256",
	}
	return c.do(ctx, "/otp", query, body)
}

// SignInWithOAuth returns the URL the user must open to sign in with provider.
// The flow uses PKCE; the redirect carries a code for ExchangeCode.
func (c *Client) SignInWithOAuth(provider OAuthProvider) (string, error) {
	if !provider.Valid() {
		return "", apperr.Authentication("Unsupported provider: " + string(provider))
	}
	query := url.Values{
		"provider":              {string(provider)},
		"redirect_to":           {c.config.RedirectURL},
		"code_challenge":        {c.startPKCE()},
		"code_challenge_method": {"s256"},
	}
	return c.config.URL + "/authorize?" + query.Encode(), nil
}

// ExchangeCode trades a PKCE authorization code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	c.mu.Lock()
	verifier := c.verifier
	c.verifier = ""
	c.mu.Unlock()
	if verifier == "" {
		return nil, apperr.Authentication("no OAuth flow in progress")
	}
	return c.grant(ctx, types.TokenRequest{
		GrantType:    "pkce",
		Code:         code,
		CodeVerifier: verifier,
	}, EventSignedIn)
}

// RefreshSession exchanges the refresh token for a new session.
// A refresh token the server rejects ends the session with EventSignedOut.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}
	if session == nil || session.RefreshToken == "" {
		return nil, apperr.Authentication("Auth session missing!")
	}
	refreshed, err := c.grant(ctx, types.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: session.RefreshToken,
	}, EventTokenRefreshed)
	if rejected(err) {
		slog.Warn("refresh token rejected, signing out", "err", err)
		c.forget(session)
	}
	return refreshed, err
}

// AutoRefresh refreshes the session ahead of its expiry until ctx is done.
func (c *Client) AutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			session, err := c.currentSession()
			if err != nil || session == nil || session.RefreshToken == "" {
				continue
			}
			if !session.ExpiresWithin(c.now(), c.config.RefreshMargin) {
				continue
			}
			if _, err := c.RefreshSession(ctx); err != nil {
				slog.Warn("failed to refresh session", "err", err)
			}
		}
	}
}

// startPKCE remembers a fresh verifier and returns its S256 challenge.
func (c *Client) startPKCE() string {
	verifier := oauth2.GenerateVerifier()
	c.mu.Lock()
	c.verifier = verifier
	c.mu.Unlock()
	return oauth2.S256ChallengeFromVerifier(verifier)
}

func (c *Client) grant(ctx context.Context, req types.TokenRequest, kind EventKind) (*Session, error) {
	resp, err := c.api(ctx, "").Token(req)
	if err != nil {
		return nil, c.translate(ctx, err)
	}
	session := &Session{}
	if err := convert(resp, session); err != nil {
		return nil, apperr.Authentication("malformed auth server response")
	}
	if session.AccessToken == "" {
		return nil, apperr.Authentication("auth server returned no access token")
	}
	c.prepare(session)
	c.install(session, kind)
	return session, nil
}

func (c *Client) prepare(session *Session) {
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = c.now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
	session.User = session.User.normalize()
}

func (c *Client) install(session *Session, kind EventKind) {
	c.mu.Lock()
	c.session = session
	c.loaded = true
	c.mu.Unlock()
	if err := c.config.Storage.Save(session); err != nil {
		slog.Warn("failed to persist session", "err", err)
	}
	c.publish(Event{Kind: kind, Session: session})
}

// forget drops the local session and publishes EventSignedOut. With a non-nil
// expected session it does nothing once another session has replaced it.
func (c *Client) forget(expected *Session) {
	c.mu.Lock()
	if expected != nil && c.session != expected {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.loaded = true
	c.mu.Unlock()
	if err := c.config.Storage.Clear(); err != nil {
		slog.Warn("failed to clear stored session", "err", err)
	}
	c.publish(Event{Kind: EventSignedOut})
}

func (c *Client) currentSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		session, err := c.config.Storage.Load()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load session")
		}
		c.session = session
		c.loaded = true
	}
	return c.session, nil
}

func (c *Client) publish(event Event) {
	select {
	case c.events <- event:
	default:
		slog.Warn("auth event dropped, no consumer keeping up", "event", event.Kind)
	}
}

// api returns an auth-go client whose requests carry ctx and, when set, accessToken.
func (c *Client) api(ctx context.Context, accessToken string) auth.Client {
	httpClient := *c.config.HTTPClient
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = contextTransport{ctx: ctx, base: base}
	client := auth.New("", c.config.AnonKey).
		WithCustomAuthURL(c.config.URL).
		WithClient(httpClient)
	if accessToken != "" {
		client = client.WithToken(accessToken)
	}
	return client
}

// contextTransport binds requests made by auth-go, which takes no context, to ctx.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// auth-go reports non-2xx answers as "response status code <n>: <body>".
var statusPattern = regexp.MustCompile(`(?s)response status code (\d+)(?::\s*(.*))?`)

// translate maps an auth-go error onto apperr kinds.
func (c *Client) translate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	match := statusPattern.FindStringSubmatch(err.Error())
	if match == nil {
		return apperr.Network("Cannot connect to the auth server at "+c.config.URL, err)
	}
	status, _ := strconv.Atoi(match[1])
	return statusError(status, []byte(match[2]))
}

// rejected reports whether the server refused the request with a 4xx answer.
func rejected(err error) bool {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindAuthentication {
		return false
	}
	return appErr.StatusCode >= 400 && appErr.StatusCode < 500
}

// convert copies an auth-go response into our session and user types.
func convert(from, to any) error {
	data, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, to)
}

// do posts to endpoints whose parameters auth-go cannot send: redirect_to on
// /recover and /otp, the PKCE challenge on /otp, and /resend.
func (c *Client) do(ctx context.Context, path string, query url.Values, body any) error {
	endpoint := c.config.URL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal auth request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to build auth request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.config.AnonKey)
	if c.config.AnonKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AnonKey)
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Network("Cannot connect to the auth server at "+c.config.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, body)
	}
	return nil
}

func statusError(status int, body []byte) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	message := firstNonEmpty(payload.ErrorDescription, payload.Msg, payload.Message, payload.Error, http.StatusText(status))
	err := apperr.Authentication(message)
	err.StatusCode = status
	err.StatusText = http.StatusText(status)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
