package auth

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/usememos/saaskit/plugin/gotrue"
)

// Provider is the part of the identity provider the Reconciler talks to.
type Provider interface {
	GetSession(ctx context.Context) (*gotrue.Session, error)
	ExchangeCode(ctx context.Context, code string) (*gotrue.Session, error)
	SignOut(ctx context.Context) error
}

// Navigator moves the UI to a route.
type Navigator interface {
	Navigate(route string)
}

type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) {
	f(route)
}

// Reconciler is the sole consumer of provider events and the only writer of State
// besides Logout.
type Reconciler struct {
	state     *State
	provider  Provider
	navigator Navigator
}

func NewReconciler(state *State, provider Provider, navigator Navigator) *Reconciler {
	if navigator == nil {
		navigator = NavigatorFunc(func(string) {})
	}
	return &Reconciler{
		state:     state,
		provider:  provider,
		navigator: navigator,
	}
}

func (r *Reconciler) State() *State {
	return r.state
}

// Handle applies one provider event. It runs to completion before the next event.
func (r *Reconciler) Handle(event gotrue.Event) {
	switch event.Kind {
	case gotrue.EventSignedIn:
		user := UserFromSession(event.Session)
		if user == nil {
			return
		}
		r.state.SetUser(user)
		r.navigator.Navigate(RouteDashboard)
	case gotrue.EventSignedOut:
		r.state.SetUser(nil)
	case gotrue.EventUserUpdated, gotrue.EventTokenRefreshed:
		if user := UserFromSession(event.Session); user != nil {
			r.state.SetUser(user)
		}
	default:
		slog.Debug("ignoring auth event", "event", event.Kind)
	}
}

// Run handles events until the channel closes or ctx is done.
func (r *Reconciler) Run(ctx context.Context, events <-chan gotrue.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			r.Handle(event)
		}
	}
}

// Bootstrap loads the provider's current session into State. A provider error counts as signed out.
// An event handled while the session loads wins over the loaded session.
func (r *Reconciler) Bootstrap(ctx context.Context) {
	since := r.state.begin()
	session, err := r.provider.GetSession(ctx)
	if err != nil {
		slog.Warn("failed to restore auth session", "err", err)
		session = nil
	}
	r.state.settle(UserFromSession(session), since)
}

// HandleCallback inspects an OAuth or magic link redirect and returns the cleaned URL.
// An access token in the fragment is left to the provider; a PKCE code is exchanged,
// and the resulting session arrives as a SIGNED_IN event.
func (r *Reconciler) HandleCallback(ctx context.Context, rawURL string) (string, error) {
	cb, cleaned, err := ParseCallback(rawURL)
	if err != nil {
		return "", err
	}
	if cb.Empty() {
		return cleaned, nil
	}
	switch {
	case cb.Error != "":
		slog.Error("auth callback error", "error", cb.Error, "description", cb.ErrorDescription)
		r.navigator.Navigate(LoginRoute(ModeSignIn))
		return RouteLogin, nil
	case cb.Code != "":
		if _, err := r.provider.ExchangeCode(ctx, cb.Code); err != nil {
			slog.Error("failed to exchange auth code", "err", err)
			r.navigator.Navigate(LoginRoute(ModeSignIn))
			return RouteLogin, errors.Wrap(err, "failed to complete sign in")
		}
	}
	return cleaned, nil
}

// Logout signs out at the provider, then clears State. On failure State is kept.
func (r *Reconciler) Logout(ctx context.Context) error {
	if err := r.provider.SignOut(ctx); err != nil {
		slog.Error("logout error", "err", err)
		return err
	}
	r.state.Logout()
	return nil
}
