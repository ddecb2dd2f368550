package auth

import (
	"net/url"
	"strings"
)

const (
	RouteHome          = "/"
	RouteLogin         = "/login"
	RouteDashboard     = "/dashboard"
	RouteChat          = "/chat"
	RouteAbout         = "/about"
	RouteResetPassword = "/reset-password"
)

// LoginMode selects the form shown on RouteLogin.
type LoginMode string

const (
	ModeSignIn         LoginMode = "sign-in"
	ModeSignUp         LoginMode = "sign-up"
	ModeForgotPassword LoginMode = "forgot-password"
	ModeMagicLink      LoginMode = "magic-link"
)

func (m LoginMode) Valid() bool {
	switch m {
	case ModeSignIn, ModeSignUp, ModeForgotPassword, ModeMagicLink:
		return true
	}
	return false
}

// LoginRoute builds the login route for mode.
func LoginRoute(mode LoginMode) string {
	return RouteLogin + "?" + url.Values{"mode": {string(mode)}}.Encode()
}

var protectedRoutes = map[string]bool{
	RouteDashboard: true,
	RouteChat:      true,
}

// Protected reports whether route requires a signed in user.
func Protected(route string) bool {
	path, _, _ := strings.Cut(route, "?")
	return protectedRoutes[path]
}

// Outcome is what a view does after consulting the guard.
type Outcome int

const (
	Render Outcome = iota
	Loading
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is the guard's answer. To is set only for Redirect.
type Decision struct {
	Outcome Outcome
	To      string
}

// Guard decides how a protected destination is shown for the given state.
// While loading it never navigates, even when nobody is signed in.
func Guard(snapshot Snapshot, destination string) Decision {
	if snapshot.IsLoading {
		return Decision{Outcome: Loading}
	}
	if !snapshot.IsAuthenticated {
		to := RouteLogin
		if destination != "" {
			to += "?" + url.Values{"redirect": {destination}}.Encode()
		}
		return Decision{Outcome: Redirect, To: to}
	}
	return Decision{Outcome: Render}
}

// Resolve applies Guard to protected routes and bounces signed in users off the login
// and password reset views. Public routes render as is.
func Resolve(snapshot Snapshot, route string) Decision {
	path, _, _ := strings.Cut(route, "?")
	switch {
	case Protected(route):
		return Guard(snapshot, path)
	case (path == RouteLogin || path == RouteResetPassword) && !snapshot.IsLoading && snapshot.IsAuthenticated:
		return Decision{Outcome: Redirect, To: RedirectTarget(route)}
	}
	return Decision{Outcome: Render}
}

// RedirectTarget returns the protected destination recorded on a login route,
// the dashboard when there is none.
func RedirectTarget(loginRoute string) string {
	_, rawQuery, _ := strings.Cut(loginRoute, "?")
	query, _ := url.ParseQuery(rawQuery)
	if to := query.Get("redirect"); to != "" && Protected(to) {
		return to
	}
	return RouteDashboard
}
