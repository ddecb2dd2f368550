// Package tui is the terminal front end. Every route goes through auth.Resolve, and
// the auth state is written only by the Reconciler that the provider events feed.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/auth"
	"github.com/usememos/saaskit/internal/provider"
	"github.com/usememos/saaskit/plugin/gotrue"
)

// Identity is the identity provider surface the views drive.
type Identity interface {
	auth.Provider
	Events() <-chan gotrue.Event
	SignIn(ctx context.Context, credentials gotrue.SignInCredentials) (*gotrue.Session, error)
	SignUp(ctx context.Context, credentials gotrue.SignUpCredentials) (*gotrue.SignUpResult, error)
	ResetPassword(ctx context.Context, email string) error
	ResendConfirmation(ctx context.Context, email string) error
	SignInWithMagicLink(ctx context.Context, email string) error
	SignInWithOAuth(provider gotrue.OAuthProvider) (string, error)
	UpdatePassword(ctx context.Context, password string) (*gotrue.User, error)
}

// Router is the auth.Navigator of the program. Routes reach Update as messages.
type Router struct {
	routes chan string
}

func NewRouter() *Router {
	return &Router{routes: make(chan string, 16)}
}

func (r *Router) Navigate(route string) {
	r.routes <- route
}

type Config struct {
	Reconciler *auth.Reconciler
	Identity   Identity
	Router     *Router
	Providers  *provider.Registry
	// OAuthProvider is used by the OAuth shortcut of the sign in form.
	OAuthProvider gotrue.OAuthProvider
	// OpenBrowser opens OAuth URLs; nil uses the platform opener.
	OpenBrowser func(url string) error
	// Route is the first route shown, RouteHome when empty.
	Route string
}

type Model struct {
	ctx           context.Context
	reconciler    *auth.Reconciler
	identity      Identity
	router        *Router
	providers     *provider.Registry
	oauthProvider gotrue.OAuthProvider
	openBrowser   func(url string) error

	route    string
	width    int
	height   int
	spinner  spinner.Model
	login    loginForm
	password textinput.Model
	chat     chatView
	// changingPassword is the dashboard's inline password form.
	changingPassword bool
	busy             bool
	notice           string
	err              error
	quitting         bool
}

type (
	bootstrapMsg    struct{}
	eventsClosedMsg struct{}
	authEventMsg    struct{ event gotrue.Event }
	navigateMsg     struct{ route string }
	actionMsg       struct {
		notice string
		err    error
	}
	logoutMsg struct{ err error }
)

func New(ctx context.Context, config Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	pw := textinput.New()
	pw.Placeholder = "new password"
	pw.EchoMode = textinput.EchoPassword
	pw.CharLimit = 128

	if config.OAuthProvider == "" {
		config.OAuthProvider = gotrue.OAuthGoogle
	}
	if config.OpenBrowser == nil {
		config.OpenBrowser = openURL
	}
	if config.Providers == nil {
		config.Providers = provider.NewRegistry()
	}
	route := config.Route
	if route == "" {
		route = auth.RouteHome
	}

	m := Model{
		ctx:           ctx,
		reconciler:    config.Reconciler,
		identity:      config.Identity,
		router:        config.Router,
		providers:     config.Providers,
		oauthProvider: config.OAuthProvider,
		openBrowser:   config.OpenBrowser,
		width:         100,
		height:        30,
		spinner:       sp,
		login:         newLoginForm(auth.ModeSignIn),
		password:      pw,
		chat:          newChatView(config.Providers),
	}
	return m.navigate(route)
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.bootstrap(),
		waitForEvent(m.identity.Events()),
		waitForRoute(m.router),
	)
}

func (m Model) bootstrap() tea.Cmd {
	return func() tea.Msg {
		m.reconciler.Bootstrap(m.ctx)
		return bootstrapMsg{}
	}
}

func waitForEvent(events <-chan gotrue.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return authEventMsg{event: event}
	}
}

func waitForRoute(router *Router) tea.Cmd {
	return func() tea.Msg {
		return navigateMsg{route: <-router.routes}
	}
}

// Route is the route currently shown.
func (m Model) Route() string {
	return m.route
}

func (m Model) snapshot() auth.Snapshot {
	return m.reconciler.State().Snapshot()
}

// navigate switches to route and applies the guard until the route renders or waits.
func (m Model) navigate(route string) Model {
	if route != m.route {
		m.route = route
		m.notice = ""
		m.err = nil
		m.busy = false
		m.changingPassword = false
		m.password.Reset()
		m.password.Blur()

		path, _, _ := strings.Cut(route, "?")
		switch path {
		case auth.RouteLogin:
			m.login = newLoginForm(loginModeOf(route))
		case auth.RouteResetPassword:
			m.password.Focus()
		case auth.RouteChat:
			m.chat.input.Focus()
		}
	}
	return m.resolve()
}

func (m Model) resolve() Model {
	decision := auth.Resolve(m.snapshot(), m.route)
	if decision.Outcome == auth.Redirect && decision.To != m.route {
		return m.navigate(decision.To)
	}
	return m
}

func (m Model) path() string {
	path, _, _ := strings.Cut(m.route, "?")
	return path
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chat.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case bootstrapMsg:
		return m.resolve(), nil

	case authEventMsg:
		m.reconciler.Handle(msg.event)
		if msg.event.Kind == gotrue.EventUserUpdated && m.changingPassword {
			m.changingPassword = false
			m.password.Reset()
			m.password.Blur()
		}
		return m.resolve(), waitForEvent(m.identity.Events())

	case eventsClosedMsg:
		return m, nil

	case navigateMsg:
		return m.navigate(msg.route), waitForRoute(m.router)

	case actionMsg:
		m.busy = false
		m.notice = msg.notice
		m.err = msg.err
		return m, nil

	case signUpPendingMsg:
		m.busy = false
		m.login.pendingEmail = msg.email
		m.notice = "Check " + msg.email + " to confirm your account."
		return m, nil

	case logoutMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.chat.reset()
		return m.navigate(auth.RouteHome), nil

	case streamStartedMsg, chunkMsg, streamDoneMsg:
		return m.updateChatStream(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.chat.cancel()
			m.quitting = true
			return m, tea.Quit
		}
		if auth.Resolve(m.snapshot(), m.route).Outcome != auth.Render {
			return m, nil
		}
		switch m.path() {
		case auth.RouteLogin:
			return m.updateLogin(msg)
		case auth.RouteResetPassword:
			return m.updateResetPassword(msg)
		case auth.RouteDashboard:
			return m.updateDashboard(msg)
		case auth.RouteChat:
			return m.updateChat(msg)
		default:
			return m.updatePublic(msg)
		}
	}
	return m, nil
}

func (m Model) updatePublic(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "l":
		return m.navigate(auth.LoginRoute(auth.ModeSignIn)), nil
	case "s":
		return m.navigate(auth.LoginRoute(auth.ModeSignUp)), nil
	case "d":
		return m.navigate(auth.RouteDashboard), nil
	case "c":
		return m.navigate(auth.RouteChat), nil
	case "a":
		return m.navigate(auth.RouteAbout), nil
	case "esc", "h":
		return m.navigate(auth.RouteHome), nil
	}
	return m, nil
}

func (m Model) updateDashboard(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.changingPassword {
		switch msg.String() {
		case "esc":
			m.changingPassword = false
			m.password.Reset()
			m.password.Blur()
			return m, nil
		case "enter":
			return m.submitPassword()
		}
		var cmd tea.Cmd
		m.password, cmd = m.password.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "c":
		return m.navigate(auth.RouteChat), nil
	case "a":
		return m.navigate(auth.RouteAbout), nil
	case "h":
		return m.navigate(auth.RouteHome), nil
	case "p":
		m.changingPassword = true
		m.notice = ""
		m.err = nil
		return m, m.password.Focus()
	case "o":
		return m.logout()
	}
	return m, nil
}

func (m Model) updateResetPassword(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.navigate(auth.LoginRoute(auth.ModeSignIn)), nil
	case "enter":
		return m.submitPassword()
	}
	var cmd tea.Cmd
	m.password, cmd = m.password.Update(msg)
	return m, cmd
}

func (m Model) submitPassword() (tea.Model, tea.Cmd) {
	password := m.password.Value()
	if len(password) < minPasswordLength {
		m.err = apperr.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return m, nil
	}
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.err = nil
	ctx, identity := m.ctx, m.identity
	return m, func() tea.Msg {
		if _, err := identity.UpdatePassword(ctx, password); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{notice: "Password updated."}
	}
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	m.chat.cancel()
	ctx, reconciler := m.ctx, m.reconciler
	return m, func() tea.Msg {
		return logoutMsg{err: reconciler.Logout(ctx)}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderTitle() + "\n\n")

	decision := auth.Resolve(m.snapshot(), m.route)
	if decision.Outcome != auth.Render {
		b.WriteString(m.spinner.View() + " Loading...\n")
		return b.String()
	}

	switch m.path() {
	case auth.RouteLogin:
		b.WriteString(m.viewLogin())
	case auth.RouteResetPassword:
		b.WriteString(m.viewResetPassword())
	case auth.RouteDashboard:
		b.WriteString(m.viewDashboard())
	case auth.RouteChat:
		b.WriteString(m.viewChat())
	case auth.RouteAbout:
		b.WriteString(m.viewAbout())
	default:
		b.WriteString(m.viewHome())
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	return b.String()
}

func (m Model) renderTitle() string {
	title := titleStyle.Render("SaaS Kit")
	snapshot := m.snapshot()
	if snapshot.IsAuthenticated {
		return title + dimStyle.Render("  "+snapshot.User.DisplayName())
	}
	return title
}

func (m Model) renderStatus() string {
	var b strings.Builder
	if m.busy {
		b.WriteString(m.spinner.View() + " ")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(apperr.Message(m.err)) + "\n")
	} else if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice) + "\n")
	}
	return b.String()
}

func (m Model) viewHome() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Welcome") + "\n\n")
	b.WriteString("Chat with Gemini and Agno agents from your terminal.\n\n")
	if m.snapshot().IsAuthenticated {
		b.WriteString(helpStyle.Render("  d: dashboard  c: chat  a: about  q: quit"))
	} else {
		b.WriteString(helpStyle.Render("  l: sign in  s: sign up  c: chat  a: about  q: quit"))
	}
	return b.String() + "\n"
}

func (m Model) viewAbout() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("About") + "\n\n")
	b.WriteString("Accounts are managed by the auth server. Chat replies come from the\n")
	b.WriteString("configured providers and are shown word by word.\n\n")
	if names := m.providers.Names(); len(names) > 0 {
		b.WriteString(labelStyle.Render("Providers") + strings.Join(names, ", ") + "\n\n")
	}
	b.WriteString(helpStyle.Render("  esc: home  q: quit"))
	return b.String() + "\n"
}

func (m Model) viewDashboard() string {
	user := m.snapshot().User
	var b strings.Builder
	b.WriteString(headerStyle.Render("Dashboard") + "\n\n")
	if user != nil {
		b.WriteString(labelStyle.Render("Name") + user.DisplayName() + "\n")
		b.WriteString(labelStyle.Render("Email") + user.Email + "\n")
		b.WriteString(labelStyle.Render("User ID") + dimStyle.Render(user.ID) + "\n")
		if !user.CreatedAt.IsZero() {
			b.WriteString(labelStyle.Render("Joined") + user.CreatedAt.Format("2006-01-02") + "\n")
		}
		if !user.UpdatedAt.IsZero() {
			b.WriteString(labelStyle.Render("Updated") + user.UpdatedAt.Format("2006-01-02 15:04") + "\n")
		}
	}
	b.WriteString("\n")
	if m.changingPassword {
		b.WriteString(labelStyle.Render("Password") + m.password.View() + "\n\n")
		b.WriteString(helpStyle.Render("  enter: save  esc: cancel"))
	} else {
		b.WriteString(helpStyle.Render("  c: chat  p: change password  o: sign out  a: about  q: quit"))
	}
	return b.String() + "\n"
}

func (m Model) viewResetPassword() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Reset your password") + "\n\n")
	b.WriteString("Enter your new password below.\n\n")
	b.WriteString(labelStyle.Render("Password") + m.password.View() + "\n\n")
	b.WriteString(helpStyle.Render("  enter: save  esc: back to sign in"))
	return b.String() + "\n"
}
