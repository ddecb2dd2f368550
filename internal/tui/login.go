package tui

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/usememos/saaskit/internal/apperr"
	"github.com/usememos/saaskit/internal/auth"
	"github.com/usememos/saaskit/plugin/gotrue"
)

const minPasswordLength = 6

// login form field indices
const (
	fieldName = iota
	fieldEmail
	fieldPassword
)

var loginModes = []auth.LoginMode{auth.ModeSignIn, auth.ModeSignUp, auth.ModeMagicLink, auth.ModeForgotPassword}

type loginForm struct {
	mode   auth.LoginMode
	inputs []textinput.Model
	focus  int
	// pendingEmail is the address a sign up confirmation was sent to.
	pendingEmail string
}

func newLoginForm(mode auth.LoginMode) loginForm {
	name := textinput.New()
	name.Placeholder = "Jane Doe"
	name.CharLimit = 100

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.CharLimit = 254

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 128

	f := loginForm{
		mode:   mode,
		inputs: []textinput.Model{name, email, password},
	}
	f.focus = f.fields()[0]
	f.inputs[f.focus].Focus()
	return f
}

func loginModeOf(route string) auth.LoginMode {
	_, rawQuery, _ := strings.Cut(route, "?")
	query, _ := url.ParseQuery(rawQuery)
	if mode := auth.LoginMode(query.Get("mode")); mode.Valid() {
		return mode
	}
	return auth.ModeSignIn
}

// fields lists the inputs shown in the current mode, in focus order.
func (f loginForm) fields() []int {
	switch f.mode {
	case auth.ModeSignUp:
		return []int{fieldName, fieldEmail, fieldPassword}
	case auth.ModeSignIn:
		return []int{fieldEmail, fieldPassword}
	default:
		return []int{fieldEmail}
	}
}

func (f *loginForm) move(delta int) {
	fields := f.fields()
	pos := 0
	for i, field := range fields {
		if field == f.focus {
			pos = i
		}
	}
	f.inputs[f.focus].Blur()
	f.focus = fields[(pos+delta+len(fields))%len(fields)]
	f.inputs[f.focus].Focus()
}

func (f loginForm) value(field int) string {
	return strings.TrimSpace(f.inputs[field].Value())
}

func (f loginForm) validate() error {
	email := f.value(fieldEmail)
	if email == "" || !strings.Contains(email, "@") {
		return apperr.InvalidInput("enter a valid email address")
	}
	if f.mode == auth.ModeSignIn || f.mode == auth.ModeSignUp {
		if len(f.inputs[fieldPassword].Value()) < minPasswordLength {
			return apperr.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		}
	}
	return nil
}

func nextLoginMode(mode auth.LoginMode) auth.LoginMode {
	for i, m := range loginModes {
		if m == mode {
			return loginModes[(i+1)%len(loginModes)]
		}
	}
	return auth.ModeSignIn
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := &m.login
	switch msg.String() {
	case "esc":
		return m.navigate(auth.RouteHome), nil
	case "tab", "down":
		f.move(1)
		return m, nil
	case "shift+tab", "up":
		f.move(-1)
		return m, nil
	case "ctrl+n":
		route := auth.LoginRoute(nextLoginMode(f.mode))
		if redirect := auth.RedirectTarget(m.route); redirect != auth.RouteDashboard {
			route += "&" + url.Values{"redirect": {redirect}}.Encode()
		}
		return m.navigate(route), nil
	case "ctrl+o":
		if f.mode == auth.ModeSignIn || f.mode == auth.ModeSignUp {
			return m.signInWithOAuth()
		}
		return m, nil
	case "ctrl+r":
		if f.pendingEmail != "" {
			return m.resendConfirmation()
		}
		return m, nil
	case "enter":
		return m.submitLogin()
	}

	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return m, cmd
}

func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	f := m.login
	if err := f.validate(); err != nil {
		m.err = err
		return m, nil
	}
	m.busy = true
	m.err = nil
	m.notice = ""

	ctx, identity := m.ctx, m.identity
	email := f.value(fieldEmail)
	password := f.inputs[fieldPassword].Value()

	switch f.mode {
	case auth.ModeSignUp:
		m.login.pendingEmail = ""
		name := f.value(fieldName)
		return m, func() tea.Msg {
			result, err := identity.SignUp(ctx, gotrue.SignUpCredentials{Email: email, Password: password, Name: name})
			if err != nil {
				return actionMsg{err: err}
			}
			if result.Session == nil {
				return signUpPendingMsg{email: email}
			}
			return actionMsg{}
		}
	case auth.ModeForgotPassword:
		return m, func() tea.Msg {
			if err := identity.ResetPassword(ctx, email); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{notice: "Check your email for a password reset link."}
		}
	case auth.ModeMagicLink:
		return m, func() tea.Msg {
			if err := identity.SignInWithMagicLink(ctx, email); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{notice: "Check your email for the sign in link. Open it on this machine."}
		}
	default:
		return m, func() tea.Msg {
			// The session arrives as a SIGNED_IN event.
			if _, err := identity.SignIn(ctx, gotrue.SignInCredentials{Email: email, Password: password}); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{}
		}
	}
}

type signUpPendingMsg struct{ email string }

func (m Model) resendConfirmation() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	ctx, identity, email := m.ctx, m.identity, m.login.pendingEmail
	return m, func() tea.Msg {
		if err := identity.ResendConfirmation(ctx, email); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{notice: "Confirmation email sent again to " + email + "."}
	}
}

func (m Model) signInWithOAuth() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	identity, provider, open := m.identity, m.oauthProvider, m.openBrowser
	return m, func() tea.Msg {
		authURL, err := identity.SignInWithOAuth(provider)
		if err != nil {
			return actionMsg{err: err}
		}
		if err := open(authURL); err != nil {
			return actionMsg{notice: "Open this URL to continue: " + authURL}
		}
		return actionMsg{notice: "Continue in your browser. If nothing opened, visit: " + authURL}
	}
}

func openURL(target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}

func (m Model) viewLogin() string {
	f := m.login
	var b strings.Builder

	var tabs []string
	for _, mode := range loginModes {
		label := loginModeTitle(mode)
		if mode == f.mode {
			tabs = append(tabs, selectedStyle.Render(label))
		} else {
			tabs = append(tabs, dimStyle.Render(" "+label+" "))
		}
	}
	b.WriteString(strings.Join(tabs, " ") + "\n\n")

	labels := map[int]string{fieldName: "Name", fieldEmail: "Email", fieldPassword: "Password"}
	for _, field := range f.fields() {
		b.WriteString(labelStyle.Render(labels[field]) + f.inputs[field].View() + "\n")
	}
	b.WriteString("\n")

	help := "  enter: submit  tab: next field  ctrl+n: next mode  esc: home"
	if f.mode == auth.ModeSignIn || f.mode == auth.ModeSignUp {
		help += fmt.Sprintf("  ctrl+o: continue with %s", m.oauthProvider)
	}
	if f.pendingEmail != "" {
		help += "  ctrl+r: resend confirmation"
	}
	b.WriteString(helpStyle.Render(help))
	return b.String() + "\n"
}

func loginModeTitle(mode auth.LoginMode) string {
	switch mode {
	case auth.ModeSignUp:
		return "Sign up"
	case auth.ModeMagicLink:
		return "Magic link"
	case auth.ModeForgotPassword:
		return "Forgot password"
	}
	return "Sign in"
}
