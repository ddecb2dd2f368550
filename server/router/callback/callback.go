// Package callback receives OAuth and magic link redirects on a loopback address,
// so a terminal client can complete browser sign-in.
package callback

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/pkg/errors"

	"github.com/usememos/saaskit/internal/auth"
)

const (
	Path         = "/auth/callback"
	FragmentPath = "/auth/callback/fragment"
)

// Handler receives the full callback URL, fragment included when the provider used one.
type Handler func(ctx context.Context, rawURL string) error

// fragmentPage forwards the URL fragment, which browsers never send, back to the server.
const fragmentPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Signing in</title></head>
<body><p id="status">Completing sign in...</p>
<script>
fetch(%q, {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify({url: window.location.href})})
  .then(function (r) { return r.text(); })
  .then(function (t) { history.replaceState(null, "", window.location.pathname); document.getElementById("status").textContent = t; });
</script></body></html>`

const donePage = "Sign in finished, you can close this window and return to the terminal."

const failedPage = "Sign in failed: %s. Return to the terminal and try again."

type fragmentRequest struct {
	URL string `json:"url"`
}

// Register adds the callback routes to e.
func Register(e *echo.Echo, handler Handler) {
	e.GET(Path, func(c *echo.Context) error {
		rawURL := requestURL(c.Request())
		if cb, _, err := auth.ParseCallback(rawURL); err == nil && cb.Empty() {
			return c.HTML(http.StatusOK, fmt.Sprintf(fragmentPage, FragmentPath))
		}
		return finish(c, handler, rawURL)
	})
	e.POST(FragmentPath, func(c *echo.Context) error {
		var req fragmentRequest
		if err := c.Bind(&req); err != nil || req.URL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "url required")
		}
		return finish(c, handler, req.URL)
	})
}

// finish passes the callback to handler and tells the browser how sign in ended.
func finish(c *echo.Context, handler Handler, rawURL string) error {
	cb, _, err := auth.ParseCallback(rawURL)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid url")
	}
	if err := handler(c.Request().Context(), rawURL); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if cb.Error != "" {
		reason := cb.ErrorDescription
		if reason == "" {
			reason = cb.Error
		}
		return c.String(http.StatusUnauthorized, fmt.Sprintf(failedPage, reason))
	}
	return c.String(http.StatusOK, donePage)
}

func requestURL(r *http.Request) string {
	u := *r.URL
	u.Scheme = "http"
	u.Host = r.Host
	return u.String()
}

// Loopback serves the callback routes on 127.0.0.1.
type Loopback struct {
	listener net.Listener
	server   *http.Server
}

// Listen binds the loopback server; port 0 picks a free port.
func Listen(port int, handler Handler) (*Loopback, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, errors.Wrap(err, "failed to listen for auth callbacks")
	}
	e := echo.New()
	e.Use(middleware.Recover())
	Register(e, handler)
	return &Loopback{
		listener: listener,
		server: &http.Server{
			Handler:           e,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// RedirectURL is where the identity provider should send the browser.
func (l *Loopback) RedirectURL() string {
	return "http://" + l.listener.Addr().String() + Path
}

// Serve blocks until Close is called.
func (l *Loopback) Serve() error {
	slog.Debug("auth callback listening", "url", l.RedirectURL())
	if err := l.server.Serve(l.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to serve auth callbacks")
	}
	return nil
}

func (l *Loopback) Close(ctx context.Context) error {
	return l.server.Shutdown(ctx)
}
