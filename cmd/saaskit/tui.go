package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/usememos/saaskit/internal/auth"
	"github.com/usememos/saaskit/internal/profile"
	"github.com/usememos/saaskit/internal/provider"
	"github.com/usememos/saaskit/internal/tui"
	"github.com/usememos/saaskit/plugin/gotrue"
	"github.com/usememos/saaskit/server/router/callback"
)

const refreshInterval = 30 * time.Second

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal UI (default)",
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().String("oauth-provider", string(gotrue.OAuthGoogle), "provider used by the OAuth shortcut: google, github, discord or apple")
	rootCmd.Flags().AddFlagSet(tuiCmd.Flags())
}

func newAuthClient(p *profile.Profile, redirectURL string) (*gotrue.Client, error) {
	if !p.AuthEnabled() {
		return nil, errors.New("auth-url and auth-anon-key are required")
	}
	return gotrue.NewClient(gotrue.Config{
		URL:         p.AuthURL,
		AnonKey:     p.AuthAnonKey,
		SiteURL:     p.SiteURL,
		RedirectURL: redirectURL,
		Storage:     gotrue.NewFileStorage(p.SessionFile()),
	}), nil
}

func runTUI(cmd *cobra.Command, _ []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	logFile, err := os.OpenFile(p.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return errors.Wrap(err, "failed to open log file")
	}
	defer logFile.Close()
	setLogger(p, logFile, true)

	oauthProvider := gotrue.OAuthProvider(cmd.Flags().Lookup("oauth-provider").Value.String())
	if !oauthProvider.Valid() {
		return errors.Errorf("unsupported oauth provider %q", oauthProvider)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	providers, err := provider.FromProfile(ctx, p, nil)
	if err != nil {
		return err
	}

	// The loopback must exist before the client so redirects can point at it.
	var reconciler *auth.Reconciler
	loopback, err := callback.Listen(p.CallbackPort, func(ctx context.Context, rawURL string) error {
		_, err := reconciler.HandleCallback(ctx, rawURL)
		return err
	})
	if err != nil {
		return err
	}
	client, err := newAuthClient(p, loopback.RedirectURL())
	if err != nil {
		return err
	}
	router := tui.NewRouter()
	reconciler = auth.NewReconciler(auth.NewState(), client, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(loopback.Serve)
	g.Go(func() error {
		client.AutoRefresh(gctx, refreshInterval)
		return nil
	})

	model := tui.New(ctx, tui.Config{
		Reconciler:    reconciler,
		Identity:      client,
		Router:        router,
		Providers:     providers,
		OAuthProvider: oauthProvider,
	})
	_, runErr := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	cancel()
	if err := loopback.Close(context.Background()); err != nil {
		return errors.Wrap(err, "failed to close auth callback server")
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return errors.Wrap(runErr, "terminal UI failed")
	}
	return nil
}
