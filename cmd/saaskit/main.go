package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/usememos/saaskit/internal/chat"
	"github.com/usememos/saaskit/internal/profile"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "saaskit",
		Short: `A terminal client for the SaaS starter: sign in, then chat with Gemini and Agno agents.`,
		// The terminal UI is the default command.
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("site-url", "http://localhost:5173")
	viper.SetDefault("genai-model", "gemini-2.5-flash")
	viper.SetDefault("embedding-model", "text-embedding-3-small")
	viper.SetDefault("stream-pause", "20ms")

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of the process, can be "prod" or "dev"`)
	flags.String("addr", "", "address of the API server")
	flags.Int("port", 8081, "port of the API server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver: sqlite, mysql or postgres")
	flags.String("dsn", "", "database source name")
	flags.String("site-url", "http://localhost:5173", "public URL of the web app, used in email links")
	flags.String("auth-url", "", "auth server URL, e.g. https://<project>.supabase.co/auth/v1")
	flags.String("auth-anon-key", "", "anon key of the auth server")
	flags.String("auth-jwt-secret", "", "secret that signs access tokens, required by serve")
	flags.String("genai-api-key", "", "Gemini API key")
	flags.String("genai-model", "gemini-2.5-flash", "Gemini model")
	flags.String("genai-base-url", "", "Gemini API base URL override")
	flags.String("agno-url", "", "AgentOS base URL")
	flags.String("agno-agent-id", "", "Agno agent answering chats, the server default when empty")
	flags.String("openrouter-api-key", "", "OpenRouter API key")
	flags.String("openrouter-model", "", "OpenRouter model")
	flags.String("embedding-api-key", "", "API key of the OpenAI compatible embedding endpoint, enables semantic search")
	flags.String("embedding-base-url", "", "base URL of the embedding endpoint")
	flags.String("embedding-model", "text-embedding-3-small", "embedding model")
	flags.Duration("stream-pause", chat.DefaultPause, "delay between streamed words")
	flags.Int("callback-port", 0, "loopback port for OAuth and magic link redirects, 0 picks a free one")

	for _, key := range []string{
		"mode", "addr", "port", "data", "driver", "dsn", "site-url",
		"auth-url", "auth-anon-key", "auth-jwt-secret",
		"genai-api-key", "genai-model", "genai-base-url",
		"agno-url", "agno-agent-id",
		"openrouter-api-key", "openrouter-model",
		"embedding-api-key", "embedding-base-url", "embedding-model",
		"stream-pause", "callback-port",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("saaskit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(tuiCmd, serveCmd, chatCmd, agentsCmd, whoamiCmd, logoutCmd)
}

// loadProfile reads the flags, the environment and .env into a validated profile.
func loadProfile() (*profile.Profile, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "err", err)
	}

	p := &profile.Profile{
		Mode:             viper.GetString("mode"),
		Addr:             viper.GetString("addr"),
		Port:             viper.GetInt("port"),
		Data:             viper.GetString("data"),
		Driver:           viper.GetString("driver"),
		DSN:              viper.GetString("dsn"),
		Version:          version,
		SiteURL:          viper.GetString("site-url"),
		AuthURL:          viper.GetString("auth-url"),
		AuthAnonKey:      viper.GetString("auth-anon-key"),
		AuthJWTSecret:    viper.GetString("auth-jwt-secret"),
		GenAIAPIKey:      viper.GetString("genai-api-key"),
		GenAIModel:       viper.GetString("genai-model"),
		GenAIBaseURL:     viper.GetString("genai-base-url"),
		AgnoURL:          viper.GetString("agno-url"),
		AgnoAgentID:      viper.GetString("agno-agent-id"),
		OpenRouterAPIKey: viper.GetString("openrouter-api-key"),
		OpenRouterModel:  viper.GetString("openrouter-model"),
		EmbeddingAPIKey:  viper.GetString("embedding-api-key"),
		EmbeddingBaseURL: viper.GetString("embedding-base-url"),
		EmbeddingModel:   viper.GetString("embedding-model"),
		StreamPause:      viper.GetDuration("stream-pause"),
		CallbackPort:     viper.GetInt("callback-port"),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// setLogger installs the default slog logger. JSON is used in prod and whenever the
// terminal belongs to the UI.
func setLogger(p *profile.Profile, w io.Writer, json bool) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if p.IsDev() {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if json || !p.IsDev() {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler).With("version", version))
}

func printGreetings(p *profile.Profile) {
	if p.IsDev() {
		println("Development mode is enabled")
		println("DSN: ", p.DSN)
	}
	fmt.Printf("Version %s has been started on port %d\n", p.Version, p.Port)
	fmt.Printf("Chat providers: %s\n", strings.Join(p.Providers(), ", "))
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
