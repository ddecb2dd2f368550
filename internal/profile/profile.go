package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start saaskit.
type Profile struct {
	// Mode can be "prod" or "dev".
	Mode string
	// Addr is the binding address for the API server.
	Addr string
	// Port is the binding port for the API server.
	Port int
	// Data is the data directory: database, vector index, session file and logs.
	Data string
	// Driver is the database driver: sqlite, mysql or postgres.
	Driver string
	// DSN points to where the chat history is stored.
	DSN     string
	Version string

	// SiteURL is the public URL of the web app, used for email redirects.
	SiteURL string
	// AuthURL is the GoTrue base URL, e.g. https://<project>.supabase.co/auth/v1.
	AuthURL     string
	AuthAnonKey string
	// AuthJWTSecret verifies access tokens on the API server.
	AuthJWTSecret string

	GenAIAPIKey  string
	GenAIModel   string
	GenAIBaseURL string

	AgnoURL     string
	AgnoAgentID string

	OpenRouterAPIKey string
	OpenRouterModel  string

	EmbeddingAPIKey  string
	EmbeddingBaseURL string
	EmbeddingModel   string

	// StreamPause is the delay between emitted chunks.
	StreamPause time.Duration
	// CallbackPort is the loopback port receiving OAuth and magic link redirects, 0 picks one.
	CallbackPort int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// SessionFile is where the signed in session is kept between runs.
func (p *Profile) SessionFile() string {
	return filepath.Join(p.Data, "session.json")
}

// LogFile is where the terminal UI writes its logs.
func (p *Profile) LogFile() string {
	return filepath.Join(p.Data, "saaskit.log")
}

// AuthEnabled reports whether an identity provider is configured.
func (p *Profile) AuthEnabled() bool {
	return p.AuthURL != "" && p.AuthAnonKey != ""
}

// Providers lists the chat providers that are configured, in preference order.
func (p *Profile) Providers() []string {
	var providers []string
	if p.GenAIAPIKey != "" {
		providers = append(providers, "genai")
	}
	if p.AgnoURL != "" {
		providers = append(providers, "agno")
	}
	if p.OpenRouterAPIKey != "" {
		providers = append(providers, "openrouter")
	}
	return providers
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate fills defaults and prepares the data directory.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	switch p.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}
	if p.Driver != "sqlite" && p.DSN == "" {
		return errors.Errorf("a DSN is required for the %s driver", p.Driver)
	}

	if p.Data == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return errors.Wrap(err, "failed to resolve the user config dir")
		}
		p.Data = filepath.Join(configDir, "saaskit")
	}
	if _, err := os.Stat(p.Data); os.IsNotExist(err) {
		if err := os.MkdirAll(p.Data, 0o770); err != nil {
			slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("saaskit_%s.db", p.Mode))
	}
	if p.SiteURL == "" {
		p.SiteURL = "http://localhost:5173"
	}
	p.SiteURL = strings.TrimRight(p.SiteURL, "/")
	if p.StreamPause < 0 {
		return errors.New("stream pause must not be negative")
	}
	return nil
}
