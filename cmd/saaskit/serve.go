package main

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/usememos/saaskit/internal/provider"
	"github.com/usememos/saaskit/plugin/vectorstore"
	"github.com/usememos/saaskit/server"
	"github.com/usememos/saaskit/store"
	"github.com/usememos/saaskit/store/db"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		setLogger(p, os.Stderr, false)

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		dbDriver, err := db.NewDBDriver(p)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return err
		}
		storeInstance := store.New(dbDriver, p)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return err
		}

		providers, err := provider.FromProfile(ctx, p, nil)
		if err != nil {
			return err
		}
		if len(providers.Names()) == 0 {
			slog.Warn("no chat provider configured, chat requests will fail")
		}

		var vectorStore *vectorstore.Store
		if p.EmbeddingAPIKey != "" {
			embed := vectorstore.NewEmbeddingFunc(p.EmbeddingBaseURL, p.EmbeddingAPIKey, p.EmbeddingModel)
			vectorStore, err = vectorstore.New(filepath.Join(p.Data, "vectors"), embed)
			if err != nil {
				slog.Warn("semantic search disabled", "error", err)
				vectorStore = nil
			}
		}

		s, err := server.NewServer(ctx, p, storeInstance, providers, vectorStore)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return err
		}
		printGreetings(p)
		return s.Run(ctx)
	},
}
