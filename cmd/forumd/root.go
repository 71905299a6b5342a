package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"forum/internal/config"
	"forum/internal/store"
)

type rootOptions struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "forumd",
		Short:         "Forum API server and maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.cfg = config.Load()
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.cfg.LogLevel)
			slog.SetDefault(opts.logger)
		},
	}

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedTagsCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newReindexCommand(opts))

	return cmd
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore connects to the configured database and brings its schema up to
// date.
func openStore(ctx context.Context, cfg config.Config) (*store.Store, *sqlx.DB, error) {
	db, dialect, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}
	return store.New(db, dialect), db, nil
}
