package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"forum/internal/store"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down, roll back) database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, dialect, err := store.Open(ctx, opts.cfg.DatabaseDriver, opts.cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()

			if down {
				if err := store.RollbackMigrations(ctx, db, dialect); err != nil {
					return err
				}
				opts.logger.Info("migrations rolled back", "dialect", dialect.String())
				return nil
			}
			if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
				return err
			}
			opts.logger.Info("migrations applied", "dialect", dialect.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back every applied migration")
	return cmd
}
