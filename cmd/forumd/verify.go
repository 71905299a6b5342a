package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recount every counter from its ledger and report drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dataStore, db, err := openStore(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			drifts, err := dataStore.Verify(ctx)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(map[string]any{"ok": len(drifts) == 0, "drift": drifts}); err != nil {
				return err
			}
			if len(drifts) > 0 {
				return fmt.Errorf("%d counters drifted from their ledgers", len(drifts))
			}
			return nil
		},
	}
}
