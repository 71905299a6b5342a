package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"forum/internal/cache"
	"forum/internal/taxonomy"
)

func newSeedTagsCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed-tags",
		Short: "Rebuild the tag taxonomy from a YAML tree",
		Long: `Rebuild the tag taxonomy from a YAML tree.

The whole taxonomy is replaced: tags keep their ids by name, tags missing
from the file are removed, and every nested-set range is recomputed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if file == "" {
				file = opts.cfg.TaxonomyFile
			}

			dataStore, db, err := openStore(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			var descendantCache taxonomy.DescendantCache
			if strings.TrimSpace(opts.cfg.RedisURL) != "" {
				redisCache, err := cache.NewRedisCache(opts.cfg.RedisURL)
				if err != nil {
					return err
				}
				defer redisCache.Close()
				descendantCache = redisCache
			}

			report, err := taxonomy.NewService(dataStore, descendantCache, opts.logger).SeedFile(ctx, file)
			if err != nil {
				return fmt.Errorf("seed %s: %w", file, err)
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(report)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "taxonomy YAML file (default $FORUM_TAXONOMY_FILE)")
	return cmd
}
