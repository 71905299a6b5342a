package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"forum/internal/search"
	"forum/internal/store"
)

const reindexBatch = 100

func newReindexCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every post to the Meilisearch index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if strings.TrimSpace(opts.cfg.MeiliURL) == "" {
				return fmt.Errorf("MEILI_URL is not set")
			}
			dataStore, db, err := openStore(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			meiliClient := search.NewMeili(opts.cfg.MeiliURL, opts.cfg.MeiliMasterKey, opts.logger)
			defer meiliClient.Close()
			if !meiliClient.Healthy() {
				return fmt.Errorf("meilisearch at %s is unavailable", opts.cfg.MeiliURL)
			}
			searchService := search.NewService(meiliClient, search.NewDatabase(dataStore), opts.logger)

			total := 0
			for offset := 0; ; offset += reindexBatch {
				posts, err := dataStore.ListPosts(ctx, store.PostFilter{Limit: reindexBatch, Offset: offset})
				if err != nil {
					return err
				}
				if len(posts) == 0 {
					break
				}
				records := make([]search.PostRecord, 0, len(posts))
				for _, post := range posts {
					records = append(records, search.RecordFor(post))
				}
				if err := searchService.ReindexAll(records); err != nil {
					return fmt.Errorf("index posts at offset %d: %w", offset, err)
				}
				total += len(posts)
			}
			opts.logger.Info("reindex complete", "posts", total)
			return nil
		},
	}
}
