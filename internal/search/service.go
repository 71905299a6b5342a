package search

import (
	"context"
	"log/slog"
)

// Service is the facade that tries Meilisearch first and falls back to the
// database.
type Service struct {
	meili    *Meili
	fallback Searcher
	logger   *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, fallback Searcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{meili: meili, fallback: fallback, logger: logger}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		s.logger.Warn("meilisearch error, falling back to database", "error", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("database search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Engine: "database"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "database"}
}

// IndexPost indexes a post (fire-and-forget to Meilisearch).
func (s *Service) IndexPost(post PostRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPosts([]PostRecord{post}); err != nil {
			s.logger.Warn("index post failed", "post_id", post.ID, "error", err)
		}
	}()
}

// ReindexAll pushes posts to Meilisearch synchronously.
func (s *Service) ReindexAll(posts []PostRecord) error {
	if s.meili == nil || !s.meili.Healthy() {
		return nil
	}
	return s.meili.IndexPosts(posts)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
