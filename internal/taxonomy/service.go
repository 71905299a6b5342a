package taxonomy

import (
	"context"
	"fmt"
	"log/slog"

	"forum/internal/store"
)

type tagStore interface {
	ReplaceTaxonomy(ctx context.Context, tags []store.Tag) (store.SeedReport, error)
	ListTags(ctx context.Context) ([]store.Tag, error)
	GetTag(ctx context.Context, id string) (store.Tag, error)
	TagRange(ctx context.Context, lft, rgt int, inclusive bool) ([]string, error)
}

// DescendantCache memoizes descendant sets between taxonomy seeds.
type DescendantCache interface {
	Descendants(ctx context.Context, tagID string, includeSelf bool) ([]string, bool, error)
	StoreDescendants(ctx context.Context, tagID string, includeSelf bool, ids []string) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	store  tagStore
	cache  DescendantCache
	logger *slog.Logger
}

// NewService wires the taxonomy over its store. cache may be nil.
func NewService(store tagStore, cache DescendantCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, logger: logger}
}

// Seed replaces the stored taxonomy with forest. Nothing is written when the
// tree is invalid.
func (s *Service) Seed(ctx context.Context, forest []Node) (store.SeedReport, error) {
	if err := Validate(forest); err != nil {
		return store.SeedReport{}, err
	}
	report, err := s.store.ReplaceTaxonomy(ctx, Build(forest))
	if err != nil {
		return store.SeedReport{}, fmt.Errorf("seed taxonomy: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("taxonomy cache invalidation failed", "error", err)
		}
	}
	s.logger.Info("taxonomy seeded", "inserted", report.Inserted, "updated", report.Updated, "removed", report.Removed)
	return report, nil
}

func (s *Service) SeedFile(ctx context.Context, path string) (store.SeedReport, error) {
	forest, err := LoadFile(path)
	if err != nil {
		return store.SeedReport{}, err
	}
	return s.Seed(ctx, forest)
}

func (s *Service) List(ctx context.Context) ([]store.Tag, error) {
	return s.store.ListTags(ctx)
}

// Descendants lists the tags strictly below tagID.
func (s *Service) Descendants(ctx context.Context, tagID string) ([]string, error) {
	return s.descendants(ctx, tagID, false)
}

// DescendantsOrSelf is Descendants with tagID itself first.
func (s *Service) DescendantsOrSelf(ctx context.Context, tagID string) ([]string, error) {
	return s.descendants(ctx, tagID, true)
}

func (s *Service) descendants(ctx context.Context, tagID string, includeSelf bool) ([]string, error) {
	if s.cache != nil {
		ids, ok, err := s.cache.Descendants(ctx, tagID, includeSelf)
		if err != nil {
			s.logger.Warn("taxonomy cache read failed", "tag_id", tagID, "error", err)
		} else if ok {
			return ids, nil
		}
	}

	tag, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	ids, err := s.store.TagRange(ctx, tag.Lft, tag.Rgt, includeSelf)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.StoreDescendants(ctx, tagID, includeSelf, ids); err != nil {
			s.logger.Warn("taxonomy cache write failed", "tag_id", tagID, "error", err)
		}
	}
	return ids, nil
}
