package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"forum/internal/util"
)

// ReplaceTaxonomy writes a freshly laid out taxonomy in one transaction. Tags
// are matched by name so existing ids (and the posts linked to them) survive;
// names missing from tags are removed along with their post links.
func (s *Store) ReplaceTaxonomy(ctx context.Context, tags []Tag) (SeedReport, error) {
	var report SeedReport
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		existing := map[string]string{}
		rows, err := tx.QueryxContext(ctx, `SELECT id, name FROM tags`)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}
		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan tag: %w", err)
			}
			existing[name] = id
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close tag rows: %w", err)
		}

		keep := make(map[string]bool, len(tags))
		for _, tag := range tags {
			keep[tag.Name] = true
		}
		for name, id := range existing {
			if keep[name] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id); err != nil {
				return fmt.Errorf("delete tag %s: %w", name, err)
			}
			report.Removed++
		}

		for _, tag := range tags {
			id, ok := existing[tag.Name]
			if ok {
				report.Updated++
			} else {
				id = tag.ID
				if id == "" {
					id = util.NewID("tag")
				}
				report.Inserted++
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tags (id, name, depth, lft, rgt)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (name) DO UPDATE SET depth = excluded.depth, lft = excluded.lft, rgt = excluded.rgt
			`, id, tag.Name, tag.Depth, tag.Lft, tag.Rgt); err != nil {
				return fmt.Errorf("upsert tag %s: %w", tag.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}
	return report, nil
}

func (s *Store) ListTags(ctx context.Context) ([]Tag, error) {
	tags := []Tag{}
	if err := s.db.SelectContext(ctx, &tags, `SELECT id, name, depth, lft, rgt FROM tags ORDER BY lft`); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (s *Store) GetTag(ctx context.Context, id string) (Tag, error) {
	var tag Tag
	err := s.db.GetContext(ctx, &tag, `SELECT id, name, depth, lft, rgt FROM tags WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, ErrNotFound
	}
	if err != nil {
		return Tag{}, fmt.Errorf("get tag: %w", err)
	}
	return tag, nil
}

// GetTagsByIDs returns the tags with the given ids, failing with
// ErrUnknownTag if any id does not exist.
func (s *Store) GetTagsByIDs(ctx context.Context, ids []string) ([]Tag, error) {
	if len(ids) == 0 {
		return []Tag{}, nil
	}
	query, args, err := sq.Select("id", "name", "depth", "lft", "rgt").
		From("tags").
		Where(sq.Eq{"id": ids}).
		OrderBy("lft").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tag query: %w", err)
	}
	tags := []Tag{}
	if err := s.db.SelectContext(ctx, &tags, query, args...); err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}
	found := make(map[string]bool, len(tags))
	for _, tag := range tags {
		found[tag.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTag, id)
		}
	}
	return tags, nil
}

// TagRange lists the ids of tags nested inside [lft, rgt], in layout order.
// With inclusive set the bounds themselves match, so the tag owning the range
// is returned as well.
func (s *Store) TagRange(ctx context.Context, lft, rgt int, inclusive bool) ([]string, error) {
	query := `SELECT id FROM tags WHERE lft > $1 AND rgt < $2 ORDER BY lft`
	if inclusive {
		query = `SELECT id FROM tags WHERE lft >= $1 AND rgt <= $2 ORDER BY lft`
	}
	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, query, lft, rgt); err != nil {
		return nil, fmt.Errorf("list tag range: %w", err)
	}
	return ids, nil
}

func (s *Store) tagsForPosts(ctx context.Context, postIDs []string) (map[string][]Tag, error) {
	byPost := map[string][]Tag{}
	if len(postIDs) == 0 {
		return byPost, nil
	}
	query, args, err := sq.Select("tp.post_id", "t.id", "t.name", "t.depth", "t.lft", "t.rgt").
		From("tags_to_posts tp").
		Join("tags t ON t.id = tp.tag_id").
		Where(sq.Eq{"tp.post_id": postIDs}).
		OrderBy("t.lft").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build post tags query: %w", err)
	}
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list post tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var postID string
		var tag Tag
		if err := rows.Scan(&postID, &tag.ID, &tag.Name, &tag.Depth, &tag.Lft, &tag.Rgt); err != nil {
			return nil, fmt.Errorf("scan post tag: %w", err)
		}
		byPost[postID] = append(byPost[postID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post tags: %w", err)
	}
	return byPost, nil
}
