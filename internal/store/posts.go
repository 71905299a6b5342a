package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"forum/internal/engagement"
	"forum/internal/util"
)

const DefaultPageSize = 20

const postColumns = "p.id, p.author_id, p.event_id, p.content, p.score, p.like_count, p.flag_count, p.comment_count, p.created_at"

// tagFilterClause matches posts carrying the filter tag or any tag nested
// under it.
const tagFilterClause = `EXISTS (
	SELECT 1 FROM tags_to_posts tp
	JOIN tags t ON t.id = tp.tag_id
	JOIN tags f ON f.id = ?
	WHERE tp.post_id = p.id AND t.lft >= f.lft AND t.rgt <= f.rgt
)`

// CreatePost inserts a post with zeroed counters, links its tags and
// optionally attaches it to an event.
func (s *Store) CreatePost(ctx context.Context, input NewPost) (PostView, error) {
	post := PostView{
		Post: Post{
			ID:        util.NewID("pst"),
			AuthorID:  input.AuthorID,
			Content:   input.Content,
			CreatedAt: s.now(),
		},
		ViewerVote: engagement.VoteNone,
		Tags:       []Tag{},
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if input.EventID != "" {
			var event Event
			err := tx.GetContext(ctx, &event, `SELECT `+eventColumns+` FROM events WHERE id = $1`, input.EventID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("attach event %s: %w", input.EventID, ErrUnknownEvent)
			}
			if err != nil {
				return fmt.Errorf("lookup event: %w", err)
			}
			post.EventID = &event.ID
			post.Event = &event
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO posts (id, author_id, event_id, content, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
		`, post.ID, post.AuthorID, post.EventID, post.Content, post.CreatedAt); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("insert post: %w", ErrNotFound)
			}
			return fmt.Errorf("insert post: %w", err)
		}
		for _, tagID := range input.TagIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO tags_to_posts (tag_id, post_id) VALUES ($1, $2)
				ON CONFLICT (tag_id, post_id) DO NOTHING
			`, tagID, post.ID); err != nil {
				if isForeignKeyViolation(err) {
					return fmt.Errorf("link tag %s: %w", tagID, ErrUnknownTag)
				}
				return fmt.Errorf("link tag %s: %w", tagID, err)
			}
		}
		return nil
	})
	if err != nil {
		return PostView{}, err
	}
	if len(input.TagIDs) > 0 {
		tags, err := s.tagsForPosts(ctx, []string{post.ID})
		if err != nil {
			return PostView{}, err
		}
		post.Tags = tags[post.ID]
	}
	return post, nil
}

// GetPost returns a post with viewerID's vote and the post's tags.
func (s *Store) GetPost(ctx context.Context, id, viewerID string) (PostView, error) {
	query, args, err := s.postQuery(viewerID).Where(sq.Eq{"p.id": id}).ToSql()
	if err != nil {
		return PostView{}, fmt.Errorf("build post query: %w", err)
	}
	var post PostView
	if err := s.db.GetContext(ctx, &post, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PostView{}, ErrNotFound
		}
		return PostView{}, fmt.Errorf("get post: %w", err)
	}
	posts, err := s.attach(ctx, []PostView{post})
	if err != nil {
		return PostView{}, err
	}
	return posts[0], nil
}

// ListPosts returns the newest posts matching every tag in filter.TagIDs,
// where a post matches a tag if it carries that tag or one of its descendants.
func (s *Store) ListPosts(ctx context.Context, filter PostFilter) ([]PostView, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	builder := s.postQuery(filter.ViewerID)
	for _, tagID := range filter.TagIDs {
		builder = builder.Where(sq.Expr(tagFilterClause, tagID))
	}
	query, args, err := builder.
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build post listing: %w", err)
	}

	posts := []PostView{}
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return s.attach(ctx, posts)
}

// SearchPosts is the database fallback for full-text search: a
// case-insensitive substring match over post content. total counts every
// match, not just the returned page.
func (s *Store) SearchPosts(ctx context.Context, text string, limit, offset int) ([]PostView, int, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	match := sq.Expr("LOWER(p.content) LIKE ?", likePattern(text))

	countQuery, countArgs, err := sq.Select("COUNT(*)").
		From("posts p").
		Where(match).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build post search count: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count post search: %w", err)
	}
	if total == 0 {
		return []PostView{}, 0, nil
	}

	query, args, err := s.postQuery("").
		Where(match).
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build post search: %w", err)
	}
	posts := []PostView{}
	if err := s.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search posts: %w", err)
	}
	posts, err = s.attach(ctx, posts)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *Store) postQuery(viewerID string) sq.SelectBuilder {
	return sq.Select(postColumns, "COALESCE(v.value, 'none') AS viewer_vote").
		From("posts p").
		LeftJoin("post_votes v ON v.post_id = p.id AND v.user_id = ?", viewerID).
		PlaceholderFormat(sq.Dollar)
}

// attach loads the tags and event of every post in one query each.
func (s *Store) attach(ctx context.Context, posts []PostView) ([]PostView, error) {
	ids := make([]string, 0, len(posts))
	var eventIDs []string
	for _, post := range posts {
		ids = append(ids, post.ID)
		if post.EventID != nil {
			eventIDs = append(eventIDs, *post.EventID)
		}
	}
	tags, err := s.tagsForPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	events, err := s.eventsByID(ctx, eventIDs)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		posts[i].Tags = nonNilTags(tags[posts[i].ID])
		if posts[i].EventID != nil {
			if event, ok := events[*posts[i].EventID]; ok {
				posts[i].Event = &event
			}
		}
	}
	return posts, nil
}

func nonNilTags(tags []Tag) []Tag {
	if tags == nil {
		return []Tag{}
	}
	return tags
}

func likePattern(text string) string {
	cleaned := strings.NewReplacer("%", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(text)))
	return "%" + cleaned + "%"
}
