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

// CreateComment inserts a comment and bumps the parent's reply_count (when
// replying) and the post's comment_count. Either all three writes commit or
// none do.
func (s *Store) CreateComment(ctx context.Context, input NewComment) (Comment, error) {
	comment := Comment{
		ID:        util.NewID("cmt"),
		PostID:    input.PostID,
		ParentID:  input.ParentID,
		AuthorID:  input.AuthorID,
		Content:   input.Content,
		CreatedAt: s.now(),
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireRow(ctx, tx, postVoteBinding.exists, input.PostID); err != nil {
			return fmt.Errorf("lookup comment post: %w", err)
		}

		var parent any
		if input.ParentID != "" {
			var parentPostID string
			err := tx.QueryRowxContext(ctx, `SELECT post_id FROM comments WHERE id = $1`, input.ParentID).Scan(&parentPostID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lookup parent comment: %w", ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("lookup parent comment: %w", err)
			}
			if parentPostID != input.PostID {
				return ErrParentMismatch
			}
			parent = input.ParentID
		}

		var insertedID string
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO comments (id, post_id, parent_id, author_id, content, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, comment.ID, comment.PostID, parent, comment.AuthorID, comment.Content, comment.CreatedAt).Scan(&insertedID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoRowReturned
		}
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("insert comment: %w", ErrNotFound)
			}
			return fmt.Errorf("insert comment: %w", err)
		}

		if input.ParentID != "" {
			if _, err := adjust(ctx, tx, commentReplies, input.ParentID, 1); err != nil {
				return err
			}
		}
		_, err = adjust(ctx, tx, postComments, input.PostID, 1)
		return err
	})
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

const commentColumns = "c.id, c.post_id, COALESCE(c.parent_id, '') AS parent_id, c.author_id, c.content, c.score, c.reply_count, c.created_at"

func (s *Store) GetComment(ctx context.Context, id, viewerID string) (CommentView, error) {
	query, args, err := sq.Select(commentColumns, "COALESCE(v.value, 'none') AS viewer_vote").
		From("comments c").
		LeftJoin("comment_votes v ON v.comment_id = c.id AND v.user_id = ?", viewerID).
		Where(sq.Eq{"c.id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return CommentView{}, fmt.Errorf("build comment query: %w", err)
	}
	var comment CommentView
	if err := s.db.GetContext(ctx, &comment, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommentView{}, ErrNotFound
		}
		return CommentView{}, fmt.Errorf("get comment: %w", err)
	}
	return comment, nil
}

// ListCommentLevel fetches one level of a comment tree, ranking siblings with
// ROW_NUMBER so each parent contributes at most q.Limit rows. Rows come back
// grouped by parent in rank order.
func (s *Store) ListCommentLevel(ctx context.Context, q LevelQuery) ([]CommentView, error) {
	if q.Limit <= 0 {
		return []CommentView{}, nil
	}
	if !q.TopLevel && len(q.ParentIDs) == 0 {
		return []CommentView{}, nil
	}
	order := q.Order
	if order == "" {
		order = "c.created_at DESC"
	}

	ranked := sq.Select("c.id").
		Column("ROW_NUMBER() OVER (PARTITION BY c.parent_id ORDER BY " + order + ", c.id) AS rn").
		From("comments c").
		Where(sq.Eq{"c.post_id": q.PostID})
	if q.TopLevel {
		ranked = ranked.Where("c.parent_id IS NULL")
	} else {
		ranked = ranked.Where(sq.Eq{"c.parent_id": q.ParentIDs})
	}

	query, args, err := sq.Select(commentColumns, "COALESCE(v.value, 'none') AS viewer_vote").
		FromSelect(ranked, "r").
		Join("comments c ON c.id = r.id").
		LeftJoin("comment_votes v ON v.comment_id = c.id AND v.user_id = ?", q.ViewerID).
		Where(sq.LtOrEq{"r.rn": q.Limit}).
		OrderBy("c.parent_id", "r.rn").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build comment level query: %w", err)
	}

	comments := []CommentView{}
	if err := s.db.SelectContext(ctx, &comments, query, args...); err != nil {
		return nil, fmt.Errorf("list comment level: %w", err)
	}
	return comments, nil
}
