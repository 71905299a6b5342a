package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// counter names one denormalized aggregate column. adjust is the only code
// that writes these columns after a row is created.
type counter int

const (
	postScore counter = iota
	commentScore
	postLikes
	postFlags
	postComments
	commentReplies
)

func (c counter) String() string {
	switch c {
	case postScore:
		return "posts.score"
	case commentScore:
		return "comments.score"
	case postLikes:
		return "posts.like_count"
	case postFlags:
		return "posts.flag_count"
	case postComments:
		return "posts.comment_count"
	case commentReplies:
		return "comments.reply_count"
	}
	return "unknown"
}

func (c counter) statement() (string, error) {
	switch c {
	case postScore:
		return `UPDATE posts SET score = score + $1 WHERE id = $2 RETURNING score`, nil
	case commentScore:
		return `UPDATE comments SET score = score + $1 WHERE id = $2 RETURNING score`, nil
	case postLikes:
		return `UPDATE posts SET like_count = like_count + $1 WHERE id = $2 RETURNING like_count`, nil
	case postFlags:
		return `UPDATE posts SET flag_count = flag_count + $1 WHERE id = $2 RETURNING flag_count`, nil
	case postComments:
		return `UPDATE posts SET comment_count = comment_count + $1 WHERE id = $2 RETURNING comment_count`, nil
	case commentReplies:
		return `UPDATE comments SET reply_count = reply_count + $1 WHERE id = $2 RETURNING reply_count`, nil
	}
	return "", fmt.Errorf("unknown counter %d", int(c))
}

// adjust moves a counter by delta inside tx and returns the new value. A zero
// delta reads the current value and still proves the row exists.
func adjust(ctx context.Context, tx *sqlx.Tx, c counter, id string, delta int) (int, error) {
	query, err := c.statement()
	if err != nil {
		return 0, err
	}
	var value int
	if err := tx.QueryRowxContext(ctx, query, delta, id).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("adjust %s for %s: %w", c, id, ErrNotFound)
		}
		return 0, fmt.Errorf("adjust %s: %w", c, err)
	}
	return value, nil
}
