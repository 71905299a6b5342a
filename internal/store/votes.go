package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"forum/internal/engagement"
)

// maxVoteAttempts bounds how often a vote re-reads the ledger after losing a
// first-insert race to the same actor.
const maxVoteAttempts = 3

type voteBinding struct {
	exists string
	read   string
	insert string
	update string
	delete string
	score  counter
}

var (
	postVoteBinding = voteBinding{
		exists: `SELECT id FROM posts WHERE id = $1`,
		read:   `SELECT value FROM post_votes WHERE user_id = $1 AND post_id = $2`,
		insert: `INSERT INTO post_votes (user_id, post_id, value, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (user_id, post_id) DO NOTHING`,
		update: `UPDATE post_votes SET value = $1 WHERE user_id = $2 AND post_id = $3`,
		delete: `DELETE FROM post_votes WHERE user_id = $1 AND post_id = $2`,
		score:  postScore,
	}
	commentVoteBinding = voteBinding{
		exists: `SELECT id FROM comments WHERE id = $1`,
		read:   `SELECT value FROM comment_votes WHERE user_id = $1 AND comment_id = $2`,
		insert: `INSERT INTO comment_votes (user_id, comment_id, value, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (user_id, comment_id) DO NOTHING`,
		update: `UPDATE comment_votes SET value = $1 WHERE user_id = $2 AND comment_id = $3`,
		delete: `DELETE FROM comment_votes WHERE user_id = $1 AND comment_id = $2`,
		score:  commentScore,
	}
)

func bindVote(kind engagement.TargetKind) (voteBinding, error) {
	switch kind {
	case engagement.TargetPost:
		return postVoteBinding, nil
	case engagement.TargetComment:
		return commentVoteBinding, nil
	}
	return voteBinding{}, fmt.Errorf("%w: %d", engagement.ErrInvalidTarget, int(kind))
}

// ApplyVote toggles actorID's vote on target and moves the target's score by
// the weight difference, all in one transaction.
func (s *Store) ApplyVote(ctx context.Context, actorID string, target engagement.Target, requested engagement.VoteValue) (engagement.VoteResult, error) {
	binding, err := bindVote(target.Kind)
	if err != nil {
		return engagement.VoteResult{}, err
	}

	var result engagement.VoteResult
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireRow(ctx, tx, binding.exists, target.ID); err != nil {
			return fmt.Errorf("lookup vote target: %w", err)
		}

		for attempt := 1; ; attempt++ {
			existing, err := s.readVote(ctx, tx, binding, actorID, target.ID)
			if err != nil {
				return err
			}
			next := engagement.NextVote(existing, requested)

			switch {
			case next == engagement.VoteNone:
				if _, err := tx.ExecContext(ctx, binding.delete, actorID, target.ID); err != nil {
					return fmt.Errorf("delete vote: %w", err)
				}
			case existing != engagement.VoteNone:
				if _, err := tx.ExecContext(ctx, binding.update, string(next), actorID, target.ID); err != nil {
					return fmt.Errorf("update vote: %w", err)
				}
			default:
				res, err := tx.ExecContext(ctx, binding.insert, actorID, target.ID, string(next), s.now())
				if err != nil {
					if isForeignKeyViolation(err) {
						return fmt.Errorf("insert vote: %w", ErrNotFound)
					}
					return fmt.Errorf("insert vote: %w", err)
				}
				inserted, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("insert vote rows: %w", err)
				}
				if inserted == 0 {
					// Another transaction of the same actor committed a first
					// vote; compute against that record instead.
					if attempt >= maxVoteAttempts {
						return ErrVoteContention
					}
					continue
				}
			}

			score, err := adjust(ctx, tx, binding.score, target.ID, engagement.VoteDelta(existing, next))
			if err != nil {
				return err
			}
			result = engagement.VoteResult{Score: score, Value: next}
			return nil
		}
	})
	if err != nil {
		return engagement.VoteResult{}, err
	}
	return result, nil
}

func (s *Store) readVote(ctx context.Context, tx *sqlx.Tx, binding voteBinding, actorID, targetID string) (engagement.VoteValue, error) {
	var value string
	err := tx.QueryRowxContext(ctx, binding.read+s.dialect.lockSuffix(), actorID, targetID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return engagement.VoteNone, nil
	}
	if err != nil {
		return engagement.VoteNone, fmt.Errorf("lookup vote: %w", err)
	}
	return engagement.VoteValue(value), nil
}

// VoteOf returns actorID's stored vote on target, VoteNone when absent.
func (s *Store) VoteOf(ctx context.Context, actorID string, target engagement.Target) (engagement.VoteValue, error) {
	binding, err := bindVote(target.Kind)
	if err != nil {
		return engagement.VoteNone, err
	}
	var value string
	err = s.db.QueryRowxContext(ctx, binding.read, actorID, target.ID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return engagement.VoteNone, nil
	}
	if err != nil {
		return engagement.VoteNone, fmt.Errorf("lookup vote: %w", err)
	}
	return engagement.VoteValue(value), nil
}

func requireRow(ctx context.Context, tx *sqlx.Tx, query string, id string) error {
	var found string
	err := tx.QueryRowxContext(ctx, query, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
