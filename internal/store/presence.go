package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"forum/internal/engagement"
)

type presenceBinding struct {
	insert  string
	delete  string
	counter counter
}

func bindPresence(ledger engagement.Ledger) (presenceBinding, error) {
	switch ledger {
	case engagement.LedgerLike:
		return presenceBinding{
			insert:  `INSERT INTO post_likes (user_id, post_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (user_id, post_id) DO NOTHING`,
			delete:  `DELETE FROM post_likes WHERE user_id = $1 AND post_id = $2`,
			counter: postLikes,
		}, nil
	case engagement.LedgerFlag:
		return presenceBinding{
			insert:  `INSERT INTO post_flags (user_id, post_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (user_id, post_id) DO NOTHING`,
			delete:  `DELETE FROM post_flags WHERE user_id = $1 AND post_id = $2`,
			counter: postFlags,
		}, nil
	}
	return presenceBinding{}, fmt.Errorf("%w: %q", engagement.ErrInvalidLedger, string(ledger))
}

// TogglePresence removes actorID's like or flag on postID if present and adds
// it otherwise, keeping the post's counter in step.
func (s *Store) TogglePresence(ctx context.Context, ledger engagement.Ledger, actorID, postID string) (engagement.PresenceResult, error) {
	binding, err := bindPresence(ledger)
	if err != nil {
		return engagement.PresenceResult{}, err
	}

	var result engagement.PresenceResult
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireRow(ctx, tx, postVoteBinding.exists, postID); err != nil {
			return fmt.Errorf("lookup %s target: %w", ledger, err)
		}

		removed, err := execAffected(ctx, tx, binding.delete, actorID, postID)
		if err != nil {
			return fmt.Errorf("delete %s: %w", ledger, err)
		}
		if removed > 0 {
			count, err := adjust(ctx, tx, binding.counter, postID, -1)
			if err != nil {
				return err
			}
			result = engagement.PresenceResult{Count: count, Active: false}
			return nil
		}

		inserted, err := s.insertPresence(ctx, tx, binding, ledger, actorID, postID)
		if err != nil {
			return err
		}
		delta := 0
		if inserted {
			delta = 1
		}
		count, err := adjust(ctx, tx, binding.counter, postID, delta)
		if err != nil {
			return err
		}
		result = engagement.PresenceResult{Count: count, Active: true}
		return nil
	})
	if err != nil {
		return engagement.PresenceResult{}, err
	}
	return result, nil
}

// CreateFlag records a flag without toggling: an existing flag is reported,
// not removed.
func (s *Store) CreateFlag(ctx context.Context, actorID, postID string) (engagement.FlagOutcome, int, error) {
	binding, _ := bindPresence(engagement.LedgerFlag)
	outcome := engagement.FlagAlreadyExists
	var count int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireRow(ctx, tx, postVoteBinding.exists, postID); err != nil {
			return fmt.Errorf("lookup flag target: %w", err)
		}
		inserted, err := s.insertPresence(ctx, tx, binding, engagement.LedgerFlag, actorID, postID)
		if err != nil {
			return err
		}
		delta := 0
		if inserted {
			delta = 1
			outcome = engagement.FlagCreated
		}
		count, err = adjust(ctx, tx, binding.counter, postID, delta)
		return err
	})
	if err != nil {
		return "", 0, err
	}
	return outcome, count, nil
}

// DeleteFlag removes actorID's flag, returning ErrNotFound if there was none.
func (s *Store) DeleteFlag(ctx context.Context, actorID, postID string) (int, error) {
	binding, _ := bindPresence(engagement.LedgerFlag)
	var count int
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		removed, err := execAffected(ctx, tx, binding.delete, actorID, postID)
		if err != nil {
			return fmt.Errorf("delete flag: %w", err)
		}
		if removed == 0 {
			return fmt.Errorf("delete flag: %w", ErrNotFound)
		}
		count, err = adjust(ctx, tx, binding.counter, postID, -1)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) insertPresence(ctx context.Context, tx *sqlx.Tx, binding presenceBinding, ledger engagement.Ledger, actorID, postID string) (bool, error) {
	inserted, err := execAffected(ctx, tx, binding.insert, actorID, postID, s.now())
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("insert %s: %w", ledger, ErrNotFound)
		}
		return false, fmt.Errorf("insert %s: %w", ledger, err)
	}
	return inserted > 0, nil
}

func execAffected(ctx context.Context, tx *sqlx.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
