package store

import (
	"context"
	"fmt"
)

// Every counter column next to the aggregate its ledger implies.
const postRecountQuery = `
	SELECT p.id,
		p.score,
		COALESCE((SELECT SUM(CASE WHEN v.value = 'up' THEN 1 ELSE -1 END) FROM post_votes v WHERE v.post_id = p.id), 0),
		p.like_count,
		(SELECT COUNT(*) FROM post_likes l WHERE l.post_id = p.id),
		p.flag_count,
		(SELECT COUNT(*) FROM post_flags f WHERE f.post_id = p.id),
		p.comment_count,
		(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id)
	FROM posts p
	ORDER BY p.id
`

const commentRecountQuery = `
	SELECT c.id,
		c.score,
		COALESCE((SELECT SUM(CASE WHEN v.value = 'up' THEN 1 ELSE -1 END) FROM comment_votes v WHERE v.comment_id = c.id), 0),
		c.reply_count,
		(SELECT COUNT(*) FROM comments r WHERE r.parent_id = c.id)
	FROM comments c
	ORDER BY c.id
`

// Verify recomputes every counter from ledger rows and reports the ones that
// disagree. An empty result means the counters are consistent.
func (s *Store) Verify(ctx context.Context) ([]Drift, error) {
	drifts := []Drift{}

	rows, err := s.db.QueryxContext(ctx, postRecountQuery)
	if err != nil {
		return nil, fmt.Errorf("recount posts: %w", err)
	}
	for rows.Next() {
		var id string
		var score, votes, likes, likeRows, flags, flagRows, comments, commentRows int
		if err := rows.Scan(&id, &score, &votes, &likes, &likeRows, &flags, &flagRows, &comments, &commentRows); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan post recount: %w", err)
		}
		drifts = appendDrift(drifts, "posts", id, "score", score, votes)
		drifts = appendDrift(drifts, "posts", id, "like_count", likes, likeRows)
		drifts = appendDrift(drifts, "posts", id, "flag_count", flags, flagRows)
		drifts = appendDrift(drifts, "posts", id, "comment_count", comments, commentRows)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate post recount: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close post recount: %w", err)
	}

	rows, err = s.db.QueryxContext(ctx, commentRecountQuery)
	if err != nil {
		return nil, fmt.Errorf("recount comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var score, votes, replies, replyRows int
		if err := rows.Scan(&id, &score, &votes, &replies, &replyRows); err != nil {
			return nil, fmt.Errorf("scan comment recount: %w", err)
		}
		drifts = appendDrift(drifts, "comments", id, "score", score, votes)
		drifts = appendDrift(drifts, "comments", id, "reply_count", replies, replyRows)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comment recount: %w", err)
	}
	return drifts, nil
}

func appendDrift(drifts []Drift, table, id, column string, stored, expected int) []Drift {
	if stored == expected {
		return drifts
	}
	return append(drifts, Drift{Table: table, ID: id, Column: column, Stored: stored, Expected: expected})
}
