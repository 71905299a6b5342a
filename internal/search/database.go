package search

import (
	"context"
	"strings"
	"unicode"

	"forum/internal/store"
)

type postSearcher interface {
	SearchPosts(ctx context.Context, text string, limit, offset int) ([]store.PostView, int, error)
}

// Database implements Searcher over the relational store as a fallback.
type Database struct {
	store postSearcher
}

func NewDatabase(store postSearcher) *Database {
	return &Database{store: store}
}

// Healthy always returns true: if the database is down, the whole app is down.
func (d *Database) Healthy() bool {
	return true
}

func (d *Database) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	posts, total, err := d.store.SearchPosts(ctx, q.Text, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	results := make([]Result, 0, len(posts))
	for _, post := range posts {
		results = append(results, Result{
			ID:        post.ID,
			AuthorID:  post.AuthorID,
			Snippet:   snippet(post.Content, q.Text),
			CreatedAt: post.CreatedAt.Unix(),
		})
	}
	return results, total, nil
}

const snippetRadius = 60

// snippet cuts content around the first case-insensitive match of text.
// All offsets are rune indices into content.
func snippet(content, text string) string {
	runes := []rune(content)
	if len(runes) <= 2*snippetRadius {
		return content
	}
	needle := lowerRunes([]rune(strings.TrimSpace(text)))
	idx := indexFold(runes, needle)
	if idx < 0 {
		return content
	}
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(needle) + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}
	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

func lowerRunes(runes []rune) []rune {
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// indexFold returns the rune index of the first match of the lowercased
// needle in haystack, or -1.
func indexFold(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != r {
				continue outer
			}
		}
		return i
	}
	return -1
}

// RecordFor converts a stored post into its index document.
func RecordFor(post store.PostView) PostRecord {
	tagIDs := make([]string, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tagIDs = append(tagIDs, tag.ID)
	}
	return PostRecord{
		ID:        post.ID,
		AuthorID:  post.AuthorID,
		Content:   post.Content,
		TagIDs:    tagIDs,
		CreatedAt: post.CreatedAt.Unix(),
	}
}
