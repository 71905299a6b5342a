package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum/internal/store"
)

type fakePosts struct {
	posts  []store.PostView
	err    error
	limit  int
	offset int
}

func (f *fakePosts) SearchPosts(_ context.Context, text string, limit, offset int) ([]store.PostView, int, error) {
	f.limit, f.offset = limit, offset
	if f.err != nil {
		return nil, 0, f.err
	}
	var matches []store.PostView
	for _, post := range f.posts {
		if strings.Contains(strings.ToLower(post.Content), strings.ToLower(text)) {
			matches = append(matches, post)
		}
	}
	if offset > len(matches) {
		offset = len(matches)
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end], len(matches), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceFallsBackToDatabaseWithoutMeili(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	posts := &fakePosts{posts: []store.PostView{
		{Post: store.Post{ID: "pst_1", AuthorID: "usr_1", Content: "Goroutines and channels", CreatedAt: created}},
		{Post: store.Post{ID: "pst_2", AuthorID: "usr_2", Content: "Indexes in Postgres", CreatedAt: created}},
	}}
	svc := NewService(nil, NewDatabase(posts), quietLogger())

	resp := svc.Search(context.Background(), Query{Text: "channels"})
	assert.Equal(t, "database", resp.Engine)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, Result{ID: "pst_1", AuthorID: "usr_1", Snippet: "Goroutines and channels", CreatedAt: created.Unix()}, resp.Results[0])
	assert.Equal(t, 20, posts.limit)
}

func TestServiceReturnsEmptyResultsOnDatabaseError(t *testing.T) {
	svc := NewService(nil, NewDatabase(&fakePosts{err: errors.New("boom")}), quietLogger())

	resp := svc.Search(context.Background(), Query{Text: "x"})
	assert.Equal(t, []Result{}, resp.Results)
	assert.Equal(t, 0, resp.Total)
}

func TestDatabaseSearchBlankQuery(t *testing.T) {
	posts := &fakePosts{}
	results, total, err := NewDatabase(posts).Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, total)
	assert.Zero(t, posts.limit)
}

func TestIndexPostWithoutMeiliIsNoop(t *testing.T) {
	svc := NewService(nil, NewDatabase(&fakePosts{}), quietLogger())
	svc.IndexPost(PostRecord{ID: "pst_1"})
	require.NoError(t, svc.ReindexAll([]PostRecord{{ID: "pst_1"}}))
}

func TestSnippetCutsAroundMatch(t *testing.T) {
	content := strings.Repeat("a", 100) + " needle " + strings.Repeat("b", 100)
	got := snippet(content, "NEEDLE")
	assert.True(t, strings.HasPrefix(got, "…"))
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Contains(t, got, "needle")
	assert.Less(t, len(got), len(content))

	assert.Equal(t, "short text", snippet("short text", "text"))
}

func TestSnippetWithCaseMappingThatGrowsBytes(t *testing.T) {
	// Ⱥ is two bytes but lowercases to the three byte ⱥ.
	content := strings.Repeat("Ⱥ", 200) + " needle here"
	got := snippet(content, "needle")
	assert.True(t, strings.HasPrefix(got, "…"+strings.Repeat("Ⱥ", 59)))
	assert.True(t, strings.HasSuffix(got, "needle here"))

	got = snippet(strings.Repeat("x", 80)+"ȺȺ NEEDLE"+strings.Repeat("y", 80), "ⱥⱥ needle")
	assert.Contains(t, got, "ȺȺ NEEDLE")
}

func TestDatabaseSearchPagesWithTotal(t *testing.T) {
	posts := &fakePosts{}
	for i := 0; i < 5; i++ {
		posts.posts = append(posts.posts, store.PostView{Post: store.Post{ID: fmt.Sprintf("pst_%d", i), Content: "needle"}})
	}
	db := NewDatabase(posts)

	first, total, err := db.Search(context.Background(), Query{Text: "needle", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	second, total, err := db.Search(context.Background(), Query{Text: "needle", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 2, posts.offset)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, []string{"pst_0", "pst_1", "pst_2", "pst_3"}, []string{first[0].ID, first[1].ID, second[0].ID, second[1].ID})
}

func TestHitToResultPrefersHighlightedContent(t *testing.T) {
	hit := meili.Hit{
		"id":        json.RawMessage(`"pst_1"`),
		"authorId":  json.RawMessage(`"usr_1"`),
		"content":   json.RawMessage(`"learning go"`),
		"createdAt": json.RawMessage(`1709294400`),
		"tagIds":    json.RawMessage(`["tag_go"]`),
		"_formatted": json.RawMessage(`{
			"id": "pst_1",
			"content": "learning <mark>go</mark>",
			"createdAt": "1709294400",
			"tagIds": ["tag_go"]
		}`),
	}

	assert.Equal(t, Result{
		ID:        "pst_1",
		AuthorID:  "usr_1",
		Snippet:   "learning <mark>go</mark>",
		CreatedAt: 1709294400,
	}, hitToResult(hit))
}

func TestHitToResultWithoutFormatted(t *testing.T) {
	hit := meili.Hit{
		"id":      json.RawMessage(`"pst_2"`),
		"content": json.RawMessage(`"plain"`),
	}
	assert.Equal(t, Result{ID: "pst_2", Snippet: "plain"}, hitToResult(hit))
}
