package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Programming(0,1) Databases(2,7){SQL(3,4) NoSQL(5,6)} Languages(8,11){Go(9,10)}
func sampleTaxonomy() []Tag {
	return []Tag{
		{Name: "Programming", Depth: 0, Lft: 0, Rgt: 1},
		{Name: "Databases", Depth: 0, Lft: 2, Rgt: 7},
		{Name: "SQL", Depth: 1, Lft: 3, Rgt: 4},
		{Name: "NoSQL", Depth: 1, Lft: 5, Rgt: 6},
		{Name: "Languages", Depth: 0, Lft: 8, Rgt: 11},
		{Name: "Go", Depth: 1, Lft: 9, Rgt: 10},
	}
}

func tagIDs(t *testing.T, s *Store) map[string]string {
	t.Helper()
	tags, err := s.ListTags(context.Background())
	require.NoError(t, err)
	ids := map[string]string{}
	for _, tag := range tags {
		ids[tag.Name] = tag.ID
	}
	return ids
}

func TestReplaceTaxonomyIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	report, err := s.ReplaceTaxonomy(ctx, sampleTaxonomy())
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Inserted: 6}, report)
	first := tagIDs(t, s)

	report, err = s.ReplaceTaxonomy(ctx, sampleTaxonomy())
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Updated: 6}, report)
	assert.Equal(t, first, tagIDs(t, s), "ids are stable across reseeds")

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 6)
	assert.Equal(t, "Programming", tags[0].Name)
	assert.Equal(t, "Go", tags[5].Name)
}

func TestReplaceTaxonomyRemovesStaleNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.ReplaceTaxonomy(ctx, sampleTaxonomy())
	require.NoError(t, err)

	report, err := s.ReplaceTaxonomy(ctx, []Tag{
		{Name: "Databases", Depth: 0, Lft: 0, Rgt: 3},
		{Name: "SQL", Depth: 1, Lft: 1, Rgt: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Updated: 2, Removed: 4}, report)

	databases, err := s.GetTag(ctx, tagIDs(t, s)["Databases"])
	require.NoError(t, err)
	assert.Equal(t, 0, databases.Lft)
	assert.Equal(t, 3, databases.Rgt)
}

func TestTagRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.ReplaceTaxonomy(ctx, sampleTaxonomy())
	require.NoError(t, err)
	ids := tagIDs(t, s)

	strict, err := s.TagRange(ctx, 2, 7, false)
	require.NoError(t, err)
	assert.Equal(t, []string{ids["SQL"], ids["NoSQL"]}, strict)

	inclusive, err := s.TagRange(ctx, 2, 7, true)
	require.NoError(t, err)
	assert.Equal(t, []string{ids["Databases"], ids["SQL"], ids["NoSQL"]}, inclusive)

	leaf, err := s.TagRange(ctx, 3, 4, false)
	require.NoError(t, err)
	assert.Empty(t, leaf)
}

func TestGetTagsByIDsRejectsUnknown(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.ReplaceTaxonomy(ctx, sampleTaxonomy())
	require.NoError(t, err)
	ids := tagIDs(t, s)

	tags, err := s.GetTagsByIDs(ctx, []string{ids["Go"], ids["SQL"]})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "SQL", tags[0].Name)

	_, err = s.GetTagsByIDs(ctx, []string{ids["Go"], "tag_nope"})
	require.ErrorIs(t, err, ErrUnknownTag)

	_, err = s.GetTag(ctx, "tag_nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPostsFiltersByTagSubtree(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()
	_, err := s.ReplaceTaxonomy(ctx, sampleTaxonomy())
	require.NoError(t, err)
	ids := tagIDs(t, s)

	sqlPost, err := s.CreatePost(ctx, NewPost{AuthorID: f.bob.ID, Content: "joins", TagIDs: []string{ids["SQL"]}})
	require.NoError(t, err)
	require.Len(t, sqlPost.Tags, 1)
	goSQLPost, err := s.CreatePost(ctx, NewPost{AuthorID: f.bob.ID, Content: "database/sql", TagIDs: []string{ids["Go"], ids["SQL"]}})
	require.NoError(t, err)
	_, err = s.CreatePost(ctx, NewPost{AuthorID: f.bob.ID, Content: "goroutines", TagIDs: []string{ids["Go"]}})
	require.NoError(t, err)

	posts, err := s.ListPosts(ctx, PostFilter{TagIDs: []string{ids["Databases"]}})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, goSQLPost.ID, posts[0].ID, "newest first")
	assert.Equal(t, sqlPost.ID, posts[1].ID)

	posts, err = s.ListPosts(ctx, PostFilter{TagIDs: []string{ids["Databases"], ids["Languages"]}})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, goSQLPost.ID, posts[0].ID)
	require.Len(t, posts[0].Tags, 2)
	assert.Equal(t, "SQL", posts[0].Tags[0].Name, "tags come back in layout order")

	posts, err = s.ListPosts(ctx, PostFilter{TagIDs: []string{ids["NoSQL"]}})
	require.NoError(t, err)
	assert.Empty(t, posts)

	posts, err = s.ListPosts(ctx, PostFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	posts, err = s.ListPosts(ctx, PostFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, f.post.ID, posts[1].ID)
}

func TestCreatePostUnknownTagRollsBack(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()

	_, err := s.CreatePost(ctx, NewPost{AuthorID: f.bob.ID, Content: "bad tag", TagIDs: []string{"tag_missing"}})
	require.ErrorIs(t, err, ErrUnknownTag)

	posts, err := s.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestSearchPostsFallback(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()

	hits, total, err := s.SearchPosts(ctx, "NESTED", 10, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, f.post.ID, hits[0].ID)

	hits, total, err = s.SearchPosts(ctx, "100%", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Zero(t, total)
}

func TestSearchPostsPagesWithTotal(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		post, err := s.CreatePost(ctx, NewPost{AuthorID: f.bob.ID, Content: fmt.Sprintf("needle %d", i)})
		require.NoError(t, err)
		ids = append([]string{post.ID}, ids...)
	}

	first, total, err := s.SearchPosts(ctx, "needle", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	second, total, err := s.SearchPosts(ctx, "needle", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	last, _, err := s.SearchPosts(ctx, "needle", 2, 4)
	require.NoError(t, err)

	var got []string
	for _, page := range [][]PostView{first, second, last} {
		for _, post := range page {
			got = append(got, post.ID)
		}
	}
	assert.Equal(t, ids, got)
}
