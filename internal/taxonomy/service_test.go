package taxonomy

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum/internal/cache"
	"forum/internal/store"
)

type fakeTagStore struct {
	replaceFn   func(context.Context, []store.Tag) (store.SeedReport, error)
	tags        map[string]store.Tag
	rangeCalls  int
	replaceCall int
}

func (f *fakeTagStore) ReplaceTaxonomy(ctx context.Context, tags []store.Tag) (store.SeedReport, error) {
	f.replaceCall++
	if f.replaceFn != nil {
		return f.replaceFn(ctx, tags)
	}
	return store.SeedReport{Inserted: len(tags)}, nil
}

func (f *fakeTagStore) ListTags(context.Context) ([]store.Tag, error) {
	out := []store.Tag{}
	for _, tag := range f.tags {
		out = append(out, tag)
	}
	return out, nil
}

func (f *fakeTagStore) GetTag(_ context.Context, id string) (store.Tag, error) {
	tag, ok := f.tags[id]
	if !ok {
		return store.Tag{}, store.ErrNotFound
	}
	return tag, nil
}

func (f *fakeTagStore) TagRange(_ context.Context, lft, rgt int, inclusive bool) ([]string, error) {
	f.rangeCalls++
	var ids []string
	for id, tag := range f.tags {
		if inclusive && tag.Lft >= lft && tag.Rgt <= rgt {
			ids = append(ids, id)
		}
		if !inclusive && tag.Lft > lft && tag.Rgt < rgt {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func newFakeTagStore() *fakeTagStore {
	return &fakeTagStore{tags: map[string]store.Tag{
		"db":  {ID: "db", Name: "Databases", Lft: 2, Rgt: 5},
		"sql": {ID: "sql", Name: "SQL", Depth: 1, Lft: 3, Rgt: 4},
	}}
}

func TestSeedRejectsDuplicatesBeforeWriting(t *testing.T) {
	fake := newFakeTagStore()
	svc := NewService(fake, nil, nil)

	_, err := svc.Seed(context.Background(), []Node{leaf("Go"), leaf("Go")})
	require.ErrorIs(t, err, ErrDuplicateTag)
	assert.Zero(t, fake.replaceCall)
}

func TestSeedPassesLayoutToStore(t *testing.T) {
	fake := newFakeTagStore()
	var written []store.Tag
	fake.replaceFn = func(_ context.Context, tags []store.Tag) (store.SeedReport, error) {
		written = tags
		return store.SeedReport{Inserted: len(tags)}, nil
	}
	svc := NewService(fake, nil, nil)

	report, err := svc.Seed(context.Background(), []Node{{Name: "Databases", Children: []Node{leaf("SQL")}}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, []store.Tag{
		{Name: "Databases", Depth: 0, Lft: 0, Rgt: 3},
		{Name: "SQL", Depth: 1, Lft: 1, Rgt: 2},
	}, written)
}

func TestSeedWrapsStoreErrors(t *testing.T) {
	fake := newFakeTagStore()
	boom := errors.New("disk full")
	fake.replaceFn = func(context.Context, []store.Tag) (store.SeedReport, error) {
		return store.SeedReport{}, boom
	}
	_, err := NewService(fake, nil, nil).Seed(context.Background(), []Node{leaf("A")})
	require.ErrorIs(t, err, boom)
}

func TestDescendantsUsesCacheUntilReseed(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	defer redisCache.Close()

	fake := newFakeTagStore()
	svc := NewService(fake, redisCache, nil)
	ctx := context.Background()

	ids, err := svc.Descendants(ctx, "db")
	require.NoError(t, err)
	assert.Equal(t, []string{"sql"}, ids)
	ids, err = svc.Descendants(ctx, "db")
	require.NoError(t, err)
	assert.Equal(t, []string{"sql"}, ids)
	assert.Equal(t, 1, fake.rangeCalls, "second read served from cache")

	_, err = svc.Seed(ctx, []Node{leaf("Databases")})
	require.NoError(t, err)
	_, err = svc.Descendants(ctx, "db")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.rangeCalls, "seed invalidates cached sets")
}

func TestDescendantsOrSelfAndMissingTag(t *testing.T) {
	svc := NewService(newFakeTagStore(), nil, nil)
	ctx := context.Background()

	ids, err := svc.DescendantsOrSelf(ctx, "sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"sql"}, ids)

	ids, err = svc.Descendants(ctx, "sql")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = svc.Descendants(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDescendantsFallsBackWhenCacheIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	defer redisCache.Close()
	mr.Close()

	svc := NewService(newFakeTagStore(), redisCache, nil)
	ids, err := svc.Descendants(context.Background(), "db")
	require.NoError(t, err)
	assert.Equal(t, []string{"sql"}, ids)
}
