package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"forum/internal/util"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + util.NewID("test") + "?mode=memory&cache=shared"
	db, dialect, err := Open(ctx, "sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyMigrations(ctx, db, dialect))

	clock := &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(db, dialect).WithClock(clock.Now)
}

type fixture struct {
	alice Profile
	bob   Profile
	carol Profile
	post  PostView
}

func seedFixture(t *testing.T, s *Store) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture
	var err error
	f.alice, err = s.CreateProfile(ctx, ProfileUser, "alice")
	require.NoError(t, err)
	f.bob, err = s.CreateProfile(ctx, ProfileUser, "bob")
	require.NoError(t, err)
	f.carol, err = s.CreateProfile(ctx, ProfileUser, "carol")
	require.NoError(t, err)
	f.post, err = s.CreatePost(ctx, NewPost{AuthorID: f.alice.ID, Content: "How do nested sets work?"})
	require.NoError(t, err)
	return f
}

func requireNoDrift(t *testing.T, s *Store) {
	t.Helper()
	drifts, err := s.Verify(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifts)
}
