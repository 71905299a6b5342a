package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum/internal/config"
	"forum/internal/engagement"
	"forum/internal/store"
)

const taxonomyYAML = `
Databases:
  SQL:
  NoSQL:
Programming:
  Go:
`

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "forum.db"))
	t.Setenv("REDIS_URL", "")
	t.Setenv("MEILI_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("FORUM_TAXONOMY_FILE", filepath.Join(dir, "tags.yaml"))
	t.Setenv("FORUM_TELEMETRY_EXPORTER", "none")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestMigrateUpAndDown(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "migrate")
	require.NoError(t, err)
	_, err = run(t, "migrate")
	require.NoError(t, err, "applying twice is a no-op")
	_, err = run(t, "migrate", "--down")
	require.NoError(t, err)
}

func TestSeedTagsReportsChanges(t *testing.T) {
	dir := setupEnv(t)
	file := filepath.Join(dir, "tags.yaml")
	require.NoError(t, os.WriteFile(file, []byte(taxonomyYAML), 0o644))

	out, err := run(t, "seed-tags", "--file", file)
	require.NoError(t, err)
	var report store.SeedReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, store.SeedReport{Inserted: 5}, report)

	out, err = run(t, "seed-tags", "--file", file)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, store.SeedReport{Updated: 5}, report)
}

func TestSeedTagsRejectsMissingFile(t *testing.T) {
	dir := setupEnv(t)
	_, err := run(t, "seed-tags", "--file", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestVerifyDetectsDrift(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	dataStore, db, err := openStore(ctx, config.Load())
	require.NoError(t, err)
	author, err := dataStore.CreateProfile(ctx, store.ProfileUser, "Avery")
	require.NoError(t, err)
	post, err := dataStore.CreatePost(ctx, store.NewPost{AuthorID: author.ID, Content: "hello"})
	require.NoError(t, err)
	_, err = dataStore.ApplyVote(ctx, author.ID, engagement.Target{Kind: engagement.TargetPost, ID: post.ID}, engagement.VoteUp)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := run(t, "verify")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"ok": true`)

	dataStore, db, err = openStore(ctx, config.Load())
	require.NoError(t, err)
	_, err = dataStore.DB().ExecContext(ctx, `UPDATE posts SET score = 7 WHERE id = $1`, post.ID)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err = run(t, "verify")
	require.Error(t, err)
	assert.True(t, strings.Contains(out, `"column": "score"`), out)
}

func TestReindexRequiresMeili(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "reindex")
	require.ErrorContains(t, err, "MEILI_URL")
}

func testOptions() *rootOptions {
	cfg := config.Load()
	return &rootOptions{cfg: cfg, logger: newLogger(io.Discard, slog.LevelError)}
}

func TestServeBootstrapSeedsTaxonomy(t *testing.T) {
	dir := setupEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.yaml"), []byte(taxonomyYAML), 0o644))
	ctx := context.Background()

	deps, err := bootstrap(ctx, testOptions())
	require.NoError(t, err)
	tags, err := deps.store.ListTags(ctx)
	require.NoError(t, err)
	deps.Close()

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	assert.ElementsMatch(t, []string{"Databases", "SQL", "NoSQL", "Programming", "Go"}, names)

	// A second start keeps the ids stable.
	deps, err = bootstrap(ctx, testOptions())
	require.NoError(t, err)
	defer deps.Close()
	again, err := deps.store.ListTags(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, tags, again)
}

func TestServeBootstrapWithoutTaxonomyFile(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	deps, err := bootstrap(ctx, testOptions())
	require.NoError(t, err)
	defer deps.Close()
	tags, err := deps.store.ListTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestServeBootstrapRejectsMalformedTaxonomy(t *testing.T) {
	dir := setupEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.yaml"), []byte("Go:\n  - [broken"), 0o644))

	_, err := bootstrap(context.Background(), testOptions())
	require.Error(t, err)
}
