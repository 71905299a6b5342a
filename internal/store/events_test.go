package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEventAndAttachToPost(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()

	start := time.Date(2024, 4, 2, 18, 0, 0, 0, time.UTC)
	event, err := s.CreateEvent(ctx, NewEvent{
		OrganizerID: f.bob.ID,
		Title:       "Go meetup",
		StartsAt:    start,
		EndsAt:      start.Add(2 * time.Hour),
		Location:    "Room 101",
	})
	require.NoError(t, err)

	post, err := s.CreatePost(ctx, NewPost{AuthorID: f.bob.ID, EventID: event.ID, Content: "see you there"})
	require.NoError(t, err)
	require.NotNil(t, post.EventID)
	assert.Equal(t, event.ID, *post.EventID)
	require.NotNil(t, post.Event)
	assert.Equal(t, "Go meetup", post.Event.Title)

	listed, err := s.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, post.ID, listed[0].ID)
	require.NotNil(t, listed[0].Event)
	assert.Equal(t, event.ID, listed[0].Event.ID)
	assert.Equal(t, "Room 101", listed[0].Event.Location)
	assert.True(t, listed[0].Event.StartsAt.Equal(start))
	assert.Nil(t, listed[1].Event)
}

func TestCreatePostWithUnknownEvent(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()

	_, err := s.CreatePost(ctx, NewPost{AuthorID: f.bob.ID, EventID: "evt_missing", Content: "nope"})
	require.ErrorIs(t, err, ErrUnknownEvent)

	posts, err := s.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestCreateEventUnknownOrganizer(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2024, 4, 2, 18, 0, 0, 0, time.UTC)
	_, err := s.CreateEvent(context.Background(), NewEvent{OrganizerID: "prf_missing", Title: "x", StartsAt: start, EndsAt: start})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListEventsSkipsFinishedOnes(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()

	now := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	mk := func(organizer, title string, start time.Time) Event {
		event, err := s.CreateEvent(ctx, NewEvent{OrganizerID: organizer, Title: title, StartsAt: start, EndsAt: start.Add(time.Hour)})
		require.NoError(t, err)
		return event
	}
	mk(f.alice.ID, "past", now.Add(-48*time.Hour))
	later := mk(f.alice.ID, "later", now.Add(72*time.Hour))
	soon := mk(f.bob.ID, "soon", now.Add(24*time.Hour))

	events, err := s.ListEvents(ctx, EventFilter{From: now})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, []string{soon.ID, later.ID}, []string{events[0].ID, events[1].ID})

	events, err = s.ListEvents(ctx, EventFilter{From: now, OrganizerID: f.alice.ID})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, later.ID, events[0].ID)

	got, err := s.GetEvent(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, "soon", got.Title)
	_, err = s.GetEvent(ctx, "evt_missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	s := newTestStore(t)
	f := seedFixture(t, s)
	ctx := context.Background()

	name := "Alice A."
	github := "https://github.com/alice"
	profile, err := s.UpdateProfile(ctx, f.alice.ID, ProfileUpdate{Name: &name, GitHub: &github})
	require.NoError(t, err)
	assert.Equal(t, "Alice A.", profile.Name)
	assert.Equal(t, github, profile.GitHub)
	assert.Empty(t, profile.Bio)

	cleared := ""
	profile, err = s.UpdateProfile(ctx, f.alice.ID, ProfileUpdate{GitHub: &cleared})
	require.NoError(t, err)
	assert.Empty(t, profile.GitHub)
	assert.Equal(t, "Alice A.", profile.Name)

	profile, err = s.UpdateProfile(ctx, f.alice.ID, ProfileUpdate{})
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, profile.ID)

	_, err = s.UpdateProfile(ctx, "prf_missing", ProfileUpdate{Name: &name})
	require.ErrorIs(t, err, ErrNotFound)
}
