package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"forum/internal/util"
)

const eventColumns = "id, organizer_id, title, starts_at, ends_at, all_day, COALESCE(location, '') AS location, created_at"

func (s *Store) CreateEvent(ctx context.Context, input NewEvent) (Event, error) {
	event := Event{
		ID:          util.NewID("evt"),
		OrganizerID: input.OrganizerID,
		Title:       input.Title,
		StartsAt:    input.StartsAt.UTC(),
		EndsAt:      input.EndsAt.UTC(),
		AllDay:      input.AllDay,
		Location:    input.Location,
		CreatedAt:   s.now(),
	}
	var location any
	if strings.TrimSpace(event.Location) != "" {
		location = event.Location
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, organizer_id, title, starts_at, ends_at, all_day, location, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, event.OrganizerID, event.Title, event.StartsAt, event.EndsAt, event.AllDay, location, event.CreatedAt); err != nil {
		if isForeignKeyViolation(err) {
			return Event{}, fmt.Errorf("insert event: %w", ErrNotFound)
		}
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (Event, error) {
	var event Event
	err := s.db.GetContext(ctx, &event, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListEvents returns events that have not ended by filter.From.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	builder := sq.Select(eventColumns).
		From("events").
		Where(sq.GtOrEq{"ends_at": filter.From.UTC()}).
		OrderBy("starts_at", "id").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar)
	if filter.OrganizerID != "" {
		builder = builder.Where(sq.Eq{"organizer_id": filter.OrganizerID})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build event listing: %w", err)
	}
	events := []Event{}
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *Store) eventsByID(ctx context.Context, ids []string) (map[string]Event, error) {
	byID := map[string]Event{}
	if len(ids) == 0 {
		return byID, nil
	}
	query, args, err := sq.Select(eventColumns).
		From("events").
		Where(sq.Eq{"id": ids}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build event lookup: %w", err)
	}
	events := []Event{}
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("load post events: %w", err)
	}
	for _, event := range events {
		byID[event.ID] = event
	}
	return byID, nil
}
