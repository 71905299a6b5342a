package app

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"forum/internal/rbac"
	"forum/internal/store"
	"forum/internal/util"
)

const maxFieldLength = 255

type CreateEventInput struct {
	OrganizerID string    `json:"organizerId"`
	Title       string    `json:"title"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
	AllDay      bool      `json:"allDay"`
}

// CreateEvent schedules an event organized by actor or by an organization
// actor may act for. All-day events are stored as whole UTC days.
func (s *Service) CreateEvent(ctx context.Context, actor rbac.Actor, input CreateEventInput) (event store.Event, err error) {
	organizerID := firstNonBlank(input.OrganizerID, actor.ID)
	if !rbac.CanActAs(actor, organizerID) {
		return store.Event{}, forbidden("You may not organize events for this profile")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Event{}, validationError("title is required", nil)
	}
	location := strings.TrimSpace(input.Location)
	if len(title) > maxFieldLength || len(location) > maxFieldLength {
		return store.Event{}, validationError("title and location are limited to 255 characters", nil)
	}
	if input.StartsAt.IsZero() || input.EndsAt.IsZero() {
		return store.Event{}, validationError("startsAt and endsAt are required", nil)
	}
	start, end := input.StartsAt.UTC(), input.EndsAt.UTC()
	if input.AllDay {
		start, end = start.Truncate(24*time.Hour), end.Truncate(24*time.Hour)
	}
	now := s.now().UTC()
	if input.AllDay {
		now = now.Truncate(24 * time.Hour)
	}
	if start.Before(now) {
		return store.Event{}, validationError("event must not start in the past", nil)
	}
	if end.Before(start) {
		return store.Event{}, validationError("event must not end before it starts", nil)
	}

	ctx, op := s.telemetry.Start(ctx, "event.create", attribute.String("organizer.id", organizerID))
	defer func() { op.End(ctx, err) }()

	return s.store.CreateEvent(ctx, store.NewEvent{
		OrganizerID: organizerID,
		Title:       title,
		StartsAt:    start,
		EndsAt:      end,
		AllDay:      input.AllDay,
		Location:    location,
	})
}

// ListEvents returns events that have not ended yet, soonest first.
func (s *Service) ListEvents(ctx context.Context, organizerID string, limit int) ([]store.Event, error) {
	organizerID = strings.TrimSpace(organizerID)
	if organizerID != "" && !util.ValidID(organizerID) {
		return nil, validationError("invalid organizer id", nil)
	}
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.store.ListEvents(ctx, store.EventFilter{
		OrganizerID: organizerID,
		From:        s.now(),
		Limit:       limit,
	})
}
