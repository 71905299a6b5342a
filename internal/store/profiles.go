package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"forum/internal/util"
)

const profileColumns = `id, type, name,
	COALESCE(bio, '') AS bio,
	COALESCE(linkedin, '') AS linkedin,
	COALESCE(github, '') AS github,
	COALESCE(personal_site, '') AS personal_site,
	COALESCE(image, '') AS image,
	created_at`

func (s *Store) CreateProfile(ctx context.Context, kind ProfileType, name string) (Profile, error) {
	profile := Profile{
		ID:        util.NewID("prf"),
		Type:      kind,
		Name:      name,
		CreatedAt: s.now(),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, type, name, created_at) VALUES ($1, $2, $3, $4)
	`, profile.ID, string(profile.Type), profile.Name, profile.CreatedAt); err != nil {
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return profile, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (Profile, error) {
	var profile Profile
	err := s.db.GetContext(ctx, &profile, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile applies the non-nil fields of update and returns the result.
func (s *Store) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (Profile, error) {
	changes := map[string]any{}
	if update.Name != nil {
		changes["name"] = *update.Name
	}
	for column, value := range map[string]*string{
		"bio":           update.Bio,
		"linkedin":      update.LinkedIn,
		"github":        update.GitHub,
		"personal_site": update.PersonalSite,
		"image":         update.Image,
	} {
		if value == nil {
			continue
		}
		if *value == "" {
			changes[column] = nil
		} else {
			changes[column] = *value
		}
	}
	if len(changes) == 0 {
		return s.GetProfile(ctx, id)
	}
	changes["updated_at"] = s.now()

	query, args, err := sq.Update("profiles").
		SetMap(changes).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return Profile{}, fmt.Errorf("build profile update: %w", err)
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return Profile{}, ErrNotFound
	}
	return s.GetProfile(ctx, id)
}

// SetMembership adds userID to organizationID or changes their role.
func (s *Store) SetMembership(ctx context.Context, organizationID, userID, role string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO UPDATE SET role = excluded.role
	`, organizationID, userID, role); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("upsert membership: %w", ErrNotFound)
		}
		return fmt.Errorf("upsert membership: %w", err)
	}
	return nil
}

func (s *Store) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	memberships := []Membership{}
	if err := s.db.SelectContext(ctx, &memberships, `
		SELECT organization_id, user_id, role
		FROM organization_members
		WHERE user_id = $1
		ORDER BY organization_id
	`, userID); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return memberships, nil
}
