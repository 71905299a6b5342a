package app

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"forum/internal/rbac"
	"forum/internal/store"
	"forum/internal/util"
)

var (
	linkedInPattern = regexp.MustCompile(`^https://(www\.)?linkedin\.com/.*$`)
	gitHubPattern   = regexp.MustCompile(`^https://(www\.)?github\.com/[A-Za-z0-9_-]+/?$`)
)

// UpdateProfileInput mirrors store.ProfileUpdate: omitted fields are left
// alone and an empty string clears the field.
type UpdateProfileInput struct {
	Name         *string `json:"name"`
	Bio          *string `json:"bio"`
	LinkedIn     *string `json:"linkedin"`
	GitHub       *string `json:"github"`
	PersonalSite *string `json:"personalSite"`
	Image        *string `json:"image"`
}

func (s *Service) GetProfile(ctx context.Context, profileID string) (store.Profile, error) {
	if !util.ValidID(profileID) {
		return store.Profile{}, validationError("invalid profile id", nil)
	}
	return s.store.GetProfile(ctx, profileID)
}

// UpdateProfile edits actor's own profile or an organization profile where
// actor is an officer or owner.
func (s *Service) UpdateProfile(ctx context.Context, actor rbac.Actor, profileID string, input UpdateProfileInput) (store.Profile, error) {
	if !util.ValidID(profileID) {
		return store.Profile{}, validationError("invalid profile id", nil)
	}
	if !rbac.CanActAs(actor, profileID) {
		return store.Profile{}, forbidden("You may not edit this profile")
	}

	update := store.ProfileUpdate{
		Name:         trimmed(input.Name),
		Bio:          trimmed(input.Bio),
		LinkedIn:     trimmed(input.LinkedIn),
		GitHub:       trimmed(input.GitHub),
		PersonalSite: trimmed(input.PersonalSite),
		Image:        trimmed(input.Image),
	}
	invalid := map[string]any{}
	if update.Name != nil && (*update.Name == "" || len(*update.Name) > maxFieldLength) {
		invalid["name"] = "must be 1 to 255 characters"
	}
	if v := update.LinkedIn; v != nil && *v != "" && !validProfileLink(*v, linkedInPattern) {
		invalid["linkedin"] = "must be a https://linkedin.com/ link"
	}
	if v := update.GitHub; v != nil && *v != "" && !validProfileLink(*v, gitHubPattern) {
		invalid["github"] = "must be a https://github.com/<user> link"
	}
	if v := update.PersonalSite; v != nil && *v != "" && !validProfileLink(*v, nil) {
		invalid["personalSite"] = "must be an http or https link"
	}
	if v := update.Image; v != nil && len(*v) > maxFieldLength {
		invalid["image"] = "must be at most 255 characters"
	}
	if len(invalid) > 0 {
		return store.Profile{}, validationError("invalid profile fields", invalid)
	}
	return s.store.UpdateProfile(ctx, profileID, update)
}

func validProfileLink(raw string, pattern *regexp.Regexp) bool {
	if len(raw) > maxFieldLength {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	return pattern == nil || pattern.MatchString(raw)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	out := strings.TrimSpace(*value)
	return &out
}
