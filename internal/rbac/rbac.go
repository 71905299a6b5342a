package rbac

// Role is a user's standing inside an organization profile.
type Role string

const (
	RoleMember  Role = "member"
	RoleOfficer Role = "officer"
	RoleOwner   Role = "owner"
)

type Membership struct {
	OrganizationID string `json:"organizationId"`
	Role           Role   `json:"role"`
}

// Actor is the authenticated user behind a request.
type Actor struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Memberships []Membership `json:"memberships"`
}

// CanPostAs reports whether a role may author content under the organization.
func CanPostAs(role Role) bool {
	switch role {
	case RoleOwner, RoleOfficer:
		return true
	default:
		return false
	}
}

// CanActAs reports whether actor may act as profileID: their own profile, or
// an organization where they hold more than plain membership.
func CanActAs(actor Actor, profileID string) bool {
	if actor.ID == "" || profileID == "" {
		return false
	}
	if actor.ID == profileID {
		return true
	}
	for _, membership := range actor.Memberships {
		if membership.OrganizationID == profileID && CanPostAs(membership.Role) {
			return true
		}
	}
	return false
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleOfficer, RoleOwner:
		return Role(role)
	default:
		return RoleMember
	}
}
