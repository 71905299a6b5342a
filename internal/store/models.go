package store

import (
	"time"

	"forum/internal/engagement"
)

type ProfileType string

const (
	ProfileUser         ProfileType = "user"
	ProfileOrganization ProfileType = "organization"
)

type Profile struct {
	ID           string      `db:"id" json:"id"`
	Type         ProfileType `db:"type" json:"type"`
	Name         string      `db:"name" json:"name"`
	Bio          string      `db:"bio" json:"bio,omitempty"`
	LinkedIn     string      `db:"linkedin" json:"linkedin,omitempty"`
	GitHub       string      `db:"github" json:"github,omitempty"`
	PersonalSite string      `db:"personal_site" json:"personalSite,omitempty"`
	Image        string      `db:"image" json:"image,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
}

// ProfileUpdate carries the fields to change; nil leaves a field as is and
// an empty string clears it.
type ProfileUpdate struct {
	Name         *string
	Bio          *string
	LinkedIn     *string
	GitHub       *string
	PersonalSite *string
	Image        *string
}

type Event struct {
	ID          string    `db:"id" json:"id"`
	OrganizerID string    `db:"organizer_id" json:"organizerId"`
	Title       string    `db:"title" json:"title"`
	StartsAt    time.Time `db:"starts_at" json:"startsAt"`
	EndsAt      time.Time `db:"ends_at" json:"endsAt"`
	AllDay      bool      `db:"all_day" json:"allDay"`
	Location    string    `db:"location" json:"location,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type NewEvent struct {
	OrganizerID string
	Title       string
	StartsAt    time.Time
	EndsAt      time.Time
	AllDay      bool
	Location    string
}

// EventFilter lists events ending at or after From, soonest first.
type EventFilter struct {
	OrganizerID string
	From        time.Time
	Limit       int
}

type Membership struct {
	OrganizationID string `db:"organization_id" json:"organizationId"`
	UserID         string `db:"user_id" json:"userId"`
	Role           string `db:"role" json:"role"`
}

// Tag is one node of the taxonomy. A tag T' is a descendant of T exactly when
// T.Lft < T'.Lft and T'.Rgt < T.Rgt.
type Tag struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Depth int    `db:"depth" json:"depth"`
	Lft   int    `db:"lft" json:"lft"`
	Rgt   int    `db:"rgt" json:"rgt"`
}

func (t Tag) Contains(other Tag) bool {
	return t.Lft <= other.Lft && other.Rgt <= t.Rgt
}

type SeedReport struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
}

type Post struct {
	ID           string    `db:"id" json:"id"`
	AuthorID     string    `db:"author_id" json:"authorId"`
	EventID      *string   `db:"event_id" json:"eventId,omitempty"`
	Content      string    `db:"content" json:"content"`
	Score        int       `db:"score" json:"score"`
	LikeCount    int       `db:"like_count" json:"likeCount"`
	FlagCount    int       `db:"flag_count" json:"flagCount"`
	CommentCount int       `db:"comment_count" json:"commentCount"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// PostView is a post as seen by one viewer.
type PostView struct {
	Post
	ViewerVote engagement.VoteValue `db:"viewer_vote" json:"viewerVote"`
	Tags       []Tag                `db:"-" json:"tags"`
	Event      *Event               `db:"-" json:"event,omitempty"`
}

type NewPost struct {
	AuthorID string
	EventID  string
	Content  string
	TagIDs   []string
}

type PostFilter struct {
	ViewerID string
	TagIDs   []string
	Limit    int
	Offset   int
}

type Comment struct {
	ID         string    `db:"id" json:"id"`
	PostID     string    `db:"post_id" json:"postId"`
	ParentID   string    `db:"parent_id" json:"parentId,omitempty"`
	AuthorID   string    `db:"author_id" json:"authorId"`
	Content    string    `db:"content" json:"content"`
	Score      int       `db:"score" json:"score"`
	ReplyCount int       `db:"reply_count" json:"replyCount"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type CommentView struct {
	Comment
	ViewerVote engagement.VoteValue `db:"viewer_vote" json:"viewerVote"`
}

type NewComment struct {
	PostID   string
	ParentID string
	AuthorID string
	Content  string
}

// LevelQuery selects one level of a comment tree: either the top-level
// comments of a post or the replies to a set of parents, at most Limit per
// parent, in Order.
type LevelQuery struct {
	PostID    string
	ParentIDs []string
	TopLevel  bool
	Order     string
	Limit     int
	ViewerID  string
}

// Drift is a counter whose stored value disagrees with its ledger.
type Drift struct {
	Table    string `json:"table"`
	ID       string `json:"id"`
	Column   string `json:"column"`
	Stored   int    `json:"stored"`
	Expected int    `json:"expected"`
}
