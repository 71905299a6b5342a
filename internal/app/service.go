package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"forum/internal/auth"
	"forum/internal/config"
	"forum/internal/engagement"
	"forum/internal/rbac"
	"forum/internal/search"
	"forum/internal/store"
	"forum/internal/taxonomy"
	"forum/internal/telemetry"
	"forum/internal/thread"
	"forum/internal/util"
)

const maxPageSize = 100

type CreatePostInput struct {
	AuthorID string   `json:"authorId"`
	EventID  string   `json:"eventId"`
	Content  string   `json:"content"`
	TagIDs   []string `json:"tagIds"`
}

type CreateCommentInput struct {
	AuthorID string `json:"authorId"`
	ParentID string `json:"parentId"`
	Content  string `json:"content"`
}

type ListPostsInput struct {
	TagIDs []string
	Limit  int
	Offset int
}

// ThreadLocation is where a freshly created comment can be seen.
type ThreadLocation struct {
	PostID   string `json:"postId"`
	ParentID string `json:"parentId,omitempty"`
	Path     string `json:"path"`
}

type dataStore interface {
	Ping(context.Context) error
	ApplyVote(context.Context, string, engagement.Target, engagement.VoteValue) (engagement.VoteResult, error)
	TogglePresence(context.Context, engagement.Ledger, string, string) (engagement.PresenceResult, error)
	CreateFlag(context.Context, string, string) (engagement.FlagOutcome, int, error)
	DeleteFlag(context.Context, string, string) (int, error)
	CreatePost(context.Context, store.NewPost) (store.PostView, error)
	ListPosts(context.Context, store.PostFilter) ([]store.PostView, error)
	GetTagsByIDs(context.Context, []string) ([]store.Tag, error)
	CreateComment(context.Context, store.NewComment) (store.Comment, error)
	ListMemberships(context.Context, string) ([]store.Membership, error)
	CreateEvent(context.Context, store.NewEvent) (store.Event, error)
	ListEvents(context.Context, store.EventFilter) ([]store.Event, error)
	GetProfile(context.Context, string) (store.Profile, error)
	UpdateProfile(context.Context, string, store.ProfileUpdate) (store.Profile, error)
}

type taxonomyService interface {
	List(context.Context) ([]store.Tag, error)
	Descendants(context.Context, string) ([]string, error)
	DescendantsOrSelf(context.Context, string) ([]string, error)
}

type threadFetcher interface {
	Fetch(context.Context, thread.Request) (thread.Thread, error)
}

type postSearch interface {
	Search(context.Context, search.Query) search.Response
	IndexPost(search.PostRecord)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	tags      taxonomyService
	threads   threadFetcher
	search    postSearch
	signer    *auth.Signer
	telemetry *telemetry.Instruments
	logger    *slog.Logger
	now       func() time.Time
}

func New(
	cfg config.Config,
	dataStore *store.Store,
	tags *taxonomy.Service,
	threads *thread.Aggregator,
	searchService *search.Service,
	instruments *telemetry.Instruments,
	logger *slog.Logger,
) *Service {
	if instruments == nil {
		instruments = telemetry.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	service := &Service{
		cfg:       cfg,
		store:     dataStore,
		tags:      tags,
		threads:   threads,
		signer:    auth.NewSigner([]byte(cfg.TokenSecret), cfg.TokenTTL),
		telemetry: instruments,
		logger:    logger,
		now:       time.Now,
	}
	if searchService != nil {
		service.search = searchService
	}
	return service
}

// ActorFromToken resolves a bearer token to the acting user and the
// organizations they belong to.
func (s *Service) ActorFromToken(ctx context.Context, token string) (rbac.Actor, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return rbac.Actor{}, err
	}
	memberships, err := s.store.ListMemberships(ctx, claims.Subject)
	if err != nil {
		return rbac.Actor{}, fmt.Errorf("load memberships: %w", err)
	}
	actor := rbac.Actor{ID: claims.Subject, Name: claims.Name}
	for _, membership := range memberships {
		actor.Memberships = append(actor.Memberships, rbac.Membership{
			OrganizationID: membership.OrganizationID,
			Role:           rbac.Normalize(membership.Role),
		})
	}
	return actor, nil
}

func (s *Service) ToggleVote(ctx context.Context, actor rbac.Actor, kind engagement.TargetKind, targetID, rawValue string) (result engagement.VoteResult, err error) {
	if !util.ValidID(targetID) {
		return engagement.VoteResult{}, validationError("invalid target id", nil)
	}
	value, err := engagement.ParseVoteValue(rawValue)
	if err != nil {
		return engagement.VoteResult{}, validationError("value must be one of up, down.incorrect, down.harmful, down.spam", map[string]any{"value": rawValue})
	}

	ctx, op := s.telemetry.Start(ctx, "vote.toggle",
		attribute.String("target.kind", kind.String()),
		attribute.String("target.id", targetID),
	)
	defer func() { op.End(ctx, err) }()

	result, err = s.store.ApplyVote(ctx, actor.ID, engagement.Target{Kind: kind, ID: targetID}, value)
	if err != nil {
		return engagement.VoteResult{}, err
	}
	state := string(result.Value)
	op.SetAttributes(attribute.Int("score", result.Score), attribute.String("value", state))
	s.telemetry.CountReaction(ctx, "vote", state)
	return result, nil
}

func (s *Service) TogglePresence(ctx context.Context, actor rbac.Actor, ledger engagement.Ledger, postID string) (result engagement.PresenceResult, err error) {
	if !util.ValidID(postID) {
		return engagement.PresenceResult{}, validationError("invalid post id", nil)
	}
	if !ledger.Valid() {
		return engagement.PresenceResult{}, validationError("unknown reaction", nil)
	}

	ctx, op := s.telemetry.Start(ctx, string(ledger)+".toggle", attribute.String("post.id", postID))
	defer func() { op.End(ctx, err) }()

	result, err = s.store.TogglePresence(ctx, ledger, actor.ID, postID)
	if err != nil {
		return engagement.PresenceResult{}, err
	}
	op.SetAttributes(attribute.Int("count", result.Count), attribute.Bool("active", result.Active))
	s.telemetry.CountReaction(ctx, string(ledger), presenceState(result.Active))
	return result, nil
}

func (s *Service) CreateFlag(ctx context.Context, actor rbac.Actor, postID string) (outcome engagement.FlagOutcome, count int, err error) {
	if !util.ValidID(postID) {
		return "", 0, validationError("invalid post id", nil)
	}

	ctx, op := s.telemetry.Start(ctx, "flag.create", attribute.String("post.id", postID))
	defer func() { op.End(ctx, err) }()

	outcome, count, err = s.store.CreateFlag(ctx, actor.ID, postID)
	if err != nil {
		return "", 0, err
	}
	op.SetAttributes(attribute.String("outcome", string(outcome)))
	if outcome == engagement.FlagCreated {
		s.telemetry.CountReaction(ctx, string(engagement.LedgerFlag), presenceState(true))
	}
	return outcome, count, nil
}

func (s *Service) DeleteFlag(ctx context.Context, actor rbac.Actor, postID string) (count int, err error) {
	if !util.ValidID(postID) {
		return 0, validationError("invalid post id", nil)
	}

	ctx, op := s.telemetry.Start(ctx, "flag.delete", attribute.String("post.id", postID))
	defer func() { op.End(ctx, err) }()

	count, err = s.store.DeleteFlag(ctx, actor.ID, postID)
	if err != nil {
		return 0, err
	}
	s.telemetry.CountReaction(ctx, string(engagement.LedgerFlag), presenceState(false))
	return count, nil
}

func presenceState(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

// CreatePost publishes content as actor or as an organization actor may act
// for.
func (s *Service) CreatePost(ctx context.Context, actor rbac.Actor, input CreatePostInput) (post store.PostView, err error) {
	authorID := firstNonBlank(input.AuthorID, actor.ID)
	if !rbac.CanActAs(actor, authorID) {
		return store.PostView{}, forbidden("You may not post as this profile")
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return store.PostView{}, validationError("content is required", nil)
	}
	tagIDs, err := normalizeIDs(input.TagIDs, "tagIds")
	if err != nil {
		return store.PostView{}, err
	}
	eventID := strings.TrimSpace(input.EventID)
	if eventID != "" && !util.ValidID(eventID) {
		return store.PostView{}, validationError("invalid event id", nil)
	}

	ctx, op := s.telemetry.Start(ctx, "post.create",
		attribute.String("author.id", authorID),
		attribute.Int("tags", len(tagIDs)),
	)
	defer func() { op.End(ctx, err) }()

	post, err = s.store.CreatePost(ctx, store.NewPost{AuthorID: authorID, EventID: eventID, Content: content, TagIDs: tagIDs})
	if err != nil {
		return store.PostView{}, err
	}
	if s.search != nil {
		s.search.IndexPost(search.RecordFor(post))
	}
	return post, nil
}

// ListPosts returns the newest posts carrying every requested tag or one of
// its descendants.
func (s *Service) ListPosts(ctx context.Context, viewerID string, input ListPostsInput) ([]store.PostView, error) {
	tagIDs, err := normalizeIDs(input.TagIDs, "t")
	if err != nil {
		return nil, err
	}
	if len(tagIDs) > 0 {
		if _, err := s.store.GetTagsByIDs(ctx, tagIDs); err != nil {
			return nil, err
		}
	}
	limit := input.Limit
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	return s.store.ListPosts(ctx, store.PostFilter{
		ViewerID: viewerID,
		TagIDs:   tagIDs,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Service) SearchPosts(ctx context.Context, text string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validationError("q is required", nil)
	}
	if limit <= 0 || limit > maxPageSize {
		limit = s.cfg.PageSize
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{Text: text, Limit: limit, Offset: offset}), nil
}

// CreateComment adds a comment or reply and reports where it can be viewed.
func (s *Service) CreateComment(ctx context.Context, actor rbac.Actor, postID string, input CreateCommentInput) (location ThreadLocation, err error) {
	if !util.ValidID(postID) {
		return ThreadLocation{}, validationError("invalid post id", nil)
	}
	parentID := strings.TrimSpace(input.ParentID)
	if parentID != "" && !util.ValidID(parentID) {
		return ThreadLocation{}, validationError("invalid parent id", nil)
	}
	authorID := firstNonBlank(input.AuthorID, actor.ID)
	if !rbac.CanActAs(actor, authorID) {
		return ThreadLocation{}, forbidden("You may not comment as this profile")
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return ThreadLocation{}, validationError("content is required", nil)
	}

	ctx, op := s.telemetry.Start(ctx, "comment.create",
		attribute.String("post.id", postID),
		attribute.Bool("reply", parentID != ""),
	)
	defer func() { op.End(ctx, err) }()

	comment, err := s.store.CreateComment(ctx, store.NewComment{
		PostID:   postID,
		ParentID: parentID,
		AuthorID: authorID,
		Content:  content,
	})
	if err != nil {
		return ThreadLocation{}, err
	}
	op.SetAttributes(attribute.String("comment.id", comment.ID))
	return threadLocation(comment.PostID, comment.ParentID), nil
}

func threadLocation(postID, parentID string) ThreadLocation {
	path := "/api/posts/" + postID + "/thread?sortBy=" + string(thread.SortRecent)
	if parentID != "" {
		path += "&parent=" + parentID
	}
	return ThreadLocation{PostID: postID, ParentID: parentID, Path: path}
}

func (s *Service) FetchThread(ctx context.Context, viewerID, postID, parentID, sortBy string) (thread.Thread, error) {
	if !util.ValidID(postID) {
		return thread.Thread{}, validationError("invalid post id", nil)
	}
	parentID = strings.TrimSpace(parentID)
	if parentID != "" && !util.ValidID(parentID) {
		return thread.Thread{}, validationError("invalid parent id", nil)
	}
	return s.threads.Fetch(ctx, thread.Request{
		PostID:   postID,
		ParentID: parentID,
		Sort:     thread.ParseSort(sortBy),
		ViewerID: viewerID,
	})
}

func (s *Service) ListTags(ctx context.Context) ([]store.Tag, error) {
	return s.tags.List(ctx)
}

func (s *Service) TagDescendants(ctx context.Context, tagID string, includeSelf bool) ([]string, error) {
	if !util.ValidID(tagID) {
		return nil, validationError("invalid tag id", nil)
	}
	if includeSelf {
		return s.tags.DescendantsOrSelf(ctx, tagID)
	}
	return s.tags.Descendants(ctx, tagID)
}

func (s *Service) LoginURL() string {
	return s.cfg.LoginURL
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func normalizeIDs(values []string, field string) ([]string, error) {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if !util.ValidID(value) {
			return nil, validationError("invalid id in "+field, map[string]any{"id": value})
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out, nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
