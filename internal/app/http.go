package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"forum/internal/auth"
	"forum/internal/engagement"
	"forum/internal/rbac"
	"forum/internal/store"
	"forum/internal/thread"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: service.logger}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	switch parts[1] {
	case "tags":
		s.handleTags(w, r, parts)
	case "posts":
		s.handlePosts(w, r, parts)
	case "events":
		s.handleEvents(w, r, parts)
	case "profiles":
		s.handleProfiles(w, r, parts)
	case "comments":
		if len(parts) == 4 && parts[3] == "votes" && r.Method == http.MethodPost {
			s.handleVote(w, r, engagement.TargetComment, parts[2])
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 2 {
		tags, err := s.service.ListTags(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
		return
	}

	if len(parts) == 4 && parts[3] == "descendants" {
		includeSelf := queryBool(r, "self")
		ids, err := s.service.TagDescendants(r.Context(), parts[2], includeSelf)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tagId": parts[2], "descendants": ids})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handlePosts(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			s.handleListPosts(w, r)
		case http.MethodPost:
			s.handleCreatePost(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 3 && parts[2] == "search" && r.Method == http.MethodGet {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		response, err := s.service.SearchPosts(r.Context(), r.URL.Query().Get("q"), limit, offset)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	if len(parts) != 4 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
		return
	}

	postID := parts[2]
	switch {
	case parts[3] == "votes" && r.Method == http.MethodPost:
		s.handleVote(w, r, engagement.TargetPost, postID)
	case parts[3] == "likes" && r.Method == http.MethodPost:
		s.handlePresence(w, r, engagement.LedgerLike, postID)
	case parts[3] == "flag-toggle" && r.Method == http.MethodPost:
		s.handlePresence(w, r, engagement.LedgerFlag, postID)
	case parts[3] == "flags" && r.Method == http.MethodPost:
		s.handleCreateFlag(w, r, postID)
	case parts[3] == "flags" && r.Method == http.MethodDelete:
		s.handleDeleteFlag(w, r, postID)
	case parts[3] == "comments" && r.Method == http.MethodPost:
		s.handleCreateComment(w, r, postID)
	case parts[3] == "thread" && r.Method == http.MethodGet:
		s.handleThread(w, r, postID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	}
}

func (s *HTTPServer) handleListPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	viewer, _ := s.optionalActor(r)
	posts, err := s.service.ListPosts(r.Context(), viewer.ID, ListPostsInput{
		TagIDs: query["t"],
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *HTTPServer) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	var body CreatePostInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	post, err := s.service.CreatePost(r.Context(), actor, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request, postID string) {
	actor, ok := s.requireActor(w, r)
	if !ok {
		return
	}
	var body CreateCommentInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	location, err := s.service.CreateComment(r.Context(), actor, postID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", location.Path)
	writeJSON(w, http.StatusCreated, location)
}

func (s *HTTPServer) handleThread(w http.ResponseWriter, r *http.Request, postID string) {
	viewer, _ := s.optionalActor(r)
	query := r.URL.Query()
	result, err := s.service.FetchThread(r.Context(), viewer.ID, postID, query.Get("parent"), query.Get("sortBy"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requireActor answers 401 when the request carries no valid token.
func (s *HTTPServer) requireActor(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return rbac.Actor{}, false
	}
	actor, err := s.service.ActorFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return rbac.Actor{}, false
		}
		s.logger.ErrorContext(r.Context(), "actor lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return rbac.Actor{}, false
	}
	return actor, true
}

// requireReactor is requireActor for reaction endpoints: anonymous callers
// are sent to sign in instead of receiving an error.
func (s *HTTPServer) requireReactor(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	token := bearerToken(r)
	if token != "" {
		actor, err := s.service.ActorFromToken(r.Context(), token)
		if err == nil {
			return actor, true
		}
		if !errors.Is(err, auth.ErrExpiredToken) && !errors.Is(err, auth.ErrInvalidToken) {
			s.logger.ErrorContext(r.Context(), "actor lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return rbac.Actor{}, false
		}
	}
	http.Redirect(w, r, s.service.LoginURL(), http.StatusSeeOther)
	return rbac.Actor{}, false
}

func (s *HTTPServer) optionalActor(r *http.Request) (rbac.Actor, bool) {
	token := bearerToken(r)
	if token == "" {
		return rbac.Actor{}, false
	}
	actor, err := s.service.ActorFromToken(r.Context(), token)
	if err != nil {
		return rbac.Actor{}, false
	}
	return actor, true
}

// fail maps err to a response; unexpected errors are logged and never
// exposed.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.InfoContext(ctx, "request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, thread.ErrNotInPost):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrUnknownTag):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown tag", nil
	case errors.Is(err, store.ErrUnknownEvent):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown event", nil
	case errors.Is(err, store.ErrParentMismatch):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Parent comment belongs to another post", nil
	case errors.Is(err, engagement.ErrInvalidVote),
		errors.Is(err, engagement.ErrInvalidTarget),
		errors.Is(err, engagement.ErrInvalidLedger):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, store.ErrVoteContention):
		return http.StatusConflict, "CONFLICT", "Vote is being changed concurrently, try again", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
