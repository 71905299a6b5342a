package app

import (
	"net/http"

	"forum/internal/engagement"
)

func (s *HTTPServer) handleVote(w http.ResponseWriter, r *http.Request, kind engagement.TargetKind, targetID string) {
	actor, ok := s.requireReactor(w, r)
	if !ok {
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.ToggleVote(r.Context(), actor, kind, targetID, body.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handlePresence(w http.ResponseWriter, r *http.Request, ledger engagement.Ledger, postID string) {
	actor, ok := s.requireReactor(w, r)
	if !ok {
		return
	}
	result, err := s.service.TogglePresence(r.Context(), actor, ledger, postID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleCreateFlag(w http.ResponseWriter, r *http.Request, postID string) {
	actor, ok := s.requireReactor(w, r)
	if !ok {
		return
	}
	outcome, count, err := s.service.CreateFlag(r.Context(), actor, postID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if outcome == engagement.FlagCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"result": outcome, "count": count})
}

func (s *HTTPServer) handleDeleteFlag(w http.ResponseWriter, r *http.Request, postID string) {
	actor, ok := s.requireReactor(w, r)
	if !ok {
		return
	}
	count, err := s.service.DeleteFlag(r.Context(), actor, postID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": engagement.FlagDeleted, "count": count})
}
