package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Blackwoodproductions/webstack-services/internal/store"
	"github.com/Blackwoodproductions/webstack-services/internal/visitors"
)

type visitorSessionRequest struct {
	Domain    string `json:"domain" validate:"required"`
	UserAgent string `json:"user_agent"`
	Referrer  string `json:"referrer"`
	Hostname  string `json:"hostname"`
}

func (s *Server) createVisitorSession(w http.ResponseWriter, r *http.Request) {
	var req visitorSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	now := s.deps.Clock.Now().UTC()
	session := store.VisitorSession{
		ID:        id,
		Domain:    req.Domain,
		UserAgent: req.UserAgent,
		Referrer:  req.Referrer,
		Hostname:  req.Hostname,
		FirstSeen: now,
		LastSeen:  now,
	}
	if err := s.deps.Visitors.CreateSession(r.Context(), &session); err != nil {
		writeError(w, http.StatusInternalServerError, "visitor session could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type pageviewRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Domain    string `json:"domain" validate:"required"`
	Path      string `json:"path" validate:"required"`
	Referrer  string `json:"referrer"`
	UserAgent string `json:"user_agent"`
}

func (s *Server) recordPageview(w http.ResponseWriter, r *http.Request) {
	var req pageviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	now := s.deps.Clock.Now().UTC()
	event := visitors.PageviewEvent{
		ID:         id,
		SessionID:  req.SessionID,
		Domain:     req.Domain,
		Path:       req.Path,
		Referrer:   req.Referrer,
		UserAgent:  req.UserAgent,
		OccurredAt: now,
	}
	if err := s.deps.Pageviews.RecordPageview(r.Context(), event); err != nil {
		writeError(w, http.StatusInternalServerError, "pageview could not be recorded")
		return
	}
	// LastSeen is best effort; pageview rows are the source of truth.
	if err := s.deps.Visitors.Touch(r.Context(), req.SessionID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("visitor touch failed")
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) enrichVisitor(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	row, err := s.deps.Visitors.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "visitor session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "visitor session could not be loaded")
		return
	}

	enrichment := visitors.Enrich(visitors.Session{
		ID:        row.ID,
		Domain:    row.Domain,
		UserAgent: row.UserAgent,
		Referrer:  row.Referrer,
		Hostname:  row.Hostname,
		FirstSeen: row.FirstSeen,
		LastSeen:  row.LastSeen,
	})
	if err := s.deps.Visitors.ApplyEnrichment(r.Context(), sessionID, enrichment); err != nil {
		writeError(w, http.StatusInternalServerError, "enrichment could not be saved")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            sessionID,
		"channel":       enrichment.Channel,
		"is_bot":        enrichment.IsBot,
		"company_guess": enrichment.CompanyGuess,
	})
}
