package api

import (
	"net/http"
	"time"

	"github.com/Blackwoodproductions/webstack-services/internal/store"
)

func (s *Server) listChangelog(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	entries, err := s.deps.Changelog.List(r.Context(), tag, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "changelog could not be loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type changelogRequest struct {
	Title       string `json:"title" validate:"required"`
	Body        string `json:"body" validate:"required"`
	Tag         string `json:"tag"`
	PublishedAt string `json:"published_at"`
}

func (s *Server) createChangelogEntry(w http.ResponseWriter, r *http.Request) {
	var req changelogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	publishedAt := s.deps.Clock.Now().UTC()
	if req.PublishedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.PublishedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "published_at must be RFC3339")
			return
		}
		publishedAt = parsed.UTC()
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	entry := store.ChangelogEntry{
		ID:          id,
		Title:       req.Title,
		Body:        req.Body,
		Tag:         req.Tag,
		PublishedAt: publishedAt,
	}
	if err := s.deps.Changelog.Create(r.Context(), &entry); err != nil {
		writeError(w, http.StatusInternalServerError, "changelog entry could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
