package api

import (
	"errors"
	"net/http"
	"slices"

	"github.com/Blackwoodproductions/webstack-services/internal/upstream/google"
)

func (s *Server) businessProfile(w http.ResponseWriter, r *http.Request) {
	var req google.BusinessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	if !slices.Contains(google.BusinessActions, req.Action) {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	raw, status, err := s.deps.Google.Business(r.Context(), req)
	if err != nil {
		writeGoogleError(w, err)
		return
	}
	writeRaw(w, status, raw)
}

func (s *Server) searchConsole(w http.ResponseWriter, r *http.Request) {
	var req google.SearchConsoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}
	if !slices.Contains(google.SearchConsoleActions, req.Action) {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	raw, status, err := s.deps.Google.SearchConsole(r.Context(), req)
	if err != nil {
		writeGoogleError(w, err)
		return
	}
	writeRaw(w, status, raw)
}

func writeGoogleError(w http.ResponseWriter, err error) {
	var upstreamErr *google.UpstreamError
	if errors.As(err, &upstreamErr) {
		writeError(w, passthroughStatus(upstreamErr.StatusCode), upstreamErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "google is unavailable")
}
