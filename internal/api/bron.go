package api

import (
	"errors"
	"net/http"

	"github.com/Blackwoodproductions/webstack-services/internal/bron"
)

type bronAuthRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type bronTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type bronProxyRequest struct {
	Token  string         `json:"token" validate:"required"`
	Action string         `json:"action" validate:"required"`
	Params map[string]any `json:"params"`
}

func (s *Server) bronAuth(w http.ResponseWriter, r *http.Request) {
	var req bronAuthRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	upstreamToken, err := s.deps.Bron.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeBronError(w, err)
		return
	}
	session, err := s.deps.Bridge.Create(upstreamToken, req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session could not be created")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) bronProxy(w http.ResponseWriter, r *http.Request) {
	var req bronProxyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if !bron.KnownAction(req.Action) {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	session, ok := s.deps.Bridge.Lookup(req.Token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "session expired or unknown")
		return
	}

	raw, status, err := s.deps.Bron.Do(r.Context(), session.UpstreamToken, req.Action, req.Params)
	if err != nil {
		writeBronError(w, err)
		return
	}
	writeRaw(w, status, raw)
}

func (s *Server) bronRefresh(w http.ResponseWriter, r *http.Request) {
	var req bronTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	session, ok := s.deps.Bridge.Refresh(req.Token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "session expired or unknown")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) bronLogout(w http.ResponseWriter, r *http.Request) {
	var req bronTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	revoked := s.deps.Bridge.Revoke(req.Token)
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func writeBronError(w http.ResponseWriter, err error) {
	var upstreamErr *bron.UpstreamError
	if errors.As(err, &upstreamErr) {
		writeError(w, passthroughStatus(upstreamErr.StatusCode), upstreamErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, "bron is unavailable")
}
