package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Blackwoodproductions/webstack-services/internal/store"
)

type chatSessionRequest struct {
	VisitorID string `json:"visitor_id"`
	Email     string `json:"email" validate:"omitempty,email"`
	Topic     string `json:"topic"`
}

func (s *Server) createChatSession(w http.ResponseWriter, r *http.Request) {
	var req chatSessionRequest
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
	session := store.ChatSession{
		ID:        id,
		VisitorID: req.VisitorID,
		Email:     req.Email,
		Topic:     req.Topic,
		StartedAt: s.deps.Clock.Now().UTC(),
	}
	if err := s.deps.Chat.CreateSession(r.Context(), &session); err != nil {
		writeError(w, http.StatusInternalServerError, "chat session could not be created")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

type chatMessageRequest struct {
	Role string `json:"role" validate:"omitempty,oneof=visitor agent"`
	Body string `json:"body" validate:"required"`
}

func (s *Server) appendChatMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Role == "" {
		req.Role = store.ChatRoleVisitor
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	message := store.ChatMessage{
		ID:        id,
		SessionID: sessionID,
		Role:      req.Role,
		Body:      req.Body,
		CreatedAt: s.deps.Clock.Now().UTC(),
	}
	if err := s.deps.Chat.AppendMessage(r.Context(), &message); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "message could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (s *Server) getChatSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	session, err := s.deps.Chat.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "chat session could not be loaded")
		return
	}
	writeJSON(w, http.StatusOK, session)
}
