package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Blackwoodproductions/webstack-services/internal/store"
)

type listingRequest struct {
	Name        string `json:"name" validate:"required"`
	Website     string `json:"website" validate:"required,url"`
	Category    string `json:"category" validate:"required"`
	Description string `json:"description"`
	Email       string `json:"email" validate:"omitempty,email"`
}

func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
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
	listing := store.DirectoryListing{
		ID:          id,
		Name:        req.Name,
		Website:     req.Website,
		Category:    req.Category,
		Description: req.Description,
		Email:       req.Email,
	}
	if err := s.deps.Directory.Create(r.Context(), &listing); err != nil {
		writeError(w, http.StatusInternalServerError, "listing could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (s *Server) listDirectory(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	status := r.URL.Query().Get("status")
	if status == "" {
		status = store.ListingStatusApproved
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	listings, err := s.deps.Directory.List(r.Context(), category, status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listings could not be loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

type listingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

func (s *Server) updateListingStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "listing_id")
	var req listingStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if err := s.deps.Directory.UpdateStatus(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "listing could not be updated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}
