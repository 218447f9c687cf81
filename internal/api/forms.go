package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"path"

	"github.com/Blackwoodproductions/webstack-services/internal/store"
)

type leadRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"required"`
	Company string `json:"company"`
	Website string `json:"website" validate:"omitempty,url"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

func (s *Server) createLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
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
	lead := store.Lead{
		ID:      id,
		Email:   req.Email,
		Name:    req.Name,
		Company: req.Company,
		Website: req.Website,
		Message: req.Message,
		Source:  req.Source,
		Status:  store.LeadStatusNew,
	}
	if err := s.deps.Leads.Create(r.Context(), &lead); err != nil {
		writeError(w, http.StatusInternalServerError, "lead could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

type jobApplicationRequest struct {
	Position       string `json:"position" validate:"required"`
	Name           string `json:"name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
	Phone          string `json:"phone"`
	CoverLetter    string `json:"cover_letter" validate:"required,coverletter"`
	ResumeBase64   string `json:"resume_base64"`
	ResumeFilename string `json:"resume_filename"`
}

func (s *Server) createJobApplication(w http.ResponseWriter, r *http.Request) {
	var req jobApplicationRequest
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

	resumeURL := ""
	if req.ResumeBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.ResumeBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "resume attachment is not valid base64")
			return
		}
		filename := path.Base(req.ResumeFilename)
		if filename == "" || filename == "." || filename == "/" {
			filename = "resume.pdf"
		}
		blobPath := fmt.Sprintf("resumes/%s/%s", id, filename)
		resumeURL, err = s.deps.Blobs.PutObject(r.Context(), blobPath, http.DetectContentType(data), data)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "resume could not be stored")
			return
		}
	}

	app := store.JobApplication{
		ID:          id,
		Position:    req.Position,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		ResumeURL:   resumeURL,
		CoverLetter: req.CoverLetter,
		Status:      store.ApplicationStatusSubmitted,
	}
	if err := s.deps.Apps.CreateJobApplication(r.Context(), &app); err != nil {
		writeError(w, http.StatusInternalServerError, "application could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

type partnerApplicationRequest struct {
	Company     string `json:"company" validate:"required"`
	ContactName string `json:"contact_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Website     string `json:"website" validate:"omitempty,url"`
	Tier        string `json:"tier"`
	Message     string `json:"message"`
}

func (s *Server) createPartnerApplication(w http.ResponseWriter, r *http.Request) {
	var req partnerApplicationRequest
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
	app := store.PartnerApplication{
		ID:          id,
		Company:     req.Company,
		ContactName: req.ContactName,
		Email:       req.Email,
		Website:     req.Website,
		Tier:        req.Tier,
		Message:     req.Message,
		Status:      store.ApplicationStatusSubmitted,
	}
	if err := s.deps.Apps.CreatePartnerApplication(r.Context(), &app); err != nil {
		writeError(w, http.StatusInternalServerError, "application could not be saved")
		return
	}
	writeJSON(w, http.StatusCreated, app)
}
