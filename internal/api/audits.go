package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/audit"
	"github.com/Blackwoodproductions/webstack-services/internal/store"
)

type auditRequest struct {
	StartURL        string `json:"start_url" validate:"required,url"`
	MaxPages        int    `json:"max_pages" validate:"omitempty,min=1,max=500"`
	MaxDepth        int    `json:"max_depth" validate:"omitempty,min=0,max=10"`
	BudgetSeconds   int    `json:"budget_seconds" validate:"omitempty,min=1,max=3600"`
	HeadlessAllowed *bool  `json:"headless_allowed"`
}

func (s *Server) submitAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	params := audit.JobParameters{
		StartURL:      req.StartURL,
		MaxPages:      req.MaxPages,
		MaxDepth:      req.MaxDepth,
		BudgetSeconds: req.BudgetSeconds,
	}
	if params.MaxPages <= 0 {
		params.MaxPages = s.cfg.Audit.MaxPagesDefault
	}
	if params.MaxDepth <= 0 {
		params.MaxDepth = s.cfg.Audit.MaxDepthDefault
	}
	if req.HeadlessAllowed != nil {
		params.HeadlessAllowed = *req.HeadlessAllowed
		params.HeadlessProvided = true
	} else {
		params.HeadlessAllowed = s.cfg.Headless.Enabled
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	now := s.deps.Clock.Now().UTC()
	job := audit.Job{
		ID:         id,
		Status:     audit.JobStatusQueued,
		Submitted:  now,
		Parameters: params,
	}
	if err := s.deps.Jobs.CreateJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "audit job could not be saved")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := audit.QueueItem{
		JobID:     id,
		Params:    params,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.deps.Dispatcher.Enqueue(ctx, item); err != nil {
		s.logger.Warn("audit enqueue failed", zap.String("job_id", id), zap.Error(err))
		_ = s.deps.Jobs.UpdateJobStatus(r.Context(), id, audit.JobStatusFailed, "queue full", audit.JobCounters{})
		writeError(w, http.StatusServiceUnavailable, "audit queue is full, try again later")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) auditStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) auditResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeJobError(w, err)
		return
	}
	pages, err := s.deps.Jobs.ListPages(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit pages could not be loaded")
		return
	}
	writeJSON(w, http.StatusOK, audit.JobResult{Job: job, Pages: pages})
}

func (s *Server) cancelAudit(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeJobError(w, err)
		return
	}
	switch job.Status {
	case audit.JobStatusSucceeded, audit.JobStatusFailed, audit.JobStatusCanceled:
		writeError(w, http.StatusConflict, "audit job has already finished")
		return
	}
	if err := s.deps.Jobs.UpdateJobStatus(r.Context(), jobID, audit.JobStatusCanceled, "canceled via API", job.Counters); err != nil {
		writeError(w, http.StatusInternalServerError, "audit job could not be canceled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(audit.JobStatusCanceled)})
}

func writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "audit job not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "audit job could not be loaded")
}
