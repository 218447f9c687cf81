package api

import (
	"encoding/json"
	"net/http"

	"github.com/Blackwoodproductions/webstack-services/internal/kwcache"
)

type seoMetricsRequest struct {
	Domain string `json:"domain" validate:"required"`
}

type seoMetricsResponse struct {
	Cached  bool            `json:"cached"`
	Metrics json.RawMessage `json:"metrics"`
}

func (s *Server) seoMetrics(w http.ResponseWriter, r *http.Request) {
	var req seoMetricsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	domain := kwcache.NormalizeDomain(req.Domain)
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}

	if payload, _, ok := s.deps.KwCache.Get(domain); ok {
		writeJSON(w, http.StatusOK, seoMetricsResponse{Cached: true, Metrics: payload})
		return
	}

	result, err := s.deps.Ahrefs.DomainMetrics(r.Context(), domain)
	if err != nil {
		writeError(w, http.StatusBadGateway, "ahrefs is unavailable")
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode metrics failed")
		return
	}
	// Fully failed lookups are not worth caching for a day.
	if result.DomainRating != nil || result.Backlinks != nil ||
		result.OrganicKeywords != nil || result.OrganicTraffic != nil {
		s.deps.KwCache.Put(domain, payload)
	}
	writeJSON(w, http.StatusOK, seoMetricsResponse{Cached: false, Metrics: payload})
}
