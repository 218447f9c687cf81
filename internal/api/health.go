package api

import (
	"net/http"
	"strconv"
)

func (s *Server) healthChecks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"checks": s.deps.Monitor.Statuses()})
}

func (s *Server) healthAlerts(w http.ResponseWriter, r *http.Request) {
	openOnly := true
	if raw := r.URL.Query().Get("open"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "open must be a boolean")
			return
		}
		openOnly = parsed
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	alerts, err := s.deps.Alerts.List(r.Context(), openOnly, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "alerts could not be loaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) healthRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"checks": s.deps.Monitor.RunOnce(r.Context())})
}
