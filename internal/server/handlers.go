package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status   string   `json:"status"`
	Service  string   `json:"service"`
	Jobs     int      `json:"jobs"`
	Failing  []string `json:"failing,omitempty"`
	Database string   `json:"database,omitempty"`
}

// handleHealth answers 200 while the database is reachable. Failing jobs
// degrade the status but keep the daemon live.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jobs := s.tracker.All()
	resp := HealthResponse{Status: "healthy", Service: "trinistocks-scheduler", Jobs: len(jobs)}
	for _, job := range jobs {
		if job.LastError != "" {
			resp.Failing = append(resp.Failing, job.Name)
		}
	}
	if len(resp.Failing) > 0 {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		resp.Database = "ok"
		if err := s.db.HealthCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Database health check failed")
			resp.Status = "unhealthy"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.All())
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "job")
	st, ok := s.tracker.Get(name)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job " + name})
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
