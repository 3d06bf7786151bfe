package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/clinops/stratrand/internal/clients/redcap"
	"github.com/clinops/stratrand/internal/modules/codebook"
	"github.com/clinops/stratrand/internal/services"
)

// handleHealth reports service and database health plus host resource usage
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "ok"
	status := http.StatusOK
	if err := s.runsDB.QuickCheck(ctx); err != nil {
		dbStatus = err.Error()
		status = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":   "healthy",
		"service":  "stratrand",
		"database": dbStatus,
	}
	if status != http.StatusOK {
		response["status"] = "degraded"
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response["memory_used_pct"] = vm.UsedPercent
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		response["cpu_used_pct"] = percents[0]
	}

	s.writeJSON(w, status, response)
}

// handleRandomize triggers one randomization run
func (s *Server) handleRandomize(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.Run(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, redcap.ErrNoEligibleRecords):
			s.writeJSON(w, http.StatusOK, map[string]interface{}{
				"status":  "no_eligible_records",
				"message": err.Error(),
			})
		case isConfigurationError(err):
			s.writeError(w, http.StatusUnprocessableEntity, err)
		default:
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

// handleListRuns returns recent runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	result, err := s.runsRepo.List(50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": result})
}

// handleLatestRun returns the most recent run
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runsRepo.Latest()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, errors.New("no runs recorded"))
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// handleGetRun returns one run by id
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.runsRepo.GetByID(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, errors.New("run not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// isConfigurationError reports whether err belongs to the fatal
// configuration class (caller data problem, not a service fault).
func isConfigurationError(err error) bool {
	var mismatch services.ErrCriteriaMismatch
	var malformed codebook.ErrMalformedChoices
	return errors.As(err, &mismatch) || errors.As(err, &malformed)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
