package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finintel/internal/scheduler"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports process liveness; the scheduler's own health-check
// job (not this endpoint) polls external client reachability (spec §4.2).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListJobs implements list_jobs() (spec §6).
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.scheduler.GetAllJobsStatus()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// handleRunJobNow implements run_job_now(job_id) (spec §6).
func (s *Server) handleRunJobNow(w http.ResponseWriter, r *http.Request) {
	jobName := chi.URLParam(r, "jobName")
	ok, err := s.scheduler.RunNow(jobName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

// handlePauseJob implements pause_job(job_id) (spec §6).
func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	jobName := chi.URLParam(r, "jobName")
	ok, err := s.scheduler.PauseJob(jobName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

// handleResumeJob implements resume_job(job_id) (spec §6).
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	jobName := chi.URLParam(r, "jobName")
	ok, err := s.scheduler.ResumeJob(jobName)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

// handleSchedulerStatus implements is_scheduler_running() (spec §6).
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.scheduler.IsSchedulerRunning()})
}

// handleStartScheduler implements start_scheduler() (spec §6). Callers that
// need the StartOptions (health-check job, startup backfill) call
// scheduler.StartScheduler directly at process boot; this endpoint covers
// manual restart after a shutdown with no ancillary jobs re-registered.
func (s *Server) handleStartScheduler(w http.ResponseWriter, r *http.Request) {
	ok, err := s.scheduler.StartScheduler(scheduler.StartOptions{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": ok})
}

// handleShutdownScheduler implements shutdown_scheduler() (spec §6).
func (s *Server) handleShutdownScheduler(w http.ResponseWriter, r *http.Request) {
	s.scheduler.ShutdownScheduler()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
