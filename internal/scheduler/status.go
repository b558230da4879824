package scheduler

import (
	"fmt"
	"time"

	"github.com/aristath/finintel/internal/domain"
)

// isRunningThreshold bounds how recent a `running` row must be to count as
// genuinely in-flight rather than an unswept crash artifact (spec §4.7).
const isRunningThreshold = domain.StaleRunThreshold

// JobStatus is one row of the status surface consumed by list_jobs
// (spec §4.7 get_all_jobs_status).
type JobStatus struct {
	ID            string
	Name          string
	NextRunTime   *time.Time
	IsPaused      bool
	IsRunning     bool
	RunningSince  *time.Time
	LastError     string
	RecentLogs    []*domain.JobExecution
}

// GetAllJobsStatus reports every registered job's status, built from three
// batched store queries regardless of how many jobs are registered
// (spec §4.7: "three queries total for all jobs").
func (s *Scheduler) GetAllJobsStatus() ([]JobStatus, error) {
	s.mu.Lock()
	regs := make(map[string]*registration, len(s.registrations))
	for name, reg := range s.registrations {
		regs[name] = reg
	}
	s.mu.Unlock()

	latest, err := s.jobsRepo.LatestPerJob()
	if err != nil {
		return nil, fmt.Errorf("failed to query latest executions: %w", err)
	}
	running, err := s.jobsRepo.RunningNewerThan(isRunningThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query running executions: %w", err)
	}
	recentLogs, err := s.jobsRepo.RecentLogs()
	if err != nil {
		return nil, fmt.Errorf("failed to query recent logs: %w", err)
	}

	out := make([]JobStatus, 0, len(regs))
	for name, reg := range regs {
		reg.mu.Lock()
		paused := reg.paused
		reg.mu.Unlock()

		status := JobStatus{
			ID:         name,
			Name:       name,
			IsPaused:   paused,
			RecentLogs: recentLogs[name],
		}

		if !paused {
			next := reg.schedule.Next(time.Now())
			status.NextRunTime = &next
		}

		if since, ok := running[name]; ok {
			status.IsRunning = true
			status.RunningSince = &since
		}

		if exec, ok := latest[name]; ok && exec.Status == domain.JobFailed {
			status.LastError = exec.ErrorMessage
		}

		out = append(out, status)
	}
	return out, nil
}
