package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/jobs"
)

// HeartbeatInterval is how often the owning process touches the heartbeat
// file (spec §4.7, §6 filesystem layout).
const HeartbeatInterval = 20 * time.Second

// HeartbeatStaleAfter is the age past which the heartbeat file is no longer
// trusted as evidence of a live owner.
const HeartbeatStaleAfter = 60 * time.Second

// LockStaleAfter is the age past which a startup lock file is considered
// abandoned and safe to remove.
const LockStaleAfter = 10 * time.Second

// HeartbeatLock implements the cross-process single-scheduler-owner election
// protocol: a heartbeat file proving liveness, and a short-lived startup
// lock file serializing concurrent startup attempts (spec §4.7).
type HeartbeatLock struct {
	heartbeatPath string
	lockPath      string
	log           zerolog.Logger

	stopMu sync.Mutex
	stop   chan struct{}
}

// NewHeartbeatLock constructs a HeartbeatLock rooted at <rootDir>/logs.
func NewHeartbeatLock(rootDir string, log zerolog.Logger) (*HeartbeatLock, error) {
	logsDir := filepath.Join(rootDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	return &HeartbeatLock{
		heartbeatPath: filepath.Join(logsDir, ".scheduler_heartbeat"),
		lockPath:      filepath.Join(logsDir, ".scheduler_lock"),
		log:           log.With().Str("component", "scheduler_lock").Logger(),
	}, nil
}

// IsRunning reports whether another process currently owns the scheduler,
// judged by heartbeat-file freshness (spec §4.7, §6 is_scheduler_running).
func (h *HeartbeatLock) IsRunning() bool {
	data, err := os.ReadFile(h.heartbeatPath)
	if err != nil {
		return false
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return false
	}
	return time.Since(time.Unix(int64(sec), 0)) < HeartbeatStaleAfter
}

// touch writes the current Unix time to the heartbeat file.
func (h *HeartbeatLock) touch() error {
	content := fmt.Sprintf("%f", float64(time.Now().Unix()))
	return os.WriteFile(h.heartbeatPath, []byte(content), 0o644)
}

// acquireStartupLock writes {timestamp, pid} to the lock file unless a
// fresh lock already exists, in which case it reports failure without
// writing (spec §4.7 startup-lock check).
func (h *HeartbeatLock) acquireStartupLock() (bool, error) {
	if data, err := os.ReadFile(h.lockPath); err == nil {
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) >= 1 {
			if sec, err := strconv.ParseInt(lines[0], 10, 64); err == nil {
				if time.Since(time.Unix(sec, 0)) < LockStaleAfter {
					return false, nil
				}
			}
		}
	}

	content := fmt.Sprintf("%d\n%d\n", time.Now().Unix(), os.Getpid())
	if err := os.WriteFile(h.lockPath, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write startup lock: %w", err)
	}
	return true, nil
}

// release removes the startup lock file, the final step of the startup
// sequence once the scheduler is confirmed running (spec §4.7 step 8).
func (h *HeartbeatLock) release() {
	_ = os.Remove(h.lockPath)
}

// startHeartbeatLoop touches the heartbeat file every HeartbeatInterval
// until Stop is called.
func (h *HeartbeatLock) startHeartbeatLoop() {
	h.stopMu.Lock()
	stop := make(chan struct{})
	h.stop = stop
	h.stopMu.Unlock()

	ticker := time.NewTicker(HeartbeatInterval)
	go func() {
		defer ticker.Stop()
		if err := h.touch(); err != nil {
			h.log.Warn().Err(err).Msg("failed to touch heartbeat file")
		}
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := h.touch(); err != nil {
					h.log.Warn().Err(err).Msg("failed to touch heartbeat file")
				}
			}
		}
	}()
}

// Stop halts the heartbeat loop. Safe to call multiple times, or before the
// loop was ever started, so a repeated shutdown request can never panic on
// a double close (spec §4.7 shutdown_scheduler).
func (h *HeartbeatLock) Stop() {
	h.stopMu.Lock()
	defer h.stopMu.Unlock()
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
}

// StartOptions supplies the jobs the startup sequence registers alongside
// the caller's own job set (spec §4.7 step 7).
type StartOptions struct {
	HealthCheck       jobs.Job // polled every 5 minutes
	StartupBackfill   func()   // one-shot, run once immediately after start
}

// StartScheduler runs the 8-step startup sequence (spec §4.7):
// in-process check, heartbeat check, startup-lock check, lock acquisition,
// stale-run sweep, cron start + verification poll, ancillary job
// registration, lock release. Returns false without error if another
// process already owns the scheduler.
func (s *Scheduler) StartScheduler(opts StartOptions) (bool, error) {
	s.mu.Lock()
	alreadyRunning := s.running
	s.mu.Unlock()
	if alreadyRunning {
		return false, nil
	}

	if s.heartbeat.IsRunning() {
		s.log.Info().Msg("scheduler already owned by another process")
		return false, nil
	}

	acquired, err := s.heartbeat.acquireStartupLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire startup lock: %w", err)
	}
	if !acquired {
		s.log.Info().Msg("another process is starting the scheduler")
		return false, nil
	}
	defer s.heartbeat.release()

	if err := s.sweepStaleRunning(); err != nil {
		return false, fmt.Errorf("failed to sweep stale job executions: %w", err)
	}

	s.start()

	deadline := time.Now().Add(2 * time.Second)
	for !s.isRunning() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if !s.isRunning() {
		return false, fmt.Errorf("scheduler did not report running within startup poll window")
	}

	if opts.HealthCheck != nil {
		if err := s.RegisterJob(opts.HealthCheck, Trigger{Interval: 5 * time.Minute}, false); err != nil {
			s.log.Warn().Err(err).Msg("failed to register health-check job")
		}
	}
	s.heartbeat.startHeartbeatLoop()
	if opts.StartupBackfill != nil {
		go opts.StartupBackfill()
	}

	s.log.Info().Msg("scheduler started")
	return true, nil
}

// ShutdownScheduler stops the scheduler intentionally: an intentional stop
// never triggers the unexpected-shutdown restart path (spec §4.7).
func (s *Scheduler) ShutdownScheduler() {
	s.heartbeat.Stop()
	s.stop(true)
	s.log.Info().Msg("scheduler stopped")
}

// IsSchedulerRunning reports whether this process owns a running scheduler,
// or another process does (cross-process check via the heartbeat file;
// spec §6 job-control surface).
func (s *Scheduler) IsSchedulerRunning() bool {
	return s.isRunning() || s.heartbeat.IsRunning()
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// sweepStaleRunning handles every job_executions row still `running` at
// startup: calculation-class jobs are enqueued into the retry queue, then
// every stale row is deleted so no orphan remains (spec §4.7, §8 invariant).
func (s *Scheduler) sweepStaleRunning() error {
	stale, err := s.jobsRepo.StaleRunning()
	if err != nil {
		return fmt.Errorf("failed to query stale running rows: %w", err)
	}

	s.mu.Lock()
	regs := s.registrations
	s.mu.Unlock()

	for _, row := range stale {
		const reason = "Container restarted — job interrupted"
		if err := s.jobsRepo.Fail(row.ID, 0, reason); err != nil {
			s.log.Error().Err(err).Str("job", row.JobName).Msg("failed to mark stale job execution failed")
		}
		if reg, ok := regs[row.JobName]; ok && reg.calculationClass {
			if err := s.retryRepo.Enqueue(row.JobName, row.TargetDate, row.ID, "job", reason, time.Minute); err != nil {
				s.log.Error().Err(err).Str("job", row.JobName).Msg("failed to enqueue stale run for retry")
			}
		}
		if err := s.jobsRepo.Delete(row.ID); err != nil {
			s.log.Error().Err(err).Str("job", row.JobName).Msg("failed to delete stale job execution")
		}
		s.log.Warn().Str("job", row.JobName).Str("execution_id", row.ID).Msg(reason)
	}
	return nil
}
