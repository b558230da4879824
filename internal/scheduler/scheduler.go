// Package scheduler implements Scheduler (C7): a persistent job registry
// driven by robfig/cron, a fixed worker pool, the cross-process
// heartbeat-and-lock election protocol, and the status/run_now/pause-resume
// surface consumed by the HTTP job-control handlers (spec §4.7).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/jobs"
	"github.com/aristath/finintel/internal/store"
)

// WorkerPoolSize is the fixed number of jobs that may run concurrently
// within one process (spec §4.7, §5).
const WorkerPoolSize = 7

// HighLoadThreshold is the active-job count at or above which the worker
// pool emits a saturation warning. The heartbeat job is excluded from the
// count (spec §4.7).
const HighLoadThreshold = 6

// MisfireGrace bounds how far in the past a missed cron fire may still be
// honored on resume; older misses are dropped (spec §4.7).
const MisfireGrace = 24 * time.Hour

// PerArticleJobBudget is the wall-clock budget applied to every job run;
// registrations have no per-job override (spec §5).
const PerArticleJobBudget = 50 * time.Minute

// parser mirrors the field set cron.New(cron.WithSeconds()) uses
// internally, so schedules parsed here and schedules registered with the
// Cron agree on next-fire-time computation.
var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Trigger is either a cron expression or a fixed interval; exactly one of
// CronSpec/Interval should be set.
type Trigger struct {
	CronSpec string
	Interval time.Duration
}

func (t Trigger) spec() string {
	if t.Interval > 0 {
		return "@every " + t.Interval.String()
	}
	return t.CronSpec
}

// registration is the scheduler's bookkeeping for one registered job.
type registration struct {
	job              jobs.Job
	trigger          Trigger
	schedule         cron.Schedule
	calculationClass bool

	mu      sync.Mutex // guards running/paused/entryID; enforces max_instances=1
	running bool
	paused  bool
	entryID cron.EntryID
}

// Config wires a Scheduler's dependencies.
type Config struct {
	Jobs      *store.JobsRepo
	Retry     *store.RetryRepo
	Heartbeat *HeartbeatLock
	Log       zerolog.Logger
}

// Scheduler drives every registered Job on its trigger, bounded by a fixed
// worker pool, recording lifecycle into JobExecution rows.
type Scheduler struct {
	cron      *cron.Cron
	jobsRepo  *store.JobsRepo
	retryRepo *store.RetryRepo
	heartbeat *HeartbeatLock
	log       zerolog.Logger

	mu            sync.Mutex
	registrations map[string]*registration
	startedAt     time.Time
	running       bool

	workerSlots chan struct{}
	activeCount int32

	restartCount        int
	intentionalShutdown bool
}

// New constructs a Scheduler. Call RegisterJob for every job before Start.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithSeconds()),
		jobsRepo:      cfg.Jobs,
		retryRepo:     cfg.Retry,
		heartbeat:     cfg.Heartbeat,
		log:           cfg.Log.With().Str("component", "scheduler").Logger(),
		registrations: make(map[string]*registration),
		workerSlots:   make(chan struct{}, WorkerPoolSize),
	}
}

// RegisterJob adds a job under the given trigger. calculationClass marks
// jobs whose failed items should be retried via the retry queue rather than
// simply logged (spec §4.7 stale-run sweep, §7 error kind 6).
func (s *Scheduler) RegisterJob(job jobs.Job, trigger Trigger, calculationClass bool) error {
	sched, err := parser.Parse(trigger.spec())
	if err != nil {
		return fmt.Errorf("failed to parse trigger for job %q: %w", job.Name(), err)
	}

	reg := &registration{job: job, trigger: trigger, schedule: sched, calculationClass: calculationClass}

	entryID, err := s.cron.AddFunc(trigger.spec(), func() { s.runJob(reg) })
	if err != nil {
		return fmt.Errorf("failed to register job %q: %w", job.Name(), err)
	}
	reg.entryID = entryID

	s.mu.Lock()
	s.registrations[job.Name()] = reg
	s.mu.Unlock()

	s.log.Debug().Str("job", job.Name()).Str("trigger", trigger.spec()).Msg("job added")
	return nil
}

// runJob is the cron callback: it enforces max_instances=1, acquires a
// worker-pool slot, wraps execution in a JobExecution row, and persists the
// outcome. Called directly (not via cron) by RunNow and the misfire catch-up.
func (s *Scheduler) runJob(reg *registration) {
	reg.mu.Lock()
	if reg.running || reg.paused {
		skippedReason := "already running"
		if reg.paused {
			skippedReason = "paused"
		}
		reg.mu.Unlock()
		s.log.Debug().Str("job", reg.job.Name()).Str("reason", skippedReason).Msg("job skipped")
		return
	}
	reg.running = true
	reg.mu.Unlock()
	defer func() {
		reg.mu.Lock()
		reg.running = false
		reg.mu.Unlock()
	}()

	name := reg.job.Name()
	s.log.Debug().Str("job", name).Msg("job submitted")

	s.workerSlots <- struct{}{}
	defer func() { <-s.workerSlots }()

	active := atomic.AddInt32(&s.activeCount, 1)
	defer atomic.AddInt32(&s.activeCount, -1)
	if active >= HighLoadThreshold && name != "heartbeat" {
		s.log.Warn().Int32("active_jobs", active).Msg("worker pool under high load")
	}

	id, err := s.jobsRepo.Start(name, time.Now(), nil)
	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("failed to record job start")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), PerArticleJobBudget)
	defer cancel()

	start := time.Now()
	result, runErr := s.runWithRecover(ctx, reg.job)
	duration := time.Since(start)

	if runErr != nil {
		s.log.Error().Err(runErr).Str("job", name).Dur("duration", duration).Msg("job error")
		if err := s.jobsRepo.Fail(id, duration, runErr.Error()); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("failed to record job failure")
		}
		if reg.calculationClass {
			if err := s.retryRepo.Enqueue(name, time.Now(), id, "job", runErr.Error(), time.Minute); err != nil {
				s.log.Error().Err(err).Str("job", name).Msg("failed to enqueue retry")
			}
		}
		return
	}

	if err := s.jobsRepo.Complete(id, duration, result.FundsProcessed); err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("failed to record job completion")
	}
	s.log.Debug().Str("job", name).Dur("duration", duration).Msg("job executed")
}

// runWithRecover isolates a job's panics so one bad job cannot take the
// worker pool down with it (spec §7 error kind 6: job-level unhandled error).
func (s *Scheduler) runWithRecover(ctx context.Context, job jobs.Job) (result jobs.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

// RunNow schedules a one-shot execution on the scheduler's own worker pool
// so the caller (typically an HTTP handler) never blocks (spec §4.7).
func (s *Scheduler) RunNow(jobName string) (bool, error) {
	s.mu.Lock()
	reg, ok := s.registrations[jobName]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown job %q", jobName)
	}
	go s.runJob(reg)
	return true, nil
}

// PauseJob prevents a registered job from firing until resumed. The cron
// entry remains registered (next_run_time still computable) but the wrapper
// skips execution (spec §4.7 is_paused semantics).
func (s *Scheduler) PauseJob(jobName string) (bool, error) {
	s.mu.Lock()
	reg, ok := s.registrations[jobName]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown job %q", jobName)
	}
	reg.mu.Lock()
	reg.paused = true
	reg.mu.Unlock()
	s.log.Info().Str("job", jobName).Msg("job paused")
	return true, nil
}

// ResumeJob re-enables a paused job.
func (s *Scheduler) ResumeJob(jobName string) (bool, error) {
	s.mu.Lock()
	reg, ok := s.registrations[jobName]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("unknown job %q", jobName)
	}
	reg.mu.Lock()
	reg.paused = false
	reg.mu.Unlock()
	s.log.Info().Str("job", jobName).Msg("job resumed")
	return true, nil
}

// ListJobNames returns every registered job's name.
func (s *Scheduler) ListJobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.registrations))
	for name := range s.registrations {
		names = append(names, name)
	}
	return names
}

// start begins the underlying cron scheduler and the misfire catch-up pass.
// Unexported: callers use the HeartbeatLock-gated StartScheduler (lock.go).
func (s *Scheduler) start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.startedAt = time.Now()
	s.intentionalShutdown = false
	s.mu.Unlock()

	s.cron.Start()
	s.catchUpMisfires()
}

// stop gracefully awaits in-flight jobs before returning (spec §5 cancellation).
func (s *Scheduler) stop(intentional bool) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.intentionalShutdown = intentional
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	if !intentional {
		s.handleUnexpectedShutdown()
	}
}

// handleUnexpectedShutdown logs a critical diagnostic and retries starting
// the scheduler, capped at 5 attempts (spec §4.7 event listener, §7 error kind 7).
func (s *Scheduler) handleUnexpectedShutdown() {
	s.log.Error().Msg("scheduler shutdown unexpectedly")
	s.restartCount++
	if s.restartCount > 5 {
		s.log.Error().Int("attempts", s.restartCount).Msg("scheduler restart cap reached, giving up")
		return
	}
	s.log.Warn().Int("attempt", s.restartCount).Msg("attempting scheduler restart")
	s.start()
}

// catchUpMisfires fires each job once if its schedule's next fire time after
// its last recorded execution has already passed, within MisfireGrace
// (spec §4.7 misfire handling: coalesced, fired once on resume).
func (s *Scheduler) catchUpMisfires() {
	s.mu.Lock()
	regs := make([]*registration, 0, len(s.registrations))
	for _, reg := range s.registrations {
		regs = append(regs, reg)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, reg := range regs {
		last, err := s.jobsRepo.LastExecution(reg.job.Name())
		if err != nil || last == nil {
			continue
		}
		nextDue := reg.schedule.Next(last.StartedAt)
		if nextDue.After(now) {
			continue
		}
		if now.Sub(nextDue) > MisfireGrace {
			s.log.Warn().Str("job", reg.job.Name()).Time("missed_fire", nextDue).Msg("missed fire beyond misfire grace, dropping")
			continue
		}
		s.log.Info().Str("job", reg.job.Name()).Time("missed_fire", nextDue).Msg("job missed, firing once on resume")
		go s.runJob(reg)
	}
}
