// Package jobs implements every scheduled unit of work (C5): one file per
// job, each wiring ArticlePipeline, AIAnalyzer, the external clients, and
// the store repositories into the operation described in spec §4.5.
package jobs

import "context"

// Result is what a job reports back to the scheduler on success, recorded
// on its JobExecution row.
type Result struct {
	FundsProcessed []string
}

// Job is the uniform shape the scheduler drives. Lifecycle tracking
// (running → success/failed, duration_ms) happens in the scheduler around
// Run, not inside each job, so every job is tested without a fake clock.
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// JobBase gives jobs a name without boilerplate; embed it and set name via
// NewJobBase in the job's constructor (ground: teacher's scheduler.JobBase
// embedding pattern).
type JobBase struct {
	name string
}

// NewJobBase constructs a JobBase carrying the job's registered name.
func NewJobBase(name string) JobBase { return JobBase{name: name} }

// Name returns the job's registered name.
func (b JobBase) Name() string { return b.name }
