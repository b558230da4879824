package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finintel/internal/jobs"
	"github.com/aristath/finintel/internal/store"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	ms, err := store.NewMetaStore(store.MetaStoreConfig{
		Path: filepath.Join(t.TempDir(), "meta.db"),
		Log:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, ms.Migrate())
	t.Cleanup(func() { ms.Close() })

	return New(Config{
		Jobs:      store.NewJobsRepo(ms),
		Retry:     store.NewRetryRepo(ms),
		Heartbeat: nil,
		Log:       zerolog.Nop(),
	})
}

// fakeJob runs fn and records how many times it was invoked and how many
// were concurrently in flight, for asserting max_instances=1 semantics.
type fakeJob struct {
	jobs.JobBase
	fn func(ctx context.Context) (jobs.Result, error)

	calls      int32
	concurrent int32
	maxSeen    int32
}

func newFakeJob(name string, fn func(ctx context.Context) (jobs.Result, error)) *fakeJob {
	return &fakeJob{JobBase: jobs.NewJobBase(name), fn: fn}
}

func (f *fakeJob) Run(ctx context.Context) (jobs.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.concurrent, 1)
	defer atomic.AddInt32(&f.concurrent, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}
	if f.fn != nil {
		return f.fn(ctx)
	}
	return jobs.Result{}, nil
}

func TestScheduler_RunNow_ExecutesRegisteredJob(t *testing.T) {
	s := newTestScheduler(t)
	job := newFakeJob("test_job", nil)
	require.NoError(t, s.RegisterJob(job, Trigger{CronSpec: "@every 1h"}, false))

	ok, err := s.RunNow("test_job")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_RunNow_UnknownJob(t *testing.T) {
	s := newTestScheduler(t)
	ok, err := s.RunNow("does_not_exist")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestScheduler_RunJob_EnforcesMaxInstancesOne(t *testing.T) {
	s := newTestScheduler(t)
	release := make(chan struct{})
	job := newFakeJob("slow_job", func(ctx context.Context) (jobs.Result, error) {
		<-release
		return jobs.Result{}, nil
	})
	require.NoError(t, s.RegisterJob(job, Trigger{CronSpec: "@every 1h"}, false))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = s.RunNow("slow_job") }()
	// give the first call a moment to mark the registration running.
	time.Sleep(20 * time.Millisecond)
	go func() { defer wg.Done(); _, _ = s.RunNow("slow_job") }()

	close(release)
	wg.Wait()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.calls) >= 1 }, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&job.maxSeen), int32(1), "max_instances=1 must prevent overlapping runs of the same job")
}

func TestScheduler_PauseJob_SkipsExecution(t *testing.T) {
	s := newTestScheduler(t)
	job := newFakeJob("pausable_job", nil)
	require.NoError(t, s.RegisterJob(job, Trigger{CronSpec: "@every 1h"}, false))

	ok, err := s.PauseJob("pausable_job")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.RunNow("pausable_job")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&job.calls), "a paused job must not execute")

	ok, err = s.ResumeJob("pausable_job")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.RunNow("pausable_job")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.calls) == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_PauseJob_UnknownJob(t *testing.T) {
	s := newTestScheduler(t)
	ok, err := s.PauseJob("ghost")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestScheduler_RunWithRecover_CatchesPanic(t *testing.T) {
	s := newTestScheduler(t)
	job := newFakeJob("panicky_job", func(ctx context.Context) (jobs.Result, error) {
		panic("boom")
	})

	_, err := s.runWithRecover(context.Background(), job)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestScheduler_ListJobNames(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.RegisterJob(newFakeJob("job_a", nil), Trigger{CronSpec: "@every 1h"}, false))
	require.NoError(t, s.RegisterJob(newFakeJob("job_b", nil), Trigger{CronSpec: "@every 1h"}, false))

	names := s.ListJobNames()
	assert.ElementsMatch(t, []string{"job_a", "job_b"}, names)
}

func TestTrigger_Spec(t *testing.T) {
	assert.Equal(t, "@every 5m0s", Trigger{Interval: 5 * time.Minute}.spec())
	assert.Equal(t, "0 0 4 * * *", Trigger{CronSpec: "0 0 4 * * *"}.spec())
}
