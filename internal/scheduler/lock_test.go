package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeartbeatLock(t *testing.T) *HeartbeatLock {
	t.Helper()
	hl, err := NewHeartbeatLock(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return hl
}

func TestHeartbeatLock_IsRunning_FalseWithNoHeartbeatFile(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	assert.False(t, hl.IsRunning())
}

func TestHeartbeatLock_IsRunning_TrueAfterFreshTouch(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	require.NoError(t, hl.touch())
	assert.True(t, hl.IsRunning())
}

func TestHeartbeatLock_IsRunning_FalseWhenStale(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	staleSec := time.Now().Add(-2 * HeartbeatStaleAfter).Unix()
	content := fmt.Sprintf("%f", float64(staleSec))
	require.NoError(t, os.WriteFile(hl.heartbeatPath, []byte(content), 0o644))
	assert.False(t, hl.IsRunning())
}

func TestHeartbeatLock_AcquireStartupLock_SucceedsWhenNoLockExists(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	acquired, err := hl.acquireStartupLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.FileExists(t, hl.lockPath)
}

func TestHeartbeatLock_AcquireStartupLock_FailsWhenFreshLockExists(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	acquired, err := hl.acquireStartupLock()
	require.NoError(t, err)
	require.True(t, acquired)

	// A second attempt before release should see the fresh lock and decline.
	acquired2, err := hl.acquireStartupLock()
	require.NoError(t, err)
	assert.False(t, acquired2)
}

func TestHeartbeatLock_AcquireStartupLock_SucceedsWhenLockIsStale(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	stalePast := time.Now().Add(-2 * LockStaleAfter).Unix()
	content := fmt.Sprintf("%d\n%d\n", stalePast, os.Getpid())
	require.NoError(t, os.WriteFile(hl.lockPath, []byte(content), 0o644))

	acquired, err := hl.acquireStartupLock()
	require.NoError(t, err)
	assert.True(t, acquired, "a lock file older than LockStaleAfter must be treated as abandoned")
}

func TestHeartbeatLock_Release_RemovesLockFile(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	_, err := hl.acquireStartupLock()
	require.NoError(t, err)
	require.FileExists(t, hl.lockPath)

	hl.release()
	_, statErr := os.Stat(hl.lockPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHeartbeatLock_Stop_IsSafeToCallRepeatedly(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	hl.startHeartbeatLoop()

	assert.NotPanics(t, func() {
		hl.Stop()
		hl.Stop()
	})
}

func TestHeartbeatLock_Stop_BeforeLoopStarted(t *testing.T) {
	hl := newTestHeartbeatLock(t)
	assert.NotPanics(t, func() { hl.Stop() })
}

func TestScheduler_SweepStaleRunning_FailsEnqueuesAndDeletes(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.RegisterJob(newFakeJob("calc_job", nil), Trigger{CronSpec: "@every 1h"}, true))

	id, err := s.jobsRepo.Start("calc_job", time.Now(), nil)
	require.NoError(t, err)

	require.NoError(t, s.sweepStaleRunning())

	due, err := s.retryRepo.Due(10)
	require.NoError(t, err)
	require.Len(t, due, 1, "a calculation-class job's stale run must be enqueued for retry")
	assert.Equal(t, id, due[0].EntityID)

	stale, err := s.jobsRepo.StaleRunning()
	require.NoError(t, err)
	assert.Empty(t, stale, "the stale row must be deleted once its outcome (failed + retry-queued) is recorded")
}

func TestScheduler_SweepStaleRunning_NonCalculationJobSkipsRetryQueue(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.RegisterJob(newFakeJob("plain_job", nil), Trigger{CronSpec: "@every 1h"}, false))

	_, err := s.jobsRepo.Start("plain_job", time.Now(), nil)
	require.NoError(t, err)

	require.NoError(t, s.sweepStaleRunning())

	due, err := s.retryRepo.Due(10)
	require.NoError(t, err)
	assert.Empty(t, due, "a non-calculation-class job's stale run must not be retry-queued")
}

func TestNewHeartbeatLock_CreatesLogsDirectory(t *testing.T) {
	root := t.TempDir()
	_, err := NewHeartbeatLock(root, zerolog.Nop())
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "logs"))
}
