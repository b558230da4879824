package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finintel/internal/jobs"
)

func TestGetAllJobsStatus_ReportsPausedAndNextRunTime(t *testing.T) {
	s := newTestScheduler(t)
	job := newFakeJob("idle_job", nil)
	require.NoError(t, s.RegisterJob(job, Trigger{CronSpec: "@every 1h"}, false))

	statuses, err := s.GetAllJobsStatus()
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "idle_job", statuses[0].Name)
	assert.False(t, statuses[0].IsPaused)
	assert.NotNil(t, statuses[0].NextRunTime)
	assert.False(t, statuses[0].IsRunning)

	_, err = s.PauseJob("idle_job")
	require.NoError(t, err)

	statuses, err = s.GetAllJobsStatus()
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].IsPaused)
	assert.Nil(t, statuses[0].NextRunTime, "a paused job reports no next run time")
}

func TestGetAllJobsStatus_ReportsLastErrorAfterFailedRun(t *testing.T) {
	s := newTestScheduler(t)
	job := newFakeJob("failing_job", func(ctx context.Context) (jobs.Result, error) {
		return jobs.Result{}, errors.New("upstream unavailable")
	})
	require.NoError(t, s.RegisterJob(job, Trigger{CronSpec: "@every 1h"}, false))

	s.runJob(s.registrations["failing_job"])

	statuses, err := s.GetAllJobsStatus()
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Contains(t, statuses[0].LastError, "upstream unavailable")
	assert.False(t, statuses[0].IsRunning, "the run completed, so it must no longer report as running")
	require.NotEmpty(t, statuses[0].RecentLogs)
}

func TestGetAllJobsStatus_ReportsSuccessWithNoLastError(t *testing.T) {
	s := newTestScheduler(t)
	job := newFakeJob("ok_job", nil)
	require.NoError(t, s.RegisterJob(job, Trigger{CronSpec: "@every 1h"}, false))

	s.runJob(s.registrations["ok_job"])

	statuses, err := s.GetAllJobsStatus()
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Empty(t, statuses[0].LastError)
	require.NotEmpty(t, statuses[0].RecentLogs)
}

func TestGetAllJobsStatus_NoJobsRegistered(t *testing.T) {
	s := newTestScheduler(t)
	statuses, err := s.GetAllJobsStatus()
	require.NoError(t, err)
	assert.Empty(t, statuses)
}
