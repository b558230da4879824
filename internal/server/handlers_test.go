package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finintel/internal/scheduler"
	"github.com/aristath/finintel/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	ms, err := store.NewMetaStore(store.MetaStoreConfig{
		Path: filepath.Join(dir, "meta.db"),
		Log:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, ms.Migrate())
	t.Cleanup(func() { ms.Close() })

	heartbeat, err := scheduler.NewHeartbeatLock(dir, zerolog.Nop())
	require.NoError(t, err)

	sched := scheduler.New(scheduler.Config{
		Jobs:      store.NewJobsRepo(ms),
		Retry:     store.NewRetryRepo(ms),
		Heartbeat: heartbeat,
		Log:       zerolog.Nop(),
	})
	t.Cleanup(sched.ShutdownScheduler)

	return New(Config{Port: 0, Log: zerolog.Nop(), Scheduler: sched, DevMode: true})
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleListJobs_EmptyRegistry(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/jobs/")
	assert.Equal(t, http.StatusOK, rec.Code)

	var statuses []scheduler.JobStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	assert.Empty(t, statuses)
}

func TestHandleRunJobNow_UnknownJob(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/jobs/does_not_exist/run")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePauseAndResumeJob_UnknownJob(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/jobs/ghost/pause")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/jobs/ghost/resume")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSchedulerStatus_ReportsNotRunningBeforeStart(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/scheduler/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body["running"])
}

func TestHandleStartAndShutdownScheduler(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/scheduler/start")
	assert.Equal(t, http.StatusOK, rec.Code)
	var startBody map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &startBody))
	assert.True(t, startBody["ok"])

	statusRec := doRequest(t, s, http.MethodGet, "/api/scheduler/status")
	var statusBody map[string]bool
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &statusBody))
	assert.True(t, statusBody["running"])

	shutdownRec := doRequest(t, s, http.MethodPost, "/api/scheduler/shutdown")
	assert.Equal(t, http.StatusOK, shutdownRec.Code)
}
