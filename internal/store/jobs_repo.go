package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/finintel/internal/domain"
)

// JobsRepo records the lifecycle of scheduled job executions (spec §4.7, C5/C7).
type JobsRepo struct {
	db *sql.DB
}

// NewJobsRepo constructs a JobsRepo over the MetaStore connection.
func NewJobsRepo(ms *MetaStore) *JobsRepo { return &JobsRepo{db: ms.Conn()} }

// Start inserts a new JobExecution row in the running state and returns its id.
func (r *JobsRepo) Start(jobName string, targetDate time.Time, fundName *string) (string, error) {
	id := uuid.NewString()
	_, err := r.db.Exec(`
		INSERT INTO job_executions (id, job_name, target_date, fund_name, status, started_at, funds_processed)
		VALUES (?, ?, ?, ?, ?, ?, '[]')`,
		id, jobName, targetDate.UTC().Format("2006-01-02"), fundName,
		string(domain.JobRunning), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("failed to start job execution: %w", err)
	}
	return id, nil
}

// Complete marks a job execution as succeeded, recording its duration and
// processed-funds list.
func (r *JobsRepo) Complete(id string, duration time.Duration, fundsProcessed []string) error {
	processedJSON, err := json.Marshal(fundsProcessed)
	if err != nil {
		return fmt.Errorf("failed to marshal funds processed: %w", err)
	}
	_, err = r.db.Exec(`
		UPDATE job_executions
		SET status = ?, completed_at = ?, duration_ms = ?, funds_processed = ?
		WHERE id = ?`,
		string(domain.JobSuccess), time.Now().UTC().Format(time.RFC3339),
		duration.Milliseconds(), string(processedJSON), id)
	if err != nil {
		return fmt.Errorf("failed to complete job execution: %w", err)
	}
	return nil
}

// Fail marks a job execution as failed with an error message.
func (r *JobsRepo) Fail(id string, duration time.Duration, errMsg string) error {
	_, err := r.db.Exec(`
		UPDATE job_executions
		SET status = ?, completed_at = ?, duration_ms = ?, error_message = ?
		WHERE id = ?`,
		string(domain.JobFailed), time.Now().UTC().Format(time.RFC3339),
		duration.Milliseconds(), errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to fail job execution: %w", err)
	}
	return nil
}

// StaleRunning returns every job_executions row still `running`, the
// crash-recovery sweep the scheduler runs once on startup (spec §4.7). Any
// row in `running` status at startup is stale by definition: a clean process
// always transitions its own rows to success/failed before exiting.
func (r *JobsRepo) StaleRunning() ([]*domain.JobExecution, error) {
	rows, err := r.db.Query(`
		SELECT id, job_name, target_date, fund_name, status, started_at,
			completed_at, duration_ms, error_message, funds_processed
		FROM job_executions WHERE status = ?`, string(domain.JobRunning))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale running executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.JobExecution
	for rows.Next() {
		je, err := scanJobExecutionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, je)
	}
	return out, rows.Err()
}

// Delete permanently removes a job_executions row, the final step of the
// stale-run sweep once its outcome (failed + optionally retry-queued) has
// been recorded (spec §4.7).
func (r *JobsRepo) Delete(id string) error {
	if _, err := r.db.Exec(`DELETE FROM job_executions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete job execution: %w", err)
	}
	return nil
}

// LastExecution returns the most recent execution of a named job, or nil if
// it has never run.
func (r *JobsRepo) LastExecution(jobName string) (*domain.JobExecution, error) {
	row := r.db.QueryRow(`
		SELECT id, job_name, target_date, fund_name, status, started_at, completed_at,
			duration_ms, error_message, funds_processed
		FROM job_executions
		WHERE job_name = ?
		ORDER BY started_at DESC LIMIT 1`, jobName)
	return scanJobExecution(row)
}

// LatestPerJob returns the most recent execution for every job_name present
// in the table, keyed by job_name. Query 1 of the 3-query status batch
// (spec §4.7 get_all_jobs_status).
func (r *JobsRepo) LatestPerJob() (map[string]*domain.JobExecution, error) {
	rows, err := r.db.Query(`
		SELECT je.id, je.job_name, je.target_date, je.fund_name, je.status, je.started_at,
			je.completed_at, je.duration_ms, je.error_message, je.funds_processed
		FROM job_executions je
		INNER JOIN (
			SELECT job_name, MAX(started_at) AS max_started
			FROM job_executions GROUP BY job_name
		) latest ON latest.job_name = je.job_name AND latest.max_started = je.started_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest executions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.JobExecution)
	for rows.Next() {
		je, err := scanJobExecutionRows(rows)
		if err != nil {
			return nil, err
		}
		out[je.JobName] = je
	}
	return out, rows.Err()
}

// RunningNewerThan returns job names with a `running` row started within
// the given threshold — the is_running signal (spec §4.7, 6h default).
func (r *JobsRepo) RunningNewerThan(threshold time.Duration) (map[string]time.Time, error) {
	cutoff := time.Now().Add(-threshold).UTC().Format(time.RFC3339)
	rows, err := r.db.Query(`
		SELECT job_name, started_at FROM job_executions
		WHERE status = ? AND started_at >= ?`, string(domain.JobRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query running executions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var jobName, startedAt string
		if err := rows.Scan(&jobName, &startedAt); err != nil {
			return nil, err
		}
		t, _ := time.Parse(time.RFC3339, startedAt)
		out[jobName] = t
	}
	return out, rows.Err()
}

// RecentLogs returns, for every job_name, its 5 most recent executions
// newest-first — query 3 of the status batch.
func (r *JobsRepo) RecentLogs() (map[string][]*domain.JobExecution, error) {
	rows, err := r.db.Query(`
		SELECT id, job_name, target_date, fund_name, status, started_at,
			completed_at, duration_ms, error_message, funds_processed
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY job_name ORDER BY started_at DESC) AS rn
			FROM job_executions
		) ranked
		WHERE rn <= 5
		ORDER BY job_name, started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent logs: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]*domain.JobExecution)
	for rows.Next() {
		je, err := scanJobExecutionRows(rows)
		if err != nil {
			return nil, err
		}
		out[je.JobName] = append(out[je.JobName], je)
	}
	return out, rows.Err()
}

func scanJobExecutionRows(rows *sql.Rows) (*domain.JobExecution, error) {
	je := &domain.JobExecution{}
	var targetDate, startedAt string
	var completedAt sql.NullString
	var durationMs sql.NullInt64
	var errMsg sql.NullString
	var fundsProcessedJSON string
	err := rows.Scan(&je.ID, &je.JobName, &targetDate, &je.FundName, &je.Status, &startedAt,
		&completedAt, &durationMs, &errMsg, &fundsProcessedJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job execution: %w", err)
	}
	je.TargetDate, _ = time.Parse("2006-01-02", targetDate)
	je.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		je.CompletedAt = &t
	}
	if durationMs.Valid {
		je.DurationMs = &durationMs.Int64
	}
	je.ErrorMessage = errMsg.String
	_ = json.Unmarshal([]byte(fundsProcessedJSON), &je.FundsProcessed)
	return je, nil
}

func scanJobExecution(row *sql.Row) (*domain.JobExecution, error) {
	je := &domain.JobExecution{}
	var targetDate, startedAt string
	var completedAt sql.NullString
	var durationMs sql.NullInt64
	var errMsg sql.NullString
	var fundsProcessedJSON string
	err := row.Scan(&je.ID, &je.JobName, &targetDate, &je.FundName, &je.Status, &startedAt,
		&completedAt, &durationMs, &errMsg, &fundsProcessedJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job execution: %w", err)
	}
	je.TargetDate, _ = time.Parse("2006-01-02", targetDate)
	je.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		je.CompletedAt = &t
	}
	if durationMs.Valid {
		je.DurationMs = &durationMs.Int64
	}
	je.ErrorMessage = errMsg.String
	_ = json.Unmarshal([]byte(fundsProcessedJSON), &je.FundsProcessed)
	return je, nil
}
