package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/finintel/internal/domain"
)

// RetryRepo manages the deferred-retry queue for failed job items (spec §4.7).
type RetryRepo struct {
	db *sql.DB
}

// NewRetryRepo constructs a RetryRepo over the MetaStore connection.
func NewRetryRepo(ms *MetaStore) *RetryRepo { return &RetryRepo{db: ms.Conn()} }

// Enqueue adds a failed entity to the retry queue with an initial backoff.
func (r *RetryRepo) Enqueue(jobName string, targetDate time.Time, entityID, entityType, reason string, backoff time.Duration) error {
	_, err := r.db.Exec(`
		INSERT INTO retry_queue (id, job_name, target_date, entity_id, entity_type, failure_reason, attempts, next_attempt_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		uuid.NewString(), jobName, targetDate.UTC().Format("2006-01-02"), entityID, entityType, reason,
		time.Now().Add(backoff).UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to enqueue retry: %w", err)
	}
	return nil
}

// Due returns retry entries whose next_attempt_at has passed, oldest first.
func (r *RetryRepo) Due(limit int) ([]*domain.RetryQueueEntry, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	rows, err := r.db.Query(`
		SELECT id, job_name, target_date, entity_id, entity_type, failure_reason, attempts, next_attempt_at
		FROM retry_queue
		WHERE next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due retries: %w", err)
	}
	defer rows.Close()

	var out []*domain.RetryQueueEntry
	for rows.Next() {
		e := &domain.RetryQueueEntry{}
		var targetDate, nextAttemptAt string
		if err := rows.Scan(&e.ID, &e.JobName, &targetDate, &e.EntityID, &e.EntityType,
			&e.FailureReason, &e.Attempts, &nextAttemptAt); err != nil {
			return nil, err
		}
		e.TargetDate, _ = time.Parse("2006-01-02", targetDate)
		e.NextAttemptAt, _ = time.Parse(time.RFC3339, nextAttemptAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Reschedule bumps a retry entry's attempt count and pushes its next attempt
// out by an exponentially growing backoff.
func (r *RetryRepo) Reschedule(id string, backoff time.Duration) error {
	_, err := r.db.Exec(`
		UPDATE retry_queue SET attempts = attempts + 1, next_attempt_at = ?
		WHERE id = ?`, time.Now().Add(backoff).UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to reschedule retry: %w", err)
	}
	return nil
}

// Remove deletes a retry entry once it has succeeded or been abandoned.
func (r *RetryRepo) Remove(id string) error {
	if _, err := r.db.Exec(`DELETE FROM retry_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove retry entry: %w", err)
	}
	return nil
}
