package jobs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/reliability"
)

const backupRetentionDays = 30

// BackupJob uploads a MetaStore + research-reports snapshot to R2 and
// rotates old archives. Only registered when R2 credentials are configured
// (internal/di wiring), since there is nowhere useful to send a backup
// otherwise.
type BackupJob struct {
	JobBase
	db     *sql.DB
	r2     *reliability.R2BackupService
	retain int
	log    zerolog.Logger
}

// BackupJobConfig wires a BackupJob's dependencies.
type BackupJobConfig struct {
	DB            *sql.DB
	R2Backup      *reliability.R2BackupService
	RetentionDays int
	Log           zerolog.Logger
}

// NewBackupJob constructs a BackupJob.
func NewBackupJob(cfg BackupJobConfig) *BackupJob {
	retain := cfg.RetentionDays
	if retain <= 0 {
		retain = backupRetentionDays
	}
	return &BackupJob{
		JobBase: NewJobBase("backup"),
		db:      cfg.DB,
		r2:      cfg.R2Backup,
		retain:  retain,
		log:     cfg.Log.With().Str("job", "backup").Logger(),
	}
}

// Run creates and uploads a fresh backup archive, then rotates old ones.
func (j *BackupJob) Run(ctx context.Context) (Result, error) {
	if err := j.r2.CreateAndUploadBackup(ctx, j.db); err != nil {
		return Result{}, fmt.Errorf("failed to create and upload backup: %w", err)
	}
	if err := j.r2.RotateOldBackups(ctx, j.retain); err != nil {
		j.log.Warn().Err(err).Msg("backup rotation failed")
	}
	return Result{}, nil
}
