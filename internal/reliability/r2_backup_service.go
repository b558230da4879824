package reliability

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// R2BackupService drives BackupService's local archive creation and ships
// the result to Cloudflare R2, then enforces a retention policy on what's
// stored there (ground: teacher's R2BackupService, adapted to finintel's
// single-archive-per-run shape instead of per-database files).
type R2BackupService struct {
	r2      *R2Client
	backup  *BackupService
	dataDir string
	log     zerolog.Logger
}

// NewR2BackupService constructs an R2BackupService.
func NewR2BackupService(r2 *R2Client, backup *BackupService, dataDir string, log zerolog.Logger) *R2BackupService {
	return &R2BackupService{r2: r2, backup: backup, dataDir: dataDir, log: log.With().Str("service", "r2_backup").Logger()}
}

const archivePrefix = "finintel-backup-"

// BackupInfo describes one archive stored in R2.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// CreateAndUploadBackup stages a fresh archive and uploads it to R2.
func (s *R2BackupService) CreateAndUploadBackup(ctx context.Context, db *sql.DB) error {
	s.log.Info().Msg("starting R2 backup")
	start := time.Now()

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%s%s.tar.gz", archivePrefix, timestamp)
	archivePath := filepath.Join(s.dataDir, archiveName)

	if _, err := s.backup.CreateArchive(db, archivePath); err != nil {
		return fmt.Errorf("failed to create backup archive: %w", err)
	}
	defer os.Remove(archivePath)

	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if err := s.r2.Upload(ctx, archiveName, f, info.Size()); err != nil {
		return fmt.Errorf("failed to upload backup to r2: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_mb", info.Size()/1024/1024).
		Msg("R2 backup completed")
	return nil
}

// ListBackups lists every backup archive stored in R2, newest first.
func (s *R2BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.r2.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list r2 backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == nil {
			continue
		}
		filename := *obj.Key
		if !strings.HasPrefix(filename, archivePrefix) || !strings.HasSuffix(filename, ".tar.gz") {
			continue
		}
		ts := strings.TrimSuffix(strings.TrimPrefix(filename, archivePrefix), ".tar.gz")
		timestamp, err := time.Parse("2006-01-02-150405", ts)
		if err != nil {
			s.log.Warn().Str("filename", filename).Msg("failed to parse timestamp from backup filename")
			continue
		}
		var size int64
		if obj.Size != nil {
			size = *obj.Size
		}
		backups = append(backups, BackupInfo{
			Filename:  filename,
			Timestamp: timestamp,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].Timestamp.After(backups[j].Timestamp) })
	return backups, nil
}

// minBackupsToKeep bounds rotation: never delete below this count
// regardless of age, so a slow rollout never leaves zero recoverable backups.
const minBackupsToKeep = 3

// RotateOldBackups deletes backups older than retentionDays, always
// keeping at least minBackupsToKeep regardless of age.
func (s *R2BackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	s.log.Info().Int("retention_days", retentionDays).Msg("starting R2 backup rotation")

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) <= minBackupsToKeep {
		s.log.Info().Int("count", len(backups)).Msg("too few backups to rotate")
		return nil
	}

	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}

	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || retentionDays == 0 {
			continue
		}
		if b.Timestamp.Before(cutoff) {
			if err := s.r2.Delete(ctx, b.Filename); err != nil {
				s.log.Error().Err(err).Str("filename", b.Filename).Msg("failed to delete old backup")
				continue
			}
			deleted++
		}
	}

	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("R2 backup rotation completed")
	return nil
}
