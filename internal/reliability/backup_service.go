package reliability

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

// BackupService stages a point-in-time snapshot of MetaStore (via `VACUUM
// INTO`, the same atomic-copy technique the teacher's backup service uses)
// plus every research-report PDF under researchDir into a single tar.gz
// archive.
type BackupService struct {
	metaDBPath  string
	researchDir string
	stagingDir  string
	log         zerolog.Logger
}

// NewBackupService constructs a BackupService.
func NewBackupService(metaDBPath, researchDir, stagingDir string, log zerolog.Logger) *BackupService {
	return &BackupService{
		metaDBPath:  metaDBPath,
		researchDir: researchDir,
		stagingDir:  stagingDir,
		log:         log.With().Str("service", "backup").Logger(),
	}
}

// Manifest describes one staged backup archive.
type Manifest struct {
	Timestamp      time.Time `json:"timestamp"`
	MetaDBChecksum string    `json:"meta_db_checksum"`
	MetaDBSize     int64     `json:"meta_db_size_bytes"`
	ReportCount    int       `json:"report_count"`
}

// CreateArchive snapshots MetaStore and copies every research report into a
// staging directory, then tars+gzips it into archivePath. Returns the
// manifest written alongside the snapshot.
func (s *BackupService) CreateArchive(db *sql.DB, archivePath string) (*Manifest, error) {
	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(s.stagingDir)

	snapshotPath := filepath.Join(s.stagingDir, "meta.db")
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", snapshotPath)); err != nil {
		return nil, fmt.Errorf("VACUUM INTO failed: %w", err)
	}
	if err := s.verifySnapshot(snapshotPath); err != nil {
		return nil, fmt.Errorf("backup snapshot failed integrity check: %w", err)
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	checksum, err := checksumFile(snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum snapshot: %w", err)
	}

	reportsDir := filepath.Join(s.stagingDir, "research")
	reportCount, err := copyReports(s.researchDir, reportsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stage research reports: %w", err)
	}

	manifest := &Manifest{
		Timestamp:      time.Now().UTC(),
		MetaDBChecksum: checksum,
		MetaDBSize:     info.Size(),
		ReportCount:    reportCount,
	}
	manifestPath := filepath.Join(s.stagingDir, "manifest.json")
	if err := writeManifest(manifestPath, manifest); err != nil {
		return nil, err
	}

	if err := createArchive(archivePath, s.stagingDir); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	s.log.Info().
		Int64("meta_db_size_bytes", manifest.MetaDBSize).
		Int("report_count", reportCount).
		Msg("backup archive created")

	return manifest, nil
}

func (s *BackupService) verifySnapshot(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

// copyReports copies every .pdf under srcDir into dstDir, preserving the
// <ticker|sector|fund_name>/<file>.pdf layout (spec §6 filesystem layout).
func copyReports(srcDir, dstDir string) (int, error) {
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		return 0, nil
	}
	count := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".pdf") {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := copyFile(path, dst); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func writeManifest(path string, m *Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// createArchive tars+gzips every file under dir into archivePath.
func createArchive(archivePath, dir string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == filepath.Base(archivePath) {
			return nil
		}
		return addFileToArchive(tw, path, rel)
	})
}

func addFileToArchive(tw *tar.Writer, filePath, nameInArchive string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	header := &tar.Header{Name: nameInArchive, Size: info.Size(), Mode: int64(info.Mode()), ModTime: info.ModTime()}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
