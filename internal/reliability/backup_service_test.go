package reliability

import (
	"archive/tar"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestMetaDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE ingested_items (id TEXT PRIMARY KEY, ticker TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO ingested_items (id, ticker) VALUES ('1', 'AAPL'), ('2', 'MSFT')`)
	require.NoError(t, err)
	return db
}

func TestBackupService_CreateArchive(t *testing.T) {
	db := newTestMetaDB(t)

	tempDir := t.TempDir()
	researchDir := filepath.Join(tempDir, "research")
	stagingDir := filepath.Join(tempDir, "staging")
	require.NoError(t, os.MkdirAll(filepath.Join(researchDir, "AAPL"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(researchDir, "AAPL", "report.pdf"), []byte("pdf bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(researchDir, "AAPL", "notes.txt"), []byte("ignore me"), 0o644))

	svc := NewBackupService("", researchDir, stagingDir, zerolog.Nop())
	archivePath := filepath.Join(tempDir, "backup.tar.gz")

	manifest, err := svc.CreateArchive(db, archivePath)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.ReportCount, "only the .pdf should be counted, not the .txt sidecar")
	assert.NotEmpty(t, manifest.MetaDBChecksum)
	assert.Greater(t, manifest.MetaDBSize, int64(0))

	assert.FileExists(t, archivePath)
	assert.NoDirExists(t, stagingDir, "staging directory must be cleaned up after archiving")

	names := readTarNames(t, archivePath)
	assert.Contains(t, names, "meta.db")
	assert.Contains(t, names, "manifest.json")
	assert.Contains(t, names, filepath.Join("research", "AAPL", "report.pdf"))
	assert.NotContains(t, names, filepath.Join("research", "AAPL", "notes.txt"))
}

func TestBackupService_CreateArchive_NoResearchDir(t *testing.T) {
	db := newTestMetaDB(t)

	tempDir := t.TempDir()
	svc := NewBackupService("", filepath.Join(tempDir, "missing"), filepath.Join(tempDir, "staging"), zerolog.Nop())

	manifest, err := svc.CreateArchive(db, filepath.Join(tempDir, "backup.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, 0, manifest.ReportCount)
}

func TestBackupService_VerifySnapshot_RejectsCorruptFile(t *testing.T) {
	tempDir := t.TempDir()
	corrupt := filepath.Join(tempDir, "corrupt.db")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a sqlite file"), 0o644))

	svc := NewBackupService("", tempDir, tempDir, zerolog.Nop())
	err := svc.verifySnapshot(corrupt)
	assert.Error(t, err)
}

func TestCopyReports_OnlyCopiesPDFs(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	dst := filepath.Join(tempDir, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "TECH"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "TECH", "a.PDF"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "TECH", "b.pdf"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "TECH", "c.json"), []byte("c"), 0o644))

	count, err := copyReports(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "case-insensitive .pdf match should count both a.PDF and b.pdf")
	assert.FileExists(t, filepath.Join(dst, "TECH", "a.PDF"))
	assert.FileExists(t, filepath.Join(dst, "TECH", "b.pdf"))
	assert.NoFileExists(t, filepath.Join(dst, "TECH", "c.json"))
}

func TestWriteManifest_RoundTrips(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "manifest.json")
	m := &Manifest{MetaDBChecksum: "sha256:deadbeef", MetaDBSize: 1024, ReportCount: 3}

	require.NoError(t, writeManifest(path, m))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Manifest
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, m.MetaDBChecksum, got.MetaDBChecksum)
	assert.Equal(t, m.ReportCount, got.ReportCount)
}

func readTarNames(t *testing.T, archivePath string) []string {
	t.Helper()
	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	return names
}
