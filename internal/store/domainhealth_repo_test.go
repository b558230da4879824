package store

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetaStore(t *testing.T) *MetaStore {
	t.Helper()
	ms, err := NewMetaStore(MetaStoreConfig{
		Path: filepath.Join(t.TempDir(), "meta.db"),
		Log:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, ms.Migrate())
	t.Cleanup(func() { ms.Close() })
	return ms
}

func TestDomainHealthRepo_Get_ReturnsNilForUnknownDomain(t *testing.T) {
	repo := NewDomainHealthRepo(newTestMetaStore(t))

	rec, err := repo.Get("example.com")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDomainHealthRepo_RecordFailure_IncrementsAcrossCalls(t *testing.T) {
	repo := NewDomainHealthRepo(newTestMetaStore(t))

	count, err := repo.RecordFailure("example.com", "timeout")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.RecordFailure("example.com", "timeout")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec, err := repo.Get("example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.ConsecutiveFailures)
	assert.Equal(t, "timeout", rec.LastFailureReason)
	assert.False(t, rec.AutoBlacklisted)
}

func TestDomainHealthRepo_RecordSuccess_ResetsFailureCount(t *testing.T) {
	repo := NewDomainHealthRepo(newTestMetaStore(t))

	_, err := repo.RecordFailure("example.com", "timeout")
	require.NoError(t, err)
	_, err = repo.RecordFailure("example.com", "timeout")
	require.NoError(t, err)

	require.NoError(t, repo.RecordSuccess("example.com"))

	rec, err := repo.Get("example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ConsecutiveFailures)
}

func TestDomainHealthRepo_AutoBlacklist_IsBlacklisted(t *testing.T) {
	repo := NewDomainHealthRepo(newTestMetaStore(t))

	blacklisted, err := repo.IsBlacklisted("example.com")
	require.NoError(t, err)
	assert.False(t, blacklisted)

	_, err = repo.RecordFailure("example.com", "timeout")
	require.NoError(t, err)
	require.NoError(t, repo.AutoBlacklist("example.com"))

	blacklisted, err = repo.IsBlacklisted("example.com")
	require.NoError(t, err)
	assert.True(t, blacklisted)
}
