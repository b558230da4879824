package domainhealth

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finintel/internal/store"
)

func TestDomainOf(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "basic https url", input: "https://www.Example.com/a/b", want: "www.example.com"},
		{name: "with port", input: "http://example.com:8080/feed.xml", want: "example.com"},
		{name: "unparseable falls back to raw input", input: "://not a url", want: "://not a url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainOf(tt.input))
		})
	}
}

func TestTracker_ShouldAutoBlacklist(t *testing.T) {
	tr := New(nil, 4, zerolog.Nop())
	assert.False(t, tr.ShouldAutoBlacklist(3))
	assert.True(t, tr.ShouldAutoBlacklist(4))
	assert.True(t, tr.ShouldAutoBlacklist(5))
}

func newTestTracker(t *testing.T, threshold int) *Tracker {
	t.Helper()
	ms, err := store.NewMetaStore(store.MetaStoreConfig{
		Path: filepath.Join(t.TempDir(), "meta.db"),
		Log:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, ms.Migrate())
	t.Cleanup(func() { ms.Close() })
	return New(store.NewDomainHealthRepo(ms), threshold, zerolog.Nop())
}

func TestTracker_RecordFailure_AutoBlacklistsAtThreshold(t *testing.T) {
	tr := newTestTracker(t, 3)

	count, err := tr.RecordFailure("bad-feed.example.com", "timeout")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	blacklisted, err := tr.IsBlacklisted("bad-feed.example.com")
	require.NoError(t, err)
	assert.False(t, blacklisted)

	_, err = tr.RecordFailure("bad-feed.example.com", "timeout")
	require.NoError(t, err)
	count, err = tr.RecordFailure("bad-feed.example.com", "timeout")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	blacklisted, err = tr.IsBlacklisted("bad-feed.example.com")
	require.NoError(t, err)
	assert.True(t, blacklisted, "reaching the threshold must auto-blacklist the domain")
}

func TestTracker_RecordSuccess_ClearsCounterButNotBlacklist(t *testing.T) {
	tr := newTestTracker(t, 2)

	_, err := tr.RecordFailure("flaky.example.com", "timeout")
	require.NoError(t, err)
	_, err = tr.RecordFailure("flaky.example.com", "timeout")
	require.NoError(t, err)
	blacklisted, err := tr.IsBlacklisted("flaky.example.com")
	require.NoError(t, err)
	require.True(t, blacklisted)

	require.NoError(t, tr.RecordSuccess("flaky.example.com"))

	blacklisted, err = tr.IsBlacklisted("flaky.example.com")
	require.NoError(t, err)
	assert.True(t, blacklisted, "RecordSuccess resets the failure counter but does not lift an existing auto-blacklist")
}
