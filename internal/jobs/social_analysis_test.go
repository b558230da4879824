package jobs

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/store"
)

// fakeOllamaServer returns an httptest.Server that answers /api/generate
// with a single streamed ndjson chunk carrying responseBody as its
// "response" field, mimicking the real inference server's wire contract.
func fakeOllamaServer(t *testing.T, responseBody string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response":%q,"done":true}`+"\n", responseBody)
	}))
}

func newTestSocialRepo(t *testing.T) (*store.SocialRepo, *store.MetaStore) {
	t.Helper()
	ms, err := store.NewMetaStore(store.MetaStoreConfig{
		Path: filepath.Join(t.TempDir(), "meta.db"),
		Log:  zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, ms.Migrate())
	t.Cleanup(func() { ms.Close() })
	return store.NewSocialRepo(ms), ms
}

func TestSocialAnalysisJob_Run_PersistsSentimentVerdict(t *testing.T) {
	srv := fakeOllamaServer(t, `{"label":"Bullish","score":1.4,"reason":"mostly upbeat chatter"}`)
	defer srv.Close()

	social, ms := newTestSocialRepo(t)
	platform := domain.SocialPlatform("stocktwits")
	require.NoError(t, social.InsertPost("AAPL", platform, time.Now(), "to the moon"))

	posts, err := social.UngroupedPosts("AAPL", platform)
	require.NoError(t, err)
	require.Len(t, posts, 1)

	// Sessioning windows are normally built by the grouping job; construct
	// one directly here linking the post we just inserted.
	sessionID, err := social.CreateSession("AAPL", platform, time.Now().Add(-time.Hour), time.Now(), []string{posts[0].ID})
	require.NoError(t, err)

	llmClient := llm.New(llm.Config{BaseURL: srv.URL, DefaultModel: "test-model", Log: zerolog.Nop()})
	job := NewSocialAnalysisJob(SocialAnalysisJobConfig{Social: social, LLM: llmClient, Log: zerolog.Nop()})

	_, err = job.Run(context.Background())
	require.NoError(t, err)

	sessions, err := social.OpenSessionsNeedingAnalysis(10)
	require.NoError(t, err)
	for _, s := range sessions {
		assert.NotEqual(t, sessionID, s.ID, "the analyzed session should no longer show up as open")
	}

	var label string
	var score float64
	require.NoError(t, ms.Conn().QueryRow(
		`SELECT sentiment_label, sentiment_score FROM social_sessions WHERE id = ?`, sessionID,
	).Scan(&label, &score))
	assert.Equal(t, "Bullish", label, "the LLM's crowd-sentiment verdict must be persisted, not discarded")
	assert.Equal(t, 1.4, score)
}
