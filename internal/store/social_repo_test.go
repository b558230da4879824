package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finintel/internal/domain"
)

func newMockSocialRepo(t *testing.T) (*SocialRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SocialRepo{db: db}, mock
}

func TestSocialRepo_UpsertMetric(t *testing.T) {
	repo, mock := newMockSocialRepo(t)

	ratio := 1.5
	m := &domain.SocialMetric{
		Ticker:         "AAPL",
		Platform:       domain.SocialPlatform("stocktwits"),
		CreatedAt:      time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		Volume:         42,
		BullBearRatio:  &ratio,
		SentimentLabel: "Bullish",
		SentimentScore: 1.2,
	}

	mock.ExpectExec("INSERT INTO social_metrics").
		WithArgs(m.Ticker, string(m.Platform), "2026-07-30T12:00:00Z", m.Volume, ratio,
			m.SentimentLabel, m.SentimentScore, m.RawPosts, m.AnalysisSessionID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertMetric(m)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSocialRepo_SetSessionSentiment(t *testing.T) {
	repo, mock := newMockSocialRepo(t)

	mock.ExpectExec("UPDATE social_sessions SET sentiment_label = \\?, sentiment_score = \\? WHERE id = \\?").
		WithArgs("Bearish", -0.8, "session-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetSessionSentiment("session-1", "Bearish", -0.8)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSocialRepo_MarkSessionAnalyzed(t *testing.T) {
	repo, mock := newMockSocialRepo(t)

	mock.ExpectExec("UPDATE social_sessions SET analyzed = 1 WHERE id = \\?").
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkSessionAnalyzed("session-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSocialRepo_SetSessionSentiment_PropagatesDBError(t *testing.T) {
	repo, mock := newMockSocialRepo(t)

	mock.ExpectExec("UPDATE social_sessions").WillReturnError(assert.AnError)

	err := repo.SetSessionSentiment("session-1", "Neutral", 0)
	assert.Error(t, err)
}
