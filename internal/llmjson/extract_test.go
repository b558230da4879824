package llmjson

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "bare object", input: `{"a":1}`, want: `{"a":1}`},
		{
			name:  "wrapped in prose",
			input: `Sure, here you go: {"a":1,"b":{"c":2}} — hope that helps.`,
			want:  `{"a":1,"b":{"c":2}}`,
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"a\":1}\n```",
			want:  `{"a":1}`,
		},
		{name: "no object", input: "no json here", wantErr: true},
		{name: "unbalanced", input: `{"a":1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FirstObject(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_WellFormed(t *testing.T) {
	var out struct {
		Score float64 `json:"score"`
	}
	err := Extract(`{"score": 0.5}`, &out)
	require.NoError(t, err)
	assert.Equal(t, 0.5, out.Score)
}

func TestExtract_RepairsMalformedJSON(t *testing.T) {
	var out struct {
		Label string `json:"label"`
	}
	// trailing comma and single-quoted value — not valid JSON on its own
	err := Extract(`{'label': 'bullish',}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "bullish", out.Label)
}

func TestExtract_NoObjectFound(t *testing.T) {
	var out map[string]any
	err := Extract("not json at all", &out)
	assert.Error(t, err)
}

func TestExtractWithRetry_SucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	var out struct {
		OK bool `json:"ok"`
	}

	err := ExtractWithRetry(&out, func() (string, error) {
		calls++
		if calls == 1 {
			return "garbage, not json", nil
		}
		return `{"ok": true}`, nil
	})

	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 2, calls)
}

func TestExtractWithRetry_GivesUpAfterExhaustingAttempts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping retry-exhaustion test in short mode (sleeps RetryAttempts*RetryDelay)")
	}
	calls := 0
	var out struct{}

	err := ExtractWithRetry(&out, func() (string, error) {
		calls++
		return "", errors.New("upstream unavailable")
	})

	assert.Error(t, err)
	assert.Equal(t, RetryAttempts+1, calls)
}
