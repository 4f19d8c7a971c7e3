package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload("bulk_rewrite", json.RawMessage(`{"userId":"u1","posts":[{"subreddit":"golang","title":"t","body":"b"}]}`))
	require.NoError(t, err)
	br, ok := p.(BulkRewrite)
	require.True(t, ok)
	assert.Equal(t, "u1", br.UserID)
	assert.Equal(t, "golang", br.Posts[0].Subreddit)

	p, err = DecodePayload("data_cleanup", json.RawMessage(`{"olderThan":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), p.(DataCleanup).OlderThan)

	p, err = DecodePayload("analytics_update", nil)
	require.NoError(t, err)
	assert.Equal(t, AnalyticsUpdate{}, p)

	p, err = DecodePayload("user_migration", json.RawMessage(`{"fromPlan":"free","toPlan":"pro"}`))
	require.NoError(t, err)
	assert.Equal(t, KindUserMigration, p.Kind())
}

func TestDecodePayload_Errors(t *testing.T) {
	tests := []struct {
		name string
		kind string
		raw  string
		want error
	}{
		{"unknown kind", "send_email", `{}`, ErrUnknownKind},
		{"malformed json", "data_cleanup", `{"olderThan":`, ErrInvalidPayload},
		{"missing posts", "bulk_rewrite", `{"userId":"u1"}`, ErrInvalidPayload},
		{"missing cutoff", "data_cleanup", `{}`, ErrInvalidPayload},
		{"missing plan", "user_migration", `{"fromPlan":"free"}`, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(tt.kind, json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBindUser(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		raw     string
		wantID  string
		wantErr error
	}{
		{"fills missing user", "bulk_rewrite", `{"posts":[]}`, "u1", nil},
		{"fills empty user", "bulk_rewrite", `{"userId":"","posts":[]}`, "u1", nil},
		{"keeps matching user", "bulk_rewrite", `{"userId":"u1","posts":[]}`, "u1", nil},
		{"rejects other user", "bulk_rewrite", `{"userId":"u2","posts":[]}`, "", ErrUserMismatch},
		{"rejects non-string user", "bulk_rewrite", `{"userId":7}`, "", ErrInvalidPayload},
		{"global analytics stays global", "analytics_update", `{}`, "", nil},
		{"analytics for someone else", "analytics_update", `{"userId":"u2"}`, "", ErrUserMismatch},
		{"other kinds untouched", "user_migration", `{"fromPlan":"free","toPlan":"pro"}`, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := BindUser(tt.kind, json.RawMessage(tt.raw), "u1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			var fields struct {
				UserID string `json:"userId"`
			}
			require.NoError(t, json.Unmarshal(out, &fields))
			assert.Equal(t, tt.wantID, fields.UserID)
		})
	}
}
