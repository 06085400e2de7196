package storage

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_ListExpiringDocuments_SkipsBadRows(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var logs bytes.Buffer
	s.SetLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	ctx := context.Background()
	rows := []struct {
		id, expiry, sent string
	}{
		{"good", "2026-10-26", "[]"},
		{"iso", "2026-10-28T00:00:00Z", `["7d_2026-10-28"]`},
		{"bad-date", "not-a-date", "[]"},
		{"bad-sent", "2026-10-30", "{bad"},
	}
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO documents (id, owner_id, title, expiry_date, reminders_sent) VALUES (?, 'alice', ?, ?, ?)`,
			r.id, r.id, r.expiry, r.sent)
		require.NoError(t, err)
	}

	docs, err := s.ListExpiringDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	byID := map[string]time.Time{}
	for _, d := range docs {
		require.NotNil(t, d.ExpiryDate)
		byID[d.ID] = *d.ExpiryDate
	}
	assert.True(t, byID["good"].Equal(time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC)))
	assert.True(t, byID["iso"].Equal(time.Date(2026, 10, 28, 0, 0, 0, 0, time.UTC)))

	assert.Contains(t, logs.String(), "bad-date")
	assert.Contains(t, logs.String(), "bad-sent")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-10-26", time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC)},
		{"2026-10-26T10:30:00Z", time.Date(2026, 10, 26, 10, 30, 0, 0, time.UTC)},
		{"2026-10-26T10:30:00.000", time.Date(2026, 10, 26, 10, 30, 0, 0, time.UTC)},
		{"2026-10-26T12:30:00+02:00", time.Date(2026, 10, 26, 10, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %s", got)
		})
	}

	_, err := parseDate("tomorrow")
	assert.Error(t, err)
}
