package expiry_test

import (
	"testing"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/expiry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 10, 14, 18, 45, 0, 0, time.UTC)
	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"today", time.Date(2026, 10, 14, 23, 59, 0, 0, time.UTC), 0},
		{"tomorrow", time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), 1},
		{"one week", time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC), 7},
		{"yesterday", time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC), -1},
		{"across year", time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), 79},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expiry.DaysUntil(now, tt.expiry, time.UTC))
		})
	}
}

func TestDaysUntil_AcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Clocks go back on 2026-10-25; the calendar distance stays whole days.
	now := time.Date(2026, 10, 24, 12, 0, 0, 0, loc)
	exp := time.Date(2026, 10, 31, 0, 0, 0, 0, loc)
	assert.Equal(t, 7, expiry.DaysUntil(now, exp, loc))
}

func TestReminderKey(t *testing.T) {
	exp := time.Date(2026, 10, 21, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "7d_2026-10-21", expiry.ReminderKey(7, exp, time.UTC))
	assert.Equal(t, "30d_2026-10-21", expiry.ReminderKey(30, exp, time.UTC))
}

func TestUrgencyFor(t *testing.T) {
	tests := []struct {
		days  int
		want  expiry.Urgency
		emoji string
	}{
		{0, expiry.UrgencyCritical, "🔴"},
		{1, expiry.UrgencyCritical, "🔴"},
		{2, expiry.UrgencyHigh, "🟠"},
		{7, expiry.UrgencyHigh, "🟠"},
		{8, expiry.UrgencyMedium, "🟡"},
		{14, expiry.UrgencyMedium, "🟡"},
		{15, expiry.UrgencyLow, "🟢"},
		{30, expiry.UrgencyLow, "🟢"},
	}
	for _, tt := range tests {
		got := expiry.UrgencyFor(tt.days)
		assert.Equal(t, tt.want, got, "days=%d", tt.days)
		assert.Equal(t, tt.emoji, got.Emoji(), "days=%d", tt.days)
	}
}
