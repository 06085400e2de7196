package model_test

import (
	"testing"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodBounds_Daily(t *testing.T) {
	now := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)
	start, end := model.PeriodBounds(now, model.KindDaily, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestPeriodBounds_Weekly(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"wednesday", time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{"monday", time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{"sunday belongs to previous week", time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC), time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)},
		{"crosses month", time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC), time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := model.PeriodBounds(tt.now, model.KindWeekly, time.UTC)
			assert.Equal(t, tt.want, start)
			assert.Equal(t, 7*24*time.Hour, end.Sub(start))
			assert.Equal(t, time.Monday, start.Weekday())
		})
	}
}

func TestPeriodBounds_Monthly(t *testing.T) {
	now := time.Date(2026, 12, 31, 22, 0, 0, 0, time.UTC)
	start, end := model.PeriodBounds(now, model.KindMonthly, time.UTC)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestPeriodBounds_OwnerTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 20:00 UTC is already the next day in Tokyo.
	now := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	start, end := model.PeriodBounds(now, model.KindDaily, loc)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, loc), start)
	assert.True(t, !now.Before(start) && now.Before(end))
}

func TestPeriodBounds_Default(t *testing.T) {
	now := time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)
	start, end := model.PeriodBounds(now, "unknown", nil)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestBudgetSettings_Defaults(t *testing.T) {
	s := model.NewBudgetSettings("owner-1")
	assert.Equal(t, 80.0, s.Threshold())
	assert.True(t, s.NotificationsEnabled)
	assert.False(t, s.WarrantyRemindersEnabled)
	assert.Equal(t, []int{30, 7, 1}, s.Reminders())
	assert.Nil(t, s.Limit(model.KindDaily))

	limit := decimal.NewFromInt(100)
	s.SetLimit(model.KindWeekly, &limit)
	require.NotNil(t, s.Limit(model.KindWeekly))
	assert.True(t, s.Limit(model.KindWeekly).Equal(limit))
}

func TestBudgetSettings_Location(t *testing.T) {
	s := &model.BudgetSettings{Timezone: "Europe/Lisbon"}
	assert.Equal(t, "Europe/Lisbon", s.Location(time.UTC).String())

	s.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, s.Location(time.UTC))
}

func TestTrackedDocument_HasReminder(t *testing.T) {
	doc := &model.TrackedDocument{RemindersSent: []string{"7d_2026-10-21"}}
	assert.True(t, doc.HasReminder("7d_2026-10-21"))
	assert.False(t, doc.HasReminder("1d_2026-10-21"))
}
