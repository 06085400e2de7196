package schedule_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseClock(t *testing.T) {
	c, err := schedule.ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, schedule.Clock{Hour: 9, Minute: 5}, c)
	assert.Equal(t, "09:05", c.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "noon"} {
		_, err := schedule.ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestNextDaily(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"later today", time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)},
		{"exactly now rolls to tomorrow", time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)},
		{"already passed", time.Date(2026, 10, 14, 22, 0, 0, 0, time.UTC), time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)},
		{"month end", time.Date(2026, 10, 31, 23, 0, 0, 0, time.UTC), time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, schedule.NextDaily(tt.now, 9, 0))
		})
	}
}

func TestDebouncer(t *testing.T) {
	d := schedule.NewDebouncer(30 * time.Second)
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	ok, _ := d.Allow(start)
	assert.True(t, ok)

	ok, wait := d.Allow(start.Add(10 * time.Second))
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, wait)

	ok, _ = d.Allow(start.Add(30 * time.Second))
	assert.True(t, ok)

	d.Reset()
	ok, _ = d.Allow(start.Add(31 * time.Second))
	assert.True(t, ok)
}

func TestDebouncer_DefaultWindow(t *testing.T) {
	d := schedule.NewDebouncer(0)
	assert.Equal(t, schedule.DefaultDebounceWindow, d.Window)

	var zero schedule.Debouncer
	now := time.Now()
	ok, _ := zero.Allow(now)
	assert.True(t, ok)
	ok, wait := zero.Allow(now.Add(time.Second))
	assert.False(t, ok)
	assert.Equal(t, 29*time.Second, wait)
}

func TestRunner_RunDue(t *testing.T) {
	start := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	scanAt := schedule.Clock{Hour: 9, Minute: 0}

	var scans, backups int
	r := schedule.NewRunner(schedule.RunnerConfig{Now: func() time.Time { return start }}, testLogger(),
		schedule.Job{Name: "expiry-scan", DailyAt: &scanAt, Run: func(context.Context) error { scans++; return nil }},
		schedule.Job{Name: "backup", Every: 6 * time.Hour, Run: func(context.Context) error { backups++; return errors.New("bucket unavailable") }},
	)
	ctx := context.Background()

	assert.Equal(t, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), r.NextRun("expiry-scan"))
	assert.Equal(t, start.Add(6*time.Hour), r.NextRun("backup"))

	assert.Empty(t, r.RunDue(ctx, start.Add(30*time.Minute)))

	ran := r.RunDue(ctx, start.Add(time.Hour))
	assert.Equal(t, []string{"expiry-scan"}, ran)
	assert.Equal(t, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), r.NextRun("expiry-scan"))
	assert.Equal(t, start.Add(time.Hour), r.LastRun("expiry-scan"))

	// Same day again: not due
	assert.Empty(t, r.RunDue(ctx, start.Add(2*time.Hour)))

	// A failing job is still rescheduled
	ran = r.RunDue(ctx, start.Add(6*time.Hour))
	assert.Equal(t, []string{"backup"}, ran)
	assert.Equal(t, start.Add(12*time.Hour), r.NextRun("backup"))

	assert.Equal(t, 1, scans)
	assert.Equal(t, 1, backups)
}

func TestRunner_Location(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	at := schedule.Clock{Hour: 9, Minute: 0}
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) // 08:00 in New York
	r := schedule.NewRunner(schedule.RunnerConfig{Location: loc, Now: func() time.Time { return now }}, testLogger(),
		schedule.Job{Name: "scan", DailyAt: &at, Run: func(context.Context) error { return nil }},
	)
	assert.True(t, r.NextRun("scan").Equal(time.Date(2026, 10, 14, 13, 0, 0, 0, time.UTC)))
}

func TestRunner_StartStop(t *testing.T) {
	var calls atomic.Int32
	r := schedule.NewRunner(schedule.RunnerConfig{CheckInterval: 5 * time.Millisecond}, testLogger(),
		schedule.Job{Name: "tick", Every: time.Millisecond, Run: func(context.Context) error {
			calls.Add(1)
			return nil
		}},
	)

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()), "second start is a no-op")

	assert.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx), "second stop is a no-op")
}
