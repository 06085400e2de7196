package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultCheckInterval is how often the runner looks for due jobs.
const DefaultCheckInterval = 30 * time.Second

// Job is a named unit of periodic work. Exactly one of DailyAt or Every
// should be set.
type Job struct {
	Name    string
	DailyAt *Clock
	Every   time.Duration
	Run     func(ctx context.Context) error
}

// RunnerConfig holds runner settings.
type RunnerConfig struct {
	CheckInterval time.Duration
	Location      *time.Location
	Now           func() time.Time
}

// Runner fires jobs when they fall due.
type Runner struct {
	config RunnerConfig
	jobs   []Job
	logger *slog.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	next      map[string]time.Time
	lastRun   map[string]time.Time
}

// NewRunner creates a runner for jobs.
func NewRunner(config RunnerConfig, logger *slog.Logger, jobs ...Job) *Runner {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCheckInterval
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	r := &Runner{
		config:  config,
		jobs:    jobs,
		logger:  logger,
		next:    make(map[string]time.Time),
		lastRun: make(map[string]time.Time),
	}
	now := config.Now().In(config.Location)
	for _, j := range jobs {
		r.next[j.Name] = j.nextAfter(now)
	}
	return r
}

func (j Job) nextAfter(now time.Time) time.Time {
	if j.DailyAt != nil {
		return NextDaily(now, j.DailyAt.Hour, j.DailyAt.Minute)
	}
	if j.Every > 0 {
		return now.Add(j.Every)
	}
	return time.Time{}
}

// Start launches the check loop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = true
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.runLoop(ctx)

	for _, j := range r.jobs {
		r.logger.Info("job scheduled", "job", j.Name, "next_run", r.NextRun(j.Name))
	}
	return nil
}

// Stop cancels the loop and waits for a running job to return.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) runLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunDue(ctx, r.config.Now())
		}
	}
}

// RunDue runs every job whose next run is at or before now and returns the
// names of the jobs it ran.
func (r *Runner) RunDue(ctx context.Context, now time.Time) []string {
	now = now.In(r.config.Location)

	var ran []string
	for _, j := range r.jobs {
		r.mu.Lock()
		next := r.next[j.Name]
		r.mu.Unlock()
		if next.IsZero() || now.Before(next) {
			continue
		}

		start := time.Now()
		err := j.Run(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return ran
		case err != nil:
			r.logger.Error("job failed", "job", j.Name, "error", err)
		default:
			r.logger.Info("job finished", "job", j.Name, "duration", time.Since(start))
		}

		r.mu.Lock()
		r.lastRun[j.Name] = now
		r.next[j.Name] = j.nextAfter(now)
		r.mu.Unlock()
		ran = append(ran, j.Name)
	}
	return ran
}

// NextRun returns when the named job will fire next.
func (r *Runner) NextRun(name string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next[name]
}

// LastRun returns when the named job last fired, or the zero time.
func (r *Runner) LastRun(name string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun[name]
}
