package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/internal/server"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/schedule"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP trigger endpoint and the job scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("no-scheduler", false, "Serve HTTP triggers only")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	listen, _ := cmd.Flags().GetString("listen")
	if listen != "" {
		cfg.Server.Listen = listen
	}
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")

	a, err := initApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	apiServer := server.NewServer(a.store, a.checker, a.scanner, a.logger, server.Options{
		IngestEvents: cfg.Server.IngestEvents,
		MaxBodySize:  cfg.Server.MaxBodySize,
		Backup:       a.backup,
		Debouncer:    schedule.NewDebouncer(cfg.Schedule.BackupDebounce),
	})

	var runner *schedule.Runner
	if !noScheduler {
		jobs, err := scheduledJobs(a)
		if err != nil {
			return err
		}
		loc, _ := cfg.Schedule.Location()
		runner = schedule.NewRunner(schedule.RunnerConfig{
			CheckInterval: cfg.Schedule.CheckInterval,
			Location:      loc,
		}, a.logger, jobs...)
		if err := runner.Start(context.Background()); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("pocket-alerts started", "listen", cfg.Server.Listen, "storage", cfg.Storage.Driver)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		a.logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if runner != nil {
			if err := runner.Stop(ctx); err != nil {
				a.logger.Warn("stop scheduler", "error", err)
			}
		}
		return srv.Shutdown(ctx)
	}
}

// scheduledJobs builds the periodic jobs enabled by config.
func scheduledJobs(a *app) ([]schedule.Job, error) {
	scanAt, err := schedule.ParseClock(a.cfg.Schedule.ScanAt)
	if err != nil {
		return nil, fmt.Errorf("schedule.scan_at: %w", err)
	}

	jobs := []schedule.Job{{
		Name:    "expiry-scan",
		DailyAt: &scanAt,
		Run: func(ctx context.Context) error {
			_, err := a.scanner.Scan(ctx)
			return err
		},
	}}

	if a.cfg.Schedule.ReportAt != "" {
		reportAt, err := schedule.ParseClock(a.cfg.Schedule.ReportAt)
		if err != nil {
			return nil, fmt.Errorf("schedule.report_at: %w", err)
		}
		jobs = append(jobs, schedule.Job{
			Name:    "daily-report",
			DailyAt: &reportAt,
			Run: func(ctx context.Context) error {
				_, err := a.report.Run(ctx)
				return err
			},
		})
	}

	if a.backup != nil && a.cfg.Schedule.BackupInterval > 0 {
		jobs = append(jobs, schedule.Job{
			Name:  "backup",
			Every: a.cfg.Schedule.BackupInterval,
			Run: func(ctx context.Context) error {
				_, err := a.backup.Run(ctx)
				return err
			},
		})
	}

	return jobs, nil
}
