package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/ogulcanaydogan/pocket-alerts/internal/config"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/backup"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/budget"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/claims"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/expiry"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/push"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/report"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "pocket-alerts",
	Short: "Pocket Alerts - budget alerts and document expiry reminders",
	Long: `Pocket Alerts watches spending against daily, weekly and monthly budgets
and reminds owners about expiring documents and warranties through FCM push
notifications. It runs as a long-lived server with scheduled jobs or as
one-shot commands.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return loadEnvFile(envFile)
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.pocket-alerts/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
}

// loadEnvFile exports variables from a dotenv file. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStorage creates a storage backend from config.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "mongo":
		m, err := storage.NewMongo(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			return nil, err
		}
		m.SetLogger(logger)
		return m, nil
	default:
		if dir := filepath.Dir(cfg.Storage.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err := storage.NewSQLite(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		s.SetLogger(logger)
		return s, nil
	}
}

// initTokenSource creates the push credential strategy from config.
func initTokenSource(cfg *config.Config) (push.TokenSource, error) {
	creds := cfg.Push.Credentials
	if creds.Mode == "service_account" {
		account, err := push.LoadServiceAccount(creds.ServiceAccountFile)
		if err != nil {
			return nil, err
		}
		if cfg.Push.ProjectID != "" {
			account.ProjectID = cfg.Push.ProjectID
		}
		return push.NewServiceAccountTokenSource(*account, creds.TokenURL)
	}
	return push.StaticTokenSource{AccessToken: creds.AccessToken, ProjectID: cfg.Push.ProjectID}, nil
}

// initSender creates the FCM sender plus any configured mirrors.
func initSender(cfg *config.Config, logger *slog.Logger) (push.Sender, error) {
	tokens, err := initTokenSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("push credentials: %w", err)
	}
	fcm := push.NewFCMSender(cfg.Push.Endpoint, tokens)

	var mirrors []push.Sender
	if cfg.Push.Slack.Enabled && cfg.Push.Slack.WebhookURL != "" {
		mirrors = append(mirrors, push.NewSlackSender(cfg.Push.Slack.WebhookURL, cfg.Push.Slack.Channel))
	}
	if cfg.Push.Webhook.Enabled && cfg.Push.Webhook.URL != "" {
		mirrors = append(mirrors, push.NewWebhookSender(cfg.Push.Webhook.URL, cfg.Push.Webhook.Secret))
	}
	if len(mirrors) == 0 {
		return fcm, nil
	}
	return push.NewMultiSender(logger, fcm, mirrors...), nil
}

// initClaimer creates the alert claim store. The returned close function is never nil.
func initClaimer(cfg *config.Config) (claims.Claimer, func() error, error) {
	switch cfg.Dedup.Driver {
	case "redis":
		r, err := claims.NewRedis(claims.RedisConfig{
			Addr:     cfg.Dedup.Redis.Addr,
			Password: cfg.Dedup.Redis.Password,
			DB:       cfg.Dedup.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case "none":
		return nil, func() error { return nil }, nil
	default:
		return claims.NewMemory(), func() error { return nil }, nil
	}
}

// app bundles the wired components used by commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Storage
	sender  push.Sender
	checker *budget.Checker
	scanner *expiry.Scanner
	report  *report.Job
	backup  *backup.Service
	closers []func() error
}

// initApp wires storage, delivery and the alert pipelines from config.
func initApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, store: store, closers: []func() error{store.Close}}

	sender, err := initSender(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.sender = sender

	claimer, closeClaimer, err := initClaimer(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init claims: %w", err)
	}
	a.closers = append(a.closers, closeClaimer)

	dedup := budget.NewDeduplicator(store, claimer, cfg.Dedup.TTL)
	a.checker = budget.NewChecker(store, sender, dedup, logger, budget.Options{Location: loc})
	a.scanner = expiry.NewScanner(store, sender, logger, expiry.Options{Location: loc})
	a.report = report.NewJob(store, sender, logger, report.Options{Location: loc})

	if cfg.Backup.Enabled {
		client, err := backup.NewS3Client(ctx, backup.S3Config{
			Bucket:       cfg.Backup.Bucket,
			Prefix:       cfg.Backup.Prefix,
			Endpoint:     cfg.Backup.Endpoint,
			Region:       cfg.Backup.Region,
			AccessKey:    cfg.Backup.AccessKey,
			SecretKey:    cfg.Backup.SecretKey,
			UsePathStyle: cfg.Backup.UsePathStyle,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init backup: %w", err)
		}
		a.backup = backup.NewService(store, client, cfg.Backup.Bucket, cfg.Backup.Prefix, logger)
	}

	return a, nil
}

// ownerLocation returns the owner's time zone, falling back to the configured one.
func (a *app) ownerLocation(ctx context.Context, ownerID string) *time.Location {
	ref, err := a.cfg.Schedule.Location()
	if err != nil {
		ref = time.UTC
	}
	settings, err := a.store.GetSettings(ctx, ownerID)
	if err != nil {
		return ref
	}
	return settings.Location(ref)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp loads config, wires the app and runs fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := initApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
