package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all pocket-alerts configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Push     PushConfig     `mapstructure:"push"`
	Dedup    DedupConfig    `mapstructure:"dedup"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StorageConfig selects and configures the database.
type StorageConfig struct {
	Driver string      `mapstructure:"driver"` // sqlite or mongo
	Path   string      `mapstructure:"path"`
	Mongo  MongoConfig `mapstructure:"mongo"`
}

// MongoConfig defines MongoDB connection settings.
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// ServerConfig defines the HTTP trigger endpoint.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodySize  int64         `mapstructure:"max_body_size"`
	IngestEvents bool          `mapstructure:"ingest_events"`
}

// PushConfig defines notification delivery.
type PushConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	ProjectID   string            `mapstructure:"project_id"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Slack       SlackConfig       `mapstructure:"slack"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
}

// CredentialsConfig selects how push access tokens are obtained.
type CredentialsConfig struct {
	Mode               string `mapstructure:"mode"` // static or service_account
	AccessToken        string `mapstructure:"access_token"`
	ServiceAccountFile string `mapstructure:"service_account_file"`
	TokenURL           string `mapstructure:"token_url"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// DedupConfig selects the alert claim store.
type DedupConfig struct {
	Driver string        `mapstructure:"driver"` // memory or redis
	TTL    time.Duration `mapstructure:"ttl"`
	Redis  RedisConfig   `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ScheduleConfig defines when periodic jobs run.
type ScheduleConfig struct {
	Timezone       string        `mapstructure:"timezone"`
	ScanAt         string        `mapstructure:"scan_at"`
	ReportAt       string        `mapstructure:"report_at"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	BackupDebounce time.Duration `mapstructure:"backup_debounce"`
	CheckInterval  time.Duration `mapstructure:"check_interval"`
}

// BackupConfig defines snapshot uploads.
type BackupConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the reference time zone.
func (c *ScheduleConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "mongo":
		if c.Storage.Mongo.URI == "" {
			return errors.New("storage.mongo.uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Push.Credentials.Mode {
	case "static", "service_account":
	default:
		return fmt.Errorf("unknown push credentials mode %q", c.Push.Credentials.Mode)
	}

	switch c.Dedup.Driver {
	case "memory", "none":
	case "redis":
		if c.Dedup.Redis.Addr == "" {
			return errors.New("dedup.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown dedup driver %q", c.Dedup.Driver)
	}

	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return errors.New("backup.bucket is required when backups are enabled")
	}
	if _, err := c.Schedule.Location(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".pocket-alerts"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".pocket-alerts", "pocket.db"))
	v.SetDefault("storage.mongo.uri", "")
	v.SetDefault("storage.mongo.database", "pocket")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_body_size", 1<<20) // 1 MB
	v.SetDefault("server.ingest_events", true)
	v.SetDefault("push.endpoint", "https://fcm.googleapis.com")
	v.SetDefault("push.project_id", "")
	v.SetDefault("push.credentials.mode", "static")
	v.SetDefault("push.credentials.access_token", "")
	v.SetDefault("push.credentials.service_account_file", "")
	v.SetDefault("push.credentials.token_url", "")
	v.SetDefault("push.slack.enabled", false)
	v.SetDefault("push.slack.webhook_url", "")
	v.SetDefault("push.slack.channel", "#pocket-alerts")
	v.SetDefault("push.webhook.enabled", false)
	v.SetDefault("push.webhook.url", "")
	v.SetDefault("push.webhook.secret", "")
	v.SetDefault("dedup.driver", "memory")
	v.SetDefault("dedup.ttl", "5m")
	v.SetDefault("dedup.redis.addr", "")
	v.SetDefault("dedup.redis.password", "")
	v.SetDefault("dedup.redis.db", 0)
	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("schedule.scan_at", "09:00")
	v.SetDefault("schedule.report_at", "20:00")
	v.SetDefault("schedule.backup_interval", "24h")
	v.SetDefault("schedule.backup_debounce", "30s")
	v.SetDefault("schedule.check_interval", "30s")
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.prefix", "pocket-alerts")
	v.SetDefault("backup.endpoint", "")
	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.access_key", "")
	v.SetDefault("backup.secret_key", "")
	v.SetDefault("backup.use_path_style", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("POCKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
