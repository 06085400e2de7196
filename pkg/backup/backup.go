// Package backup snapshots the local database and uploads it to
// S3-compatible object storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
)

// ErrNotSupported is returned when the configured store cannot be snapshotted.
var ErrNotSupported = errors.New("storage backend does not support snapshots")

// Uploader is the subset of the S3 client used for uploads.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds object storage settings.
type S3Config struct {
	Bucket       string
	Prefix       string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// NewS3Client builds an S3 client. Static keys are used when set, otherwise
// the default AWS credential chain applies. A custom endpoint targets
// S3-compatible stores such as MinIO.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		if cfg.AccessKey == "" || cfg.SecretKey == "" {
			return nil, errors.New("backup access key and secret key must be set together")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	}), nil
}

// Result describes an uploaded snapshot.
type Result struct {
	Bucket  string    `json:"bucket"`
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	TakenAt time.Time `json:"taken_at"`
}

// Service takes and uploads database snapshots.
type Service struct {
	store    storage.Storage
	uploader Uploader
	bucket   string
	prefix   string
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a backup service.
func NewService(store storage.Storage, uploader Uploader, bucket, prefix string, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		logger:   logger,
		now:      time.Now,
	}
}

// Run snapshots the store to a temporary file and uploads it under
// {prefix}/{timestamp}.db.
func (s *Service) Run(ctx context.Context) (Result, error) {
	snap, ok := s.store.(storage.Snapshotter)
	if !ok {
		return Result{}, ErrNotSupported
	}

	dir, err := os.MkdirTemp("", "pocket-alerts-backup-*")
	if err != nil {
		return Result{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	taken := s.now().UTC()
	local := filepath.Join(dir, "snapshot.db")
	if err := snap.Snapshot(ctx, local); err != nil {
		return Result{}, err
	}

	f, err := os.Open(local)
	if err != nil {
		return Result{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat snapshot: %w", err)
	}

	key := path.Join(s.prefix, taken.Format("20060102T150405Z")+".db")
	_, err = s.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/vnd.sqlite3"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("upload snapshot: %w", err)
	}

	res := Result{Bucket: s.bucket, Key: key, Size: info.Size(), TakenAt: taken}
	s.logger.Info("backup uploaded", "bucket", res.Bucket, "key", res.Key, "bytes", res.Size)
	return res, nil
}
