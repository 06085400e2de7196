package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAlert is returned by InsertAlert when an alert with the same
	// owner, kind and triggering total already exists.
	ErrDuplicateAlert = errors.New("alert already recorded")
)

// Storage defines the persistence layer for owners, spend, alerts and documents.
type Storage interface {
	// UpsertDeviceToken creates or replaces an owner's push destination.
	UpsertDeviceToken(ctx context.Context, token *model.OwnerDeviceToken) error

	// GetDeviceToken returns the push destination of an owner.
	GetDeviceToken(ctx context.Context, ownerID string) (*model.OwnerDeviceToken, error)

	// ListDeviceTokens returns every owner that has a non-empty push token.
	ListDeviceTokens(ctx context.Context) ([]model.OwnerDeviceToken, error)

	// SetSettings creates or updates an owner's budget settings.
	SetSettings(ctx context.Context, settings *model.BudgetSettings) error

	// GetSettings returns an owner's budget settings.
	GetSettings(ctx context.Context, ownerID string) (*model.BudgetSettings, error)

	// RecordSpend persists a single spend record.
	RecordSpend(ctx context.Context, record *model.SpendRecord) error

	// ListSpend returns an owner's spend records with start <= OccurredAt < end.
	ListSpend(ctx context.Context, ownerID string, start, end time.Time) ([]model.SpendRecord, error)

	// FindAlert looks up an alert by its exact (owner, kind, total) key.
	FindAlert(ctx context.Context, ownerID string, kind model.BudgetKind, total decimal.Decimal) (*model.AlertRecord, error)

	// InsertAlert records a sent alert. It returns ErrDuplicateAlert on a key collision.
	InsertAlert(ctx context.Context, alert *model.AlertRecord) error

	// ListAlerts returns an owner's alerts, newest first.
	ListAlerts(ctx context.Context, ownerID string) ([]model.AlertRecord, error)

	// SaveDocument creates or replaces a tracked document.
	SaveDocument(ctx context.Context, doc *model.TrackedDocument) error

	// ListExpiringDocuments returns an owner's documents that carry an expiry date.
	ListExpiringDocuments(ctx context.Context, ownerID string) ([]model.TrackedDocument, error)

	// MarkReminderSent appends key to a document's sent reminders and stamps the send time.
	MarkReminderSent(ctx context.Context, documentID, key string, at time.Time) error

	// Close releases resources.
	Close() error
}

// Snapshotter is implemented by backends that can write a consistent copy of
// themselves to a local file.
type Snapshotter interface {
	Snapshot(ctx context.Context, path string) error
}
