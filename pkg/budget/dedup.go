package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/claims"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
	"github.com/shopspring/decimal"
)

// DefaultClaimTTL bounds how long an in-flight send holds its claim.
const DefaultClaimTTL = 5 * time.Minute

// Deduplicator prevents repeat alerts for the same owner, kind and exact total.
type Deduplicator struct {
	store   storage.Storage
	claimer claims.Claimer
	ttl     time.Duration
}

// NewDeduplicator creates a deduplicator. claimer may be nil, in which case
// only the store's unique index guards against concurrent sends.
func NewDeduplicator(store storage.Storage, claimer claims.Claimer, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &Deduplicator{store: store, claimer: claimer, ttl: ttl}
}

// AlreadySent reports whether an alert with this exact total was recorded.
func (d *Deduplicator) AlreadySent(ctx context.Context, ownerID string, kind model.BudgetKind, total decimal.Decimal) (bool, error) {
	_, err := d.store.FindAlert(ctx, ownerID, kind, total)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check alert history: %w", err)
	}
	return true, nil
}

// Claim reserves the alert key before sending. It returns false when another
// trigger holds the key.
func (d *Deduplicator) Claim(ctx context.Context, ownerID string, kind model.BudgetKind, total decimal.Decimal) (bool, error) {
	if d.claimer == nil {
		return true, nil
	}
	return d.claimer.Claim(ctx, claimKey(ownerID, kind, total), d.ttl)
}

// Release drops a claim after a failed send.
func (d *Deduplicator) Release(ctx context.Context, ownerID string, kind model.BudgetKind, total decimal.Decimal) error {
	if d.claimer == nil {
		return nil
	}
	return d.claimer.Release(ctx, claimKey(ownerID, kind, total))
}

// Record persists a sent alert. A concurrent duplicate yields storage.ErrDuplicateAlert.
func (d *Deduplicator) Record(ctx context.Context, alert *model.AlertRecord) error {
	return d.store.InsertAlert(ctx, alert)
}

func claimKey(ownerID string, kind model.BudgetKind, total decimal.Decimal) string {
	return fmt.Sprintf("budget:%s:%s:%s", ownerID, kind, total.String())
}
