// Package budget evaluates owner spending against budget limits and sends
// threshold alerts.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
	"github.com/shopspring/decimal"
)

// Aggregator sums spend records over a time window.
type Aggregator struct {
	store storage.Storage
}

// NewAggregator creates an aggregator reading from store.
func NewAggregator(store storage.Storage) *Aggregator {
	return &Aggregator{store: store}
}

// Total returns the owner's spend with start <= OccurredAt < end.
// Records without an amount count as zero.
func (a *Aggregator) Total(ctx context.Context, ownerID string, start, end time.Time) (decimal.Decimal, error) {
	records, err := a.store.ListSpend(ctx, ownerID, start, end)
	if err != nil {
		return decimal.Zero, fmt.Errorf("aggregate spend for %q: %w", ownerID, err)
	}

	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total, nil
}
