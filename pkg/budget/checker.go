package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/push"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
	"github.com/shopspring/decimal"
)

// Skip reasons reported on an Outcome.
const (
	SkipNoSettings    = "no_settings"
	SkipNotifications = "notifications_disabled"
	SkipNoToken       = "no_push_token"
)

// PeriodResult reports what happened to one budget kind.
type PeriodResult struct {
	Kind        model.BudgetKind `json:"kind"`
	Skipped     bool             `json:"skipped"`
	Total       decimal.Decimal  `json:"total"`
	Limit       decimal.Decimal  `json:"limit"`
	ShouldAlert bool             `json:"should_alert"`
	AlreadySent bool             `json:"already_sent"`
	Notified    bool             `json:"notified"`
	Err         error            `json:"-"`
}

// Outcome summarises a budget check for one owner.
type Outcome struct {
	OwnerID    string         `json:"owner_id"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Periods    []PeriodResult `json:"periods"`
}

// Notified returns the number of alerts sent.
func (o Outcome) Notified() int {
	n := 0
	for _, p := range o.Periods {
		if p.Notified {
			n++
		}
	}
	return n
}

// Errors returns the per-period failures.
func (o Outcome) Errors() []error {
	var errs []error
	for _, p := range o.Periods {
		if p.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Kind, p.Err))
		}
	}
	return errs
}

// PeriodStatus is the current standing of one budget kind.
type PeriodStatus struct {
	Kind            model.BudgetKind `json:"kind" yaml:"kind"`
	Start           time.Time        `json:"start" yaml:"start"`
	End             time.Time        `json:"end" yaml:"end"`
	Total           decimal.Decimal  `json:"total" yaml:"total"`
	Limit           *decimal.Decimal `json:"limit,omitempty" yaml:"limit,omitempty"`
	ThresholdAmount decimal.Decimal  `json:"threshold_amount" yaml:"threshold_amount"`
	InAlertBand     bool             `json:"in_alert_band" yaml:"in_alert_band"`
}

// Options tune a Checker.
type Options struct {
	// Location is used for owners without a time zone. Defaults to UTC.
	Location *time.Location
	// Now overrides the clock.
	Now func() time.Time
}

// Checker runs the budget alert pipeline for spend change events.
type Checker struct {
	store      storage.Storage
	aggregator *Aggregator
	dedup      *Deduplicator
	sender     push.Sender
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewChecker wires a checker.
func NewChecker(store storage.Storage, sender push.Sender, dedup *Deduplicator, logger *slog.Logger, opts Options) *Checker {
	if dedup == nil {
		dedup = NewDeduplicator(store, nil, 0)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Checker{
		store:      store,
		aggregator: NewAggregator(store),
		dedup:      dedup,
		sender:     sender,
		logger:     logger,
		loc:        opts.Location,
		now:        opts.Now,
	}
}

// HandleSpendEvent checks the budgets of the owner named by a change event.
func (c *Checker) HandleSpendEvent(ctx context.Context, ev *ChangeEvent) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return Outcome{}, err
	}
	return c.Check(ctx, ev.FullDocument.OwnerID)
}

// Check evaluates every configured budget of ownerID and sends alerts for
// periods that entered the alert band at a total not alerted before. Only
// failures to read the owner's configuration are returned as errors;
// per-period failures are reported on the outcome.
func (c *Checker) Check(ctx context.Context, ownerID string) (Outcome, error) {
	out := Outcome{OwnerID: ownerID}

	settings, err := c.store.GetSettings(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Debug("no budget settings", "owner", ownerID)
		out.SkipReason = SkipNoSettings
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("load settings: %w", err)
	}
	if !settings.NotificationsEnabled {
		c.logger.Debug("notifications disabled", "owner", ownerID)
		out.SkipReason = SkipNotifications
		return out, nil
	}

	token, err := c.store.GetDeviceToken(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && token.PushToken == "") {
		c.logger.Debug("no push token", "owner", ownerID)
		out.SkipReason = SkipNoToken
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("load device token: %w", err)
	}

	loc := settings.Location(c.loc)
	now := c.now()
	for _, kind := range model.BudgetKinds {
		out.Periods = append(out.Periods, c.checkPeriod(ctx, settings, token.PushToken, kind, now, loc))
	}
	return out, nil
}

func (c *Checker) checkPeriod(ctx context.Context, settings *model.BudgetSettings, token string, kind model.BudgetKind, now time.Time, loc *time.Location) PeriodResult {
	res := PeriodResult{Kind: kind}
	limit := settings.Limit(kind)
	if limit == nil || !limit.IsPositive() {
		res.Skipped = true
		return res
	}
	res.Limit = *limit

	start, end := model.PeriodBounds(now, kind, loc)
	total, err := c.aggregator.Total(ctx, settings.OwnerID, start, end)
	if err != nil {
		res.Err = err
		c.logger.Error("aggregate spend failed", "owner", settings.OwnerID, "kind", kind, "error", err)
		return res
	}
	res.Total = total

	eval := Evaluate(total, *limit, settings.Threshold())
	res.ShouldAlert = eval.ShouldAlert
	if !eval.ShouldAlert {
		return res
	}

	sent, err := c.dedup.AlreadySent(ctx, settings.OwnerID, kind, total)
	if err != nil {
		res.Err = err
		c.logger.Error("alert history lookup failed", "owner", settings.OwnerID, "kind", kind, "error", err)
		return res
	}
	if sent {
		res.AlreadySent = true
		return res
	}

	claimed, err := c.dedup.Claim(ctx, settings.OwnerID, kind, total)
	if err != nil {
		res.Err = err
		c.logger.Error("claim alert failed", "owner", settings.OwnerID, "kind", kind, "error", err)
		return res
	}
	if !claimed {
		res.AlreadySent = true
		return res
	}

	msg := AlertMessage(token, kind, total, *limit, settings.Threshold())
	if err := c.sender.Send(ctx, msg); err != nil {
		res.Err = fmt.Errorf("send alert: %w", err)
		c.logger.Error("send budget alert failed",
			"owner", settings.OwnerID,
			"kind", kind,
			"sender", c.sender.Name(),
			"error", err,
		)
		if rerr := c.dedup.Release(ctx, settings.OwnerID, kind, total); rerr != nil {
			c.logger.Warn("release alert claim failed", "owner", settings.OwnerID, "kind", kind, "error", rerr)
		}
		return res
	}
	res.Notified = true

	c.logger.Info("budget alert sent",
		"owner", settings.OwnerID,
		"kind", kind,
		"total", total.StringFixed(2),
		"limit", limit.StringFixed(2),
	)

	err = c.dedup.Record(ctx, &model.AlertRecord{
		OwnerID:         settings.OwnerID,
		Kind:            kind,
		TriggeringTotal: total,
		SentAt:          now.UTC(),
	})
	if errors.Is(err, storage.ErrDuplicateAlert) {
		c.logger.Warn("alert recorded concurrently", "owner", settings.OwnerID, "kind", kind)
	} else if err != nil {
		c.logger.Error("record alert failed", "owner", settings.OwnerID, "kind", kind, "error", err)
	}
	return res
}

// Status reports the owner's current period totals without sending anything.
func (c *Checker) Status(ctx context.Context, ownerID string) ([]PeriodStatus, error) {
	settings, err := c.store.GetSettings(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		settings = model.NewBudgetSettings(ownerID)
	} else if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	loc := settings.Location(c.loc)
	now := c.now()
	statuses := make([]PeriodStatus, 0, len(model.BudgetKinds))
	for _, kind := range model.BudgetKinds {
		start, end := model.PeriodBounds(now, kind, loc)
		total, err := c.aggregator.Total(ctx, ownerID, start, end)
		if err != nil {
			return nil, err
		}
		st := PeriodStatus{Kind: kind, Start: start, End: end, Total: total, Limit: settings.Limit(kind)}
		if st.Limit != nil {
			eval := Evaluate(total, *st.Limit, settings.Threshold())
			st.ThresholdAmount = eval.ThresholdAmount
			st.InAlertBand = eval.ShouldAlert
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
