// Package report asks owner devices to send their daily spending email.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/budget"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/push"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
)

// Summary counts what a report run did.
type Summary struct {
	OwnersProcessed   int `json:"ownersProcessed"`
	NotificationsSent int `json:"notificationsSent"`
	Errors            int `json:"errors"`
}

// Options tune a Job.
type Options struct {
	Location *time.Location
	Now      func() time.Time
}

// Job sends one data-only daily report trigger per owner with an email.
type Job struct {
	store      storage.Storage
	aggregator *budget.Aggregator
	sender     push.Sender
	logger     *slog.Logger
	loc        *time.Location
	now        func() time.Time
}

// NewJob creates a daily report job.
func NewJob(store storage.Storage, sender push.Sender, logger *slog.Logger, opts Options) *Job {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{
		store:      store,
		aggregator: budget.NewAggregator(store),
		sender:     sender,
		logger:     logger,
		loc:        opts.Location,
		now:        opts.Now,
	}
}

// Run sends the report trigger to every eligible owner.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	owners, err := j.store.ListDeviceTokens(ctx)
	if err != nil {
		return sum, fmt.Errorf("list owners: %w", err)
	}

	now := j.now()
	for _, owner := range owners {
		if owner.Email == "" {
			continue
		}

		settings, err := j.store.GetSettings(ctx, owner.OwnerID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			settings = model.NewBudgetSettings(owner.OwnerID)
		case err != nil:
			sum.Errors++
			j.logger.Error("load settings failed", "owner", owner.OwnerID, "error", err)
			continue
		}
		if !settings.NotificationsEnabled {
			continue
		}
		sum.OwnersProcessed++

		loc := settings.Location(j.loc)
		start, end := model.PeriodBounds(now, model.KindDaily, loc)
		total, err := j.aggregator.Total(ctx, owner.OwnerID, start, end)
		if err != nil {
			sum.Errors++
			j.logger.Error("aggregate daily spend failed", "owner", owner.OwnerID, "error", err)
			continue
		}

		msg := push.Message{
			Token: owner.PushToken,
			Data: map[string]string{
				"type":            "daily_email_report",
				"recipient_email": owner.Email,
				"spent_today":     total.StringFixed(2),
				"date":            start.Format("2006-01-02"),
				"timestamp":       now.UTC().Format(time.RFC3339),
			},
			Android: push.AndroidConfig{Priority: push.PriorityHigh},
			APNS:    push.APNSConfig{ContentAvailable: true},
		}
		if err := j.sender.Send(ctx, msg); err != nil {
			sum.Errors++
			j.logger.Error("send daily report trigger failed", "owner", owner.OwnerID, "error", err)
			continue
		}
		sum.NotificationsSent++
	}

	j.logger.Info("daily report triggers sent", "owners", sum.OwnersProcessed, "sent", sum.NotificationsSent, "errors", sum.Errors)
	return sum, nil
}
