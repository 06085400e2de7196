package expiry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/push"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/storage"
)

// Summary counts what a scan did.
type Summary struct {
	OwnersProcessed   int `json:"usersProcessed"`
	OwnersNotified    int `json:"usersNotified"`
	NotificationsSent int `json:"notificationsSent"`
	Errors            int `json:"errors"`
}

// Reminder is one document reminder queued during a scan.
type Reminder struct {
	Document model.TrackedDocument
	Days     int
	Expiry   time.Time
	Urgency  Urgency
}

// Options tune a Scanner.
type Options struct {
	// Location is used for owners without a time zone. Defaults to UTC.
	Location *time.Location
	// Now overrides the clock.
	Now func() time.Time
}

// Scanner walks every owner's documents and sends due reminders.
type Scanner struct {
	store  storage.Storage
	sender push.Sender
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewScanner creates a scanner.
func NewScanner(store storage.Storage, sender push.Sender, logger *slog.Logger, opts Options) *Scanner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scanner{store: store, sender: sender, logger: logger, loc: opts.Location, now: opts.Now}
}

// Scan processes all owners with a push token; each one counts as processed
// whether or not it has reminders enabled. Failures are counted and
// logged; they never stop the scan. A reminder key is persisted before its
// notification is sent, so a failed send is not retried on later runs.
func (s *Scanner) Scan(ctx context.Context) (Summary, error) {
	var sum Summary

	owners, err := s.store.ListDeviceTokens(ctx)
	if err != nil {
		return sum, fmt.Errorf("list owners: %w", err)
	}

	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.OwnersProcessed++

		settings, err := s.store.GetSettings(ctx, owner.OwnerID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			sum.Errors++
			s.logger.Error("load settings failed", "owner", owner.OwnerID, "error", err)
			continue
		}
		if !settings.WarrantyRemindersEnabled {
			continue
		}

		sent, errs := s.scanOwner(ctx, owner, settings)
		sum.Errors += errs
		if sent > 0 {
			sum.OwnersNotified++
			sum.NotificationsSent += sent
		}
	}

	s.logger.Info("expiry scan complete",
		"owners_processed", sum.OwnersProcessed,
		"owners_notified", sum.OwnersNotified,
		"notifications_sent", sum.NotificationsSent,
		"errors", sum.Errors,
	)
	return sum, nil
}

// scanOwner returns the number of document reminders sent and errors seen.
func (s *Scanner) scanOwner(ctx context.Context, owner model.OwnerDeviceToken, settings *model.BudgetSettings) (int, int) {
	reminders, errs := s.due(ctx, owner.OwnerID, settings)
	if len(reminders) == 0 {
		return 0, errs
	}

	sent := 0
	for _, r := range reminders {
		if err := s.sender.Send(ctx, ReminderMessage(owner.PushToken, r)); err != nil {
			errs++
			s.logger.Error("send expiry reminder failed",
				"owner", owner.OwnerID,
				"document", r.Document.ID,
				"sender", s.sender.Name(),
				"error", err,
			)
			continue
		}
		sent++
	}

	// The app resolves a missing recipient itself.
	msg, err := EmailTriggerMessage(owner.PushToken, owner.Email, reminders, s.now())
	if err == nil {
		err = s.sender.Send(ctx, msg)
	}
	if err != nil {
		errs++
		s.logger.Error("send email trigger failed", "owner", owner.OwnerID, "error", err)
	}
	return sent, errs
}

// due records and returns the reminders that fall due today for one owner.
func (s *Scanner) due(ctx context.Context, ownerID string, settings *model.BudgetSettings) ([]Reminder, int) {
	docs, err := s.store.ListExpiringDocuments(ctx, ownerID)
	if err != nil {
		s.logger.Error("list documents failed", "owner", ownerID, "error", err)
		return nil, 1
	}

	loc := settings.Location(s.loc)
	now := s.now()
	offsets := settings.Reminders()

	var (
		out  []Reminder
		errs int
	)
	for _, doc := range docs {
		if doc.ExpiryDate == nil {
			continue
		}
		days := DaysUntil(now, *doc.ExpiryDate, loc)
		if days < 0 {
			continue
		}
		for _, offset := range offsets {
			if offset != days {
				continue
			}
			key := ReminderKey(offset, *doc.ExpiryDate, loc)
			if doc.HasReminder(key) {
				continue
			}
			if err := s.store.MarkReminderSent(ctx, doc.ID, key, now.UTC()); err != nil {
				errs++
				s.logger.Error("mark reminder failed", "owner", ownerID, "document", doc.ID, "key", key, "error", err)
				continue
			}
			doc.RemindersSent = append(doc.RemindersSent, key)
			out = append(out, Reminder{
				Document: doc,
				Days:     days,
				Expiry:   model.Midnight(*doc.ExpiryDate, loc),
				Urgency:  UrgencyFor(days),
			})
		}
	}
	return out, errs
}

// ReminderMessage builds the visible reminder for one document.
func ReminderMessage(token string, r Reminder) push.Message {
	unit := "days"
	if r.Days == 1 {
		unit = "day"
	}
	return push.Message{
		Token: token,
		Title: fmt.Sprintf("%s %s Expiring Soon", r.Urgency.Emoji(), r.Document.Title),
		Body:  fmt.Sprintf("This document expires in %d %s", r.Days, unit),
		Data: map[string]string{
			"type":            "warranty_expiry",
			"documentId":      r.Document.ID,
			"documentName":    r.Document.Title,
			"daysUntilExpiry": strconv.Itoa(r.Days),
			"expiryDate":      r.Expiry.Format("2006-01-02"),
			"urgency":         string(r.Urgency),
		},
		Android: push.AndroidConfig{
			Priority:  push.PriorityHigh,
			ChannelID: push.ChannelWarrantyReminders,
			Sound:     "default",
		},
		APNS: push.APNSConfig{Sound: "default", Badge: 1},
	}
}

type emailNotification struct {
	DocumentName    string `json:"documentName"`
	DaysUntilExpiry int    `json:"daysUntilExpiry"`
	ExpiryDate      string `json:"expiryDate"`
	FolderName      string `json:"folderName"`
	Urgency         string `json:"urgency"`
}

// EmailTriggerMessage builds the data-only push that asks the app to send a
// summary email for the owner's reminders.
func EmailTriggerMessage(token, email string, reminders []Reminder, now time.Time) (push.Message, error) {
	items := make([]emailNotification, 0, len(reminders))
	for _, r := range reminders {
		items = append(items, emailNotification{
			DocumentName:    r.Document.Title,
			DaysUntilExpiry: r.Days,
			ExpiryDate:      r.Expiry.Format("2006-01-02"),
			FolderName:      r.Document.FolderName,
			Urgency:         string(r.Urgency),
		})
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return push.Message{}, fmt.Errorf("encode email notifications: %w", err)
	}

	return push.Message{
		Token: token,
		Data: map[string]string{
			"type":               "warranty_email_trigger",
			"recipient_email":    email,
			"document_count":     strconv.Itoa(len(reminders)),
			"notifications_json": string(encoded),
			"timestamp":          now.UTC().Format(time.RFC3339),
		},
		Android: push.AndroidConfig{Priority: push.PriorityHigh},
		APNS:    push.APNSConfig{ContentAvailable: true},
	}, nil
}
