package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAlertThresholdPct is used when an owner has not configured a threshold.
const DefaultAlertThresholdPct = 80.0

// DefaultReminderDays are the expiry reminder offsets used when an owner has none configured.
var DefaultReminderDays = []int{30, 7, 1}

// BudgetKind identifies the aggregation window of a budget.
type BudgetKind string

const (
	KindDaily   BudgetKind = "daily"
	KindWeekly  BudgetKind = "weekly"
	KindMonthly BudgetKind = "monthly"
)

// BudgetKinds lists the kinds in evaluation order.
var BudgetKinds = []BudgetKind{KindDaily, KindWeekly, KindMonthly}

// Valid reports whether k is one of the known budget kinds.
func (k BudgetKind) Valid() bool {
	switch k {
	case KindDaily, KindWeekly, KindMonthly:
		return true
	}
	return false
}

// SpendRecord is a single expense written by the application.
type SpendRecord struct {
	ID         string          `json:"id" yaml:"id"`
	OwnerID    string          `json:"userId" yaml:"owner_id"`
	Amount     decimal.Decimal `json:"amount" yaml:"amount"`
	OccurredAt time.Time       `json:"date" yaml:"occurred_at"`
}

// BudgetSettings holds an owner's budget limits and reminder preferences.
type BudgetSettings struct {
	OwnerID                  string           `json:"userId" yaml:"owner_id"`
	DailyLimit               *decimal.Decimal `json:"dailyBudget,omitempty" yaml:"daily_limit,omitempty"`
	WeeklyLimit              *decimal.Decimal `json:"weeklyBudget,omitempty" yaml:"weekly_limit,omitempty"`
	MonthlyLimit             *decimal.Decimal `json:"monthlyBudget,omitempty" yaml:"monthly_limit,omitempty"`
	AlertThresholdPct        float64          `json:"alertThreshold" yaml:"alert_threshold_pct"`
	NotificationsEnabled     bool             `json:"notificationsEnabled" yaml:"notifications_enabled"`
	WarrantyRemindersEnabled bool             `json:"warrantyRemindersEnabled" yaml:"warranty_reminders_enabled"`
	ReminderDays             []int            `json:"warrantyReminderDays,omitempty" yaml:"reminder_days,omitempty"`
	Timezone                 string           `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// NewBudgetSettings returns settings populated with defaults.
func NewBudgetSettings(ownerID string) *BudgetSettings {
	return &BudgetSettings{
		OwnerID:              ownerID,
		AlertThresholdPct:    DefaultAlertThresholdPct,
		NotificationsEnabled: true,
	}
}

// Limit returns the configured ceiling for kind, or nil when unset.
func (s *BudgetSettings) Limit(kind BudgetKind) *decimal.Decimal {
	switch kind {
	case KindDaily:
		return s.DailyLimit
	case KindWeekly:
		return s.WeeklyLimit
	case KindMonthly:
		return s.MonthlyLimit
	}
	return nil
}

// SetLimit sets the ceiling for kind. A nil limit clears it.
func (s *BudgetSettings) SetLimit(kind BudgetKind, limit *decimal.Decimal) {
	switch kind {
	case KindDaily:
		s.DailyLimit = limit
	case KindWeekly:
		s.WeeklyLimit = limit
	case KindMonthly:
		s.MonthlyLimit = limit
	}
}

// Threshold returns the alert threshold percentage, defaulting to 80.
func (s *BudgetSettings) Threshold() float64 {
	if s.AlertThresholdPct <= 0 {
		return DefaultAlertThresholdPct
	}
	return s.AlertThresholdPct
}

// Reminders returns the configured reminder offsets, defaulting to [30, 7, 1].
func (s *BudgetSettings) Reminders() []int {
	if len(s.ReminderDays) == 0 {
		return DefaultReminderDays
	}
	return s.ReminderDays
}

// Location resolves the owner's time zone, falling back to def when unset or unknown.
func (s *BudgetSettings) Location(def *time.Location) *time.Location {
	if s == nil || s.Timezone == "" {
		return def
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return def
	}
	return loc
}

// AlertRecord marks that a budget alert was sent for an exact total.
type AlertRecord struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"userId"`
	Kind            BudgetKind      `json:"budgetKind"`
	TriggeringTotal decimal.Decimal `json:"amount"`
	SentAt          time.Time       `json:"alertedAt"`
}

// TrackedDocument is a stored document that may carry an expiry date.
type TrackedDocument struct {
	ID                 string     `json:"id" yaml:"id"`
	OwnerID            string     `json:"userId" yaml:"owner_id"`
	Title              string     `json:"title" yaml:"title"`
	FolderName         string     `json:"folderName,omitempty" yaml:"folder_name,omitempty"`
	ExpiryDate         *time.Time `json:"expiryDate,omitempty" yaml:"expiry_date,omitempty"`
	RemindersSent      []string   `json:"remindersSent,omitempty" yaml:"reminders_sent,omitempty"`
	LastReminderSentAt *time.Time `json:"lastReminderSent,omitempty" yaml:"last_reminder_sent_at,omitempty"`
}

// HasReminder reports whether key was already recorded for the document.
func (d *TrackedDocument) HasReminder(key string) bool {
	for _, k := range d.RemindersSent {
		if k == key {
			return true
		}
	}
	return false
}

// OwnerDeviceToken binds an owner to a push destination.
type OwnerDeviceToken struct {
	OwnerID   string    `json:"userId" yaml:"owner_id"`
	PushToken string    `json:"fcmToken" yaml:"push_token"`
	Email     string    `json:"email" yaml:"email"`
	UpdatedAt time.Time `json:"fcmTokenUpdatedAt" yaml:"updated_at,omitempty"`
}

// PeriodBounds returns the half-open [start, end) window of kind containing now,
// computed in loc. Weeks start on Monday.
func PeriodBounds(now time.Time, kind BudgetKind, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	switch kind {
	case KindWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day()-weekday+1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 7)
	case KindMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}

// Midnight truncates t to 00:00 of its calendar date in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
