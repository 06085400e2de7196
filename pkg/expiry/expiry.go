// Package expiry sends reminders for tracked documents approaching their
// expiry date.
package expiry

import (
	"fmt"
	"time"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
)

// Urgency classifies how close a document is to expiring.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// UrgencyFor maps days until expiry to an urgency level.
func UrgencyFor(days int) Urgency {
	switch {
	case days <= 1:
		return UrgencyCritical
	case days <= 7:
		return UrgencyHigh
	case days <= 14:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Emoji returns the marker shown in the notification title.
func (u Urgency) Emoji() string {
	switch u {
	case UrgencyCritical:
		return "🔴"
	case UrgencyHigh:
		return "🟠"
	case UrgencyMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

// DaysUntil returns the calendar days from today to the expiry date, both
// read in loc. Past dates give negative values.
func DaysUntil(now, expiry time.Time, loc *time.Location) int {
	return civilDay(expiry, loc) - civilDay(now, loc)
}

// civilDay numbers calendar days so that DST shifts do not skew differences.
func civilDay(t time.Time, loc *time.Location) int {
	m := model.Midnight(t, loc)
	return int(time.Date(m.Year(), m.Month(), m.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// ReminderKey identifies one reminder, e.g. "7d_2026-10-21".
func ReminderKey(offset int, expiry time.Time, loc *time.Location) string {
	return fmt.Sprintf("%dd_%s", offset, model.Midnight(expiry, loc).Format("2006-01-02"))
}
