// Package push delivers notifications to owner devices.
package push

import (
	"context"
	"errors"
)

//go:generate mockgen -destination=pushtest/sender_mock.go -package=pushtest . Sender

// ErrNoCredentials is returned when a sender has no usable credential.
var ErrNoCredentials = errors.New("push credentials unavailable")

// Android priorities and notification channels used by the app.
const (
	PriorityHigh = "high"

	ChannelBudgetAlerts      = "budget_alerts"
	ChannelWarrantyReminders = "warranty_reminders"
)

// Message is one notification addressed to a single device token.
type Message struct {
	Token   string            `json:"token"`
	Title   string            `json:"title,omitempty"`
	Body    string            `json:"body,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Android AndroidConfig     `json:"android"`
	APNS    APNSConfig        `json:"apns"`
}

// AndroidConfig carries Android delivery options.
type AndroidConfig struct {
	Priority  string `json:"priority,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	Sound     string `json:"sound,omitempty"`
}

// APNSConfig carries iOS delivery options.
type APNSConfig struct {
	Sound            string `json:"sound,omitempty"`
	Badge            int    `json:"badge,omitempty"`
	ContentAvailable bool   `json:"content_available,omitempty"`
}

// DataOnly reports whether the message has no visible notification part.
func (m Message) DataOnly() bool {
	return m.Title == "" && m.Body == ""
}

// Sender delivers messages to a push backend.
type Sender interface {
	// Name returns the sender identifier.
	Name() string

	// Send delivers a message. Implementations must be safe for concurrent use.
	Send(ctx context.Context, msg Message) error
}
