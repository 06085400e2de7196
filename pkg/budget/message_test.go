package budget_test

import (
	"testing"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/budget"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/push"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAlertMessage(t *testing.T) {
	msg := budget.AlertMessage("device-1", model.KindWeekly, decimal.NewFromInt(425), decimal.NewFromInt(500), 85)

	assert.Equal(t, "device-1", msg.Token)
	assert.Equal(t, "Weekly Budget Alert", msg.Title)
	assert.Equal(t, "You've spent $425.00 of $500.00 (85% threshold reached)", msg.Body)
	assert.Equal(t, map[string]string{
		"type":   "budget_alert",
		"period": "weekly",
		"spent":  "425.00",
		"budget": "500.00",
	}, msg.Data)
	assert.Equal(t, push.AndroidConfig{Priority: "high", ChannelID: "budget_alerts", Sound: "default"}, msg.Android)
	assert.Equal(t, push.APNSConfig{Sound: "default", Badge: 1}, msg.APNS)
}

func TestAlertMessage_FractionalThreshold(t *testing.T) {
	msg := budget.AlertMessage("d", model.KindDaily, decimal.RequireFromString("9.5"), decimal.NewFromInt(10), 92.5)
	assert.Equal(t, "You've spent $9.50 of $10.00 (92.5% threshold reached)", msg.Body)
}
