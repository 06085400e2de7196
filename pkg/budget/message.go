package budget

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/ogulcanaydogan/pocket-alerts/pkg/push"
	"github.com/shopspring/decimal"
)

// AlertMessage builds the budget alert notification for one period, e.g.
// "Daily Budget Alert" / "You've spent $85.00 of $100.00 (80% threshold reached)".
func AlertMessage(token string, kind model.BudgetKind, total, limit decimal.Decimal, thresholdPct float64) push.Message {
	if thresholdPct <= 0 {
		thresholdPct = model.DefaultAlertThresholdPct
	}
	spent := total.StringFixed(2)
	budget := limit.StringFixed(2)
	pct := strconv.FormatFloat(thresholdPct, 'f', -1, 64)

	return push.Message{
		Token: token,
		Title: fmt.Sprintf("%s Budget Alert", capitalize(string(kind))),
		Body:  fmt.Sprintf("You've spent $%s of $%s (%s%% threshold reached)", spent, budget, pct),
		Data: map[string]string{
			"type":   "budget_alert",
			"period": string(kind),
			"spent":  spent,
			"budget": budget,
		},
		Android: push.AndroidConfig{
			Priority:  push.PriorityHigh,
			ChannelID: push.ChannelBudgetAlerts,
			Sound:     "default",
		},
		APNS: push.APNSConfig{Sound: "default", Badge: 1},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
