package budget

import (
	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluation is the result of comparing a period total with its limit.
type Evaluation struct {
	ShouldAlert     bool
	ThresholdAmount decimal.Decimal
}

// Evaluate decides whether total sits in the alert band [limit*pct/100, limit).
// Once the limit is reached no further alerts are raised. A non-positive limit
// never alerts and a non-positive pct falls back to the default threshold.
func Evaluate(total, limit decimal.Decimal, thresholdPct float64) Evaluation {
	if !limit.IsPositive() {
		return Evaluation{ThresholdAmount: decimal.Zero}
	}
	if thresholdPct <= 0 {
		thresholdPct = model.DefaultAlertThresholdPct
	}

	threshold := limit.Mul(decimal.NewFromFloat(thresholdPct)).Div(hundred)
	return Evaluation{
		ShouldAlert:     total.GreaterThanOrEqual(threshold) && total.LessThan(limit),
		ThresholdAmount: threshold,
	}
}
