package budget

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/pocket-alerts/pkg/model"
)

// ErrIgnoredOperation is returned for change events that cannot affect totals.
var ErrIgnoredOperation = errors.New("operation does not trigger a budget check")

// ChangeEvent is a database change notification for a spend record.
type ChangeEvent struct {
	OperationType string             `json:"operationType"`
	FullDocument  *model.SpendRecord `json:"fullDocument"`
}

// ParseChangeEvent decodes and validates a change event.
func ParseChangeEvent(data []byte) (*ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode change event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Validate checks that the event is a write carrying an owned spend record.
func (e *ChangeEvent) Validate() error {
	switch e.OperationType {
	case "insert", "update", "replace":
	default:
		return fmt.Errorf("%q: %w", e.OperationType, ErrIgnoredOperation)
	}
	if e.FullDocument == nil {
		return errors.New("change event has no fullDocument")
	}
	if e.FullDocument.OwnerID == "" {
		return errors.New("spend record has no userId")
	}
	if e.FullDocument.Amount.IsNegative() {
		return fmt.Errorf("spend record has negative amount %s", e.FullDocument.Amount)
	}
	return nil
}
