package push

import (
	"context"
	"log/slog"
)

// MultiSender delivers through a primary sender and best-effort mirrors.
// Only the primary's result is returned; mirror failures are logged.
type MultiSender struct {
	primary Sender
	mirrors []Sender
	logger  *slog.Logger
}

// NewMultiSender creates a sender fanning out to mirrors after primary.
func NewMultiSender(logger *slog.Logger, primary Sender, mirrors ...Sender) *MultiSender {
	return &MultiSender{primary: primary, mirrors: mirrors, logger: logger}
}

func (m *MultiSender) Name() string { return m.primary.Name() }

func (m *MultiSender) Send(ctx context.Context, msg Message) error {
	err := m.primary.Send(ctx, msg)
	for _, mirror := range m.mirrors {
		if merr := mirror.Send(ctx, msg); merr != nil {
			m.logger.Warn("mirror delivery failed", "sender", mirror.Name(), "error", merr)
		}
	}
	return err
}
