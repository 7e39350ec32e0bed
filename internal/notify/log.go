package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notices to the log. It is the default transport.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendApprovalNotice(ctx context.Context, recipient, bookingRef string) error {
	n.logger.Info().
		Str("notice", "approval").
		Str("recipient", recipient).
		Str("booking_ref", bookingRef).
		Msg("approval notice")
	return nil
}

func (n *LogNotifier) SendRefundNotice(ctx context.Context, recipient, bookingRef, reason string) error {
	n.logger.Info().
		Str("notice", "refund").
		Str("recipient", recipient).
		Str("booking_ref", bookingRef).
		Str("reason", reason).
		Msg("refund notice")
	return nil
}
