package notify

import (
	"context"
	"errors"

	"resortbook/internal/domain"
)

// Multi fans a notice out to every notifier and joins their errors.
type Multi []domain.Notifier

func (m Multi) SendApprovalNotice(ctx context.Context, recipient, bookingRef string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.SendApprovalNotice(ctx, recipient, bookingRef))
	}
	return errors.Join(errs...)
}

func (m Multi) SendRefundNotice(ctx context.Context, recipient, bookingRef, reason string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.SendRefundNotice(ctx, recipient, bookingRef, reason))
	}
	return errors.Join(errs...)
}
