package reconcile

import (
	"context"

	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

type (
	// Decrypter opens encrypted gateway payloads.
	Decrypter interface {
		Decrypt(encrypted string) (string, error)
	}

	// Ledger records gateway verdicts against orders.
	Ledger interface {
		MarkResolved(ctx context.Context, req orders.MarkResolvedRequest) (*orders.ResolveOutcome, error)
	}

	// Notifier delivers customer receipts and failure notices.
	Notifier interface {
		PaymentReceived(ctx context.Context, order *orders.Order, attempt *orders.Attempt) error
		PaymentFailed(ctx context.Context, order *orders.Order, attempt *orders.Attempt) error
	}

	// Alerter raises operator alerts. Implementations must not block the
	// callback path and must not return errors.
	Alerter interface {
		Alert(ctx context.Context, text string)
	}
)
