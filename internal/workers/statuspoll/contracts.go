package statuspoll

import (
	"context"
	"time"

	"github.com/sherryy67/nazam-core-sub002/internal/infra/ccavenue"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/reconcile"
)

type (
	// Ledger lists the payment attempts whose callback never arrived.
	Ledger interface {
		ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*orders.Attempt, error)
	}

	// Gateway answers the current state of one gateway order reference.
	Gateway interface {
		OrderStatus(ctx context.Context, gatewayOrderRef string) (*ccavenue.OrderStatusResult, error)
	}

	// Reconciler applies a gateway verdict through the same path the
	// callback uses.
	Reconciler interface {
		Apply(ctx context.Context, res reconcile.GatewayResult) (*orders.ResolveOutcome, error)
	}
)
