package orders

import "context"

type (
	// Storage provides database operations for the payment ledger.
	Storage interface {
		CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
		GetOrder(ctx context.Context, criteria GetOrderCriteria) (*Order, error)
		GetMilestone(ctx context.Context, id int64) (*Milestone, error)
		CreateAttempt(ctx context.Context, req MarkPendingRequest) (*Attempt, error)
		GetAttempt(ctx context.Context, criteria GetAttemptCriteria) (*Attempt, error)
		ListAttempts(ctx context.Context, criteria ListAttemptsCriteria) ([]*Attempt, error)
		LatestResolvedAttempt(ctx context.Context, orderID int64) (*Attempt, error)

		// ResolveAttempt applies the terminal transition atomically: attempt
		// row, milestone/order status recompute, and link consumption happen
		// in one transaction or not at all.
		ResolveAttempt(ctx context.Context, req MarkResolvedRequest) (*ResolveOutcome, error)
	}
)
