package links

import (
	"context"
	"errors"
	"time"

	"github.com/sherryy67/nazam-core-sub002/internal/infra/ccavenue"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

// ErrTokenTaken is returned by Storage.CreateLink on a token collision.
var ErrTokenTaken = errors.New("payment link token already taken")

type (
	// Storage provides database operations for payment links.
	Storage interface {
		CreateLink(ctx context.Context, link Link) (*Link, error)
		GetLink(ctx context.Context, criteria GetCriteria) (*Link, error)

		// ExpireActiveLinks soft-expires every live link for the order (and
		// milestone, when given) and returns how many were affected.
		ExpireActiveLinks(ctx context.Context, orderID int64, milestoneID *int64) (int64, error)

		// MarkLinkUsed consumes the link so it cannot initiate again.
		MarkLinkUsed(ctx context.Context, linkID int64) error

		// SweepExpiredLinks flags every live link whose expiry has passed.
		SweepExpiredLinks(ctx context.Context, now time.Time) (int64, error)
	}

	// Ledger provides the order-side checks and transitions.
	Ledger interface {
		GetOrder(ctx context.Context, orderID int64) (*orders.Order, error)
		CanInitiate(ctx context.Context, req orders.CanInitiateRequest) (*orders.InitiateTarget, error)
		MarkPending(ctx context.Context, req orders.MarkPendingRequest) (*orders.Attempt, error)
	}

	// Gateway prepares the encrypted checkout request.
	Gateway interface {
		EncryptedRequest(req ccavenue.PaymentRequest) (string, error)
		AccessCode() string
		PaymentURL() string
	}

	// Notifier delivers the payment link to the customer. Best-effort.
	Notifier interface {
		PaymentLinkIssued(ctx context.Context, order *orders.Order, milestone *orders.Milestone, link *Link, amount float64) error
	}
)
