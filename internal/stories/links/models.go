package links

import (
	"time"

	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

type Link struct {
	ID          int64
	Token       string
	OrderID     int64
	MilestoneID *int64
	URL         string
	GeneratedAt time.Time
	ExpiresAt   time.Time
	IsExpired   bool
	IsUsed      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired reports the live expiry state. The persisted flag is maintenance
// only; access-time checks always compare against the clock.
func (l *Link) Expired(now time.Time) bool {
	return l.IsExpired || !now.Before(l.ExpiresAt)
}

type IssueRequest struct {
	OrderID     int64
	MilestoneID *int64

	// ExpiryHours overrides the configured default when positive.
	ExpiryHours int
}

type IssueResult struct {
	Link             *Link
	Amount           float64
	Currency         string
	NotificationSent bool
}

type GetCriteria struct {
	ID    *int64
	Token *string
}

// Details is the read model behind the public link endpoint.
type Details struct {
	Link        *Link
	Order       *orders.Order
	Milestone   *orders.Milestone
	Amount      float64
	Currency    string
	AlreadyPaid bool
}

// InitiateResult carries everything the payment page needs for the
// form POST to the gateway.
type InitiateResult struct {
	PaymentURL      string
	AccessCode      string
	EncRequest      string
	GatewayOrderRef string
	Amount          float64
	Currency        string
}
