package reconcile

import "github.com/sherryy67/nazam-core-sub002/internal/stories/orders"

// GatewayResult is a normalized gateway verdict for one payment attempt,
// whether it arrived through the browser callback or a status poll.
type GatewayResult struct {
	GatewayOrderRef string
	GatewayStatus   string
	TrackingID      string
	BankRef         string
	FailureReason   string
	PaymentDate     string
	RawParams       string
}

// CallbackOutcome is what the HTTP layer needs to finish the browser
// round-trip after a callback has been recorded.
type CallbackOutcome struct {
	OrderID   int64
	Reference string
	Status    orders.PaymentStatus
	Reason    string
	Applied   bool
}
