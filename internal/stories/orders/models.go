package orders

import "time"

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "Pending"
	StatusSuccess   PaymentStatus = "Success"
	StatusFailure   PaymentStatus = "Failure"
	StatusCancelled PaymentStatus = "Cancelled"
)

// Terminal reports whether the status ends an attempt's lifecycle.
func (s PaymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusCancelled
}

type CompletionStatus string

const (
	CompletionNotStarted CompletionStatus = "NotStarted"
	CompletionInProgress CompletionStatus = "InProgress"
	CompletionCompleted  CompletionStatus = "Completed"
)

type PaymentMethod string

const (
	MethodCashOnDelivery PaymentMethod = "Cash On Delivery"
	MethodOnlinePayment  PaymentMethod = "Online Payment"
)

type Order struct {
	ID                       int64
	Reference                string
	CustomerName             string
	CustomerEmail            string
	CustomerPhone            string
	Language                 string
	ServiceName              string
	TotalPrice               float64
	Currency                 string
	PaymentMethod            PaymentMethod
	PaymentStatus            PaymentStatus
	RequireSequentialPayment bool
	CreatedAt                time.Time
	UpdatedAt                time.Time

	Milestones []*Milestone
}

type Milestone struct {
	ID               int64
	OrderID          int64
	Seq              int
	Name             string
	Amount           float64
	PaymentStatus    PaymentStatus
	CompletionStatus CompletionStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Attempt is one journey through the gateway: created Pending at initiation,
// resolved exactly once by a callback or a status poll.
type Attempt struct {
	ID              int64
	GatewayOrderRef string
	OrderID         int64
	MilestoneID     *int64
	LinkID          *int64
	Amount          float64
	Currency        string
	Status          PaymentStatus
	TrackingID      string
	BankRef         string
	FailureReason   string
	PaymentDate     string
	RawParams       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type MilestoneInput struct {
	Name   string
	Amount float64
}

type CreateOrderRequest struct {
	CustomerName             string
	CustomerEmail            string
	CustomerPhone            string
	Language                 string
	ServiceName              string
	TotalPrice               float64
	Currency                 string
	PaymentMethod            PaymentMethod
	RequireSequentialPayment *bool
	Milestones               []MilestoneInput
}

type GetOrderCriteria struct {
	ID        *int64
	Reference *string
}

type GetAttemptCriteria struct {
	ID              *int64
	GatewayOrderRef *string
}

type ListAttemptsCriteria struct {
	OrderID   *int64
	Status    *PaymentStatus
	OlderThan *time.Time
	Limit     int
}

type CanInitiateRequest struct {
	OrderID     int64
	MilestoneID *int64
}

// InitiateTarget is the resolved payable unit: the order itself or one of
// its milestones, with the amount still due.
type InitiateTarget struct {
	Order     *Order
	Milestone *Milestone
	Amount    float64
	Currency  string
}

type MarkPendingRequest struct {
	OrderID         int64
	MilestoneID     *int64
	LinkID          *int64
	GatewayOrderRef string
	Amount          float64
	Currency        string
}

type MarkResolvedRequest struct {
	GatewayOrderRef string
	Status          PaymentStatus
	TrackingID      string
	BankRef         string
	FailureReason   string
	PaymentDate     string
	RawParams       string
}

// ResolveOutcome reports what a MarkResolved actually did. A replayed or
// racing resolution comes back with Applied=false and the stored state.
type ResolveOutcome struct {
	Attempt *Attempt
	Order   *Order
	Applied bool
}

// PaymentStatusView is the read model for the status endpoint.
type PaymentStatusView struct {
	OrderID        int64
	Reference      string
	PaymentStatus  PaymentStatus
	TotalPrice     float64
	AmountPaid     float64
	Currency       string
	PaymentDetails *Attempt
	Milestones     []*Milestone
}
