package httpapi

import (
	"time"

	"github.com/sherryy67/nazam-core-sub002/internal/stories/links"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

type milestoneView struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Amount           float64 `json:"amount"`
	Order            int     `json:"order"`
	PaymentStatus    string  `json:"paymentStatus"`
	CompletionStatus string  `json:"completionStatus"`
}

type orderView struct {
	ID                       int64           `json:"id"`
	Reference                string          `json:"reference"`
	CustomerName             string          `json:"customerName"`
	CustomerEmail            string          `json:"customerEmail"`
	CustomerPhone            string          `json:"customerPhone,omitempty"`
	Language                 string          `json:"language"`
	ServiceName              string          `json:"serviceName"`
	TotalPrice               float64         `json:"totalPrice"`
	Currency                 string          `json:"currency"`
	PaymentMethod            string          `json:"paymentMethod"`
	PaymentStatus            string          `json:"paymentStatus"`
	RequireSequentialPayment bool            `json:"requireSequentialPayment"`
	CreatedAt                time.Time       `json:"createdAt"`
	Milestones               []milestoneView `json:"milestones,omitempty"`
}

type attemptView struct {
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	TrackingID    string  `json:"trackingId,omitempty"`
	BankRef       string  `json:"bankRef,omitempty"`
	FailureReason string  `json:"failureReason,omitempty"`
	PaymentDate   string  `json:"paymentDate,omitempty"`
}

type paymentStatusView struct {
	OrderID        int64           `json:"orderId"`
	Reference      string          `json:"reference"`
	PaymentStatus  string          `json:"paymentStatus"`
	TotalPrice     float64         `json:"totalPrice"`
	AmountPaid     float64         `json:"amountPaid"`
	Currency       string          `json:"currency"`
	PaymentDetails *attemptView    `json:"paymentDetails,omitempty"`
	Milestones     []milestoneView `json:"milestones,omitempty"`
}

type linkDetailsView struct {
	Order       linkOrderView  `json:"order"`
	Milestone   *milestoneView `json:"milestone,omitempty"`
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	IsExpired   bool           `json:"isExpired"`
	AlreadyPaid bool           `json:"alreadyPaid"`
}

// linkOrderView keeps the public link endpoint down to what the payment
// page shows; it never exposes customer contact details.
type linkOrderView struct {
	Reference     string `json:"reference"`
	CustomerName  string `json:"customerName"`
	ServiceName   string `json:"serviceName"`
	PaymentStatus string `json:"paymentStatus"`
}

type initiateView struct {
	PaymentURL string  `json:"paymentUrl"`
	AccessCode string  `json:"accessCode"`
	EncRequest string  `json:"encRequest"`
	OrderID    string  `json:"orderId"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
}

type issuedLinkView struct {
	PaymentLink      string    `json:"paymentLink"`
	Token            string    `json:"token"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	NotificationSent bool      `json:"notificationSent"`
}

func newMilestoneView(m *orders.Milestone) milestoneView {
	return milestoneView{
		ID:               m.ID,
		Name:             m.Name,
		Amount:           m.Amount,
		Order:            m.Seq,
		PaymentStatus:    string(m.PaymentStatus),
		CompletionStatus: string(m.CompletionStatus),
	}
}

func newMilestoneViews(ms []*orders.Milestone) []milestoneView {
	if len(ms) == 0 {
		return nil
	}
	views := make([]milestoneView, 0, len(ms))
	for _, m := range ms {
		views = append(views, newMilestoneView(m))
	}
	return views
}

func newOrderView(o *orders.Order) orderView {
	return orderView{
		ID:                       o.ID,
		Reference:                o.Reference,
		CustomerName:             o.CustomerName,
		CustomerEmail:            o.CustomerEmail,
		CustomerPhone:            o.CustomerPhone,
		Language:                 o.Language,
		ServiceName:              o.ServiceName,
		TotalPrice:               o.TotalPrice,
		Currency:                 o.Currency,
		PaymentMethod:            string(o.PaymentMethod),
		PaymentStatus:            string(o.PaymentStatus),
		RequireSequentialPayment: o.RequireSequentialPayment,
		CreatedAt:                o.CreatedAt,
		Milestones:               newMilestoneViews(o.Milestones),
	}
}

func newAttemptView(a *orders.Attempt) *attemptView {
	if a == nil {
		return nil
	}
	return &attemptView{
		Status:        string(a.Status),
		Amount:        a.Amount,
		Currency:      a.Currency,
		TrackingID:    a.TrackingID,
		BankRef:       a.BankRef,
		FailureReason: a.FailureReason,
		PaymentDate:   a.PaymentDate,
	}
}

func newPaymentStatusView(v *orders.PaymentStatusView) paymentStatusView {
	return paymentStatusView{
		OrderID:        v.OrderID,
		Reference:      v.Reference,
		PaymentStatus:  string(v.PaymentStatus),
		TotalPrice:     v.TotalPrice,
		AmountPaid:     v.AmountPaid,
		Currency:       v.Currency,
		PaymentDetails: newAttemptView(v.PaymentDetails),
		Milestones:     newMilestoneViews(v.Milestones),
	}
}

func newLinkDetailsView(d *links.Details, now time.Time) linkDetailsView {
	view := linkDetailsView{
		Order: linkOrderView{
			Reference:     d.Order.Reference,
			CustomerName:  d.Order.CustomerName,
			ServiceName:   d.Order.ServiceName,
			PaymentStatus: string(d.Order.PaymentStatus),
		},
		Amount:      d.Amount,
		Currency:    d.Currency,
		ExpiresAt:   d.Link.ExpiresAt,
		IsExpired:   d.Link.Expired(now),
		AlreadyPaid: d.AlreadyPaid,
	}
	if d.Milestone != nil {
		m := newMilestoneView(d.Milestone)
		view.Milestone = &m
	}
	return view
}
