package orders

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sherryy67/nazam-core-sub002/internal/errs"
)

// amountEpsilon absorbs float drift when comparing money values.
const amountEpsilon = 0.009

// Service provides business logic for the order payment ledger.
type Service struct {
	storage Storage
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewService(storage Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
		tracer:  otel.Tracer("stories.orders"),
	}
}

// CreateOrder validates and persists a new order with its milestone plan.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder")
	defer span.End()

	s.logger.Info("Creating order",
		"customer_email", req.CustomerEmail,
		"service", req.ServiceName,
		"total_price", req.TotalPrice,
		"milestones", len(req.Milestones),
	)

	if req.CustomerName == "" || req.CustomerEmail == "" {
		return nil, errs.Validation("customer name and email are required")
	}
	if req.ServiceName == "" {
		return nil, errs.Validation("service name is required")
	}
	if req.TotalPrice <= 0 {
		return nil, errs.Validation("total price must be positive")
	}
	switch req.PaymentMethod {
	case MethodCashOnDelivery, MethodOnlinePayment:
	default:
		return nil, errs.Conflict(errs.CodeInvalidPaymentMethod, "payment method %q is not supported", req.PaymentMethod)
	}

	if req.Currency == "" {
		req.Currency = "AED"
	}
	if req.Language != "ar" {
		req.Language = "en"
	}

	if len(req.Milestones) > 0 {
		var sum float64
		for i, m := range req.Milestones {
			if m.Name == "" {
				return nil, errs.Validation("milestone %d has no name", i+1)
			}
			if m.Amount <= 0 {
				return nil, errs.Validation("milestone %q amount must be positive", m.Name)
			}
			sum += m.Amount
		}
		if math.Abs(sum-req.TotalPrice) > amountEpsilon {
			return nil, errs.Validation("milestone amounts sum to %.2f, order total is %.2f", sum, req.TotalPrice)
		}
	}

	order, err := s.storage.CreateOrder(ctx, req)
	if err != nil {
		s.logger.Error("Failed to create order in storage", "error", err)
		return nil, errors.Wrap(err, "failed to create order in storage")
	}

	s.logger.Info("Order created", "order_id", order.ID, "reference", order.Reference)
	return order, nil
}

// GetOrder returns the order with its milestones.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	order, err := s.storage.GetOrder(ctx, GetOrderCriteria{ID: lo.ToPtr(orderID)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get order from storage")
	}
	if order == nil {
		return nil, errs.NotFound(errs.CodeOrderNotFound, "order %d not found", orderID)
	}
	return order, nil
}

// PaymentStatus assembles the read model for the status endpoint: aggregate
// status, amount paid so far, milestone breakdown, and the latest resolved
// attempt as payment details.
func (s *Service) PaymentStatus(ctx context.Context, orderID int64) (*PaymentStatusView, error) {
	ctx, span := s.tracer.Start(ctx, "orders.PaymentStatus",
		trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	details, err := s.storage.LatestResolvedAttempt(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest resolved attempt")
	}

	return &PaymentStatusView{
		OrderID:        order.ID,
		Reference:      order.Reference,
		PaymentStatus:  order.PaymentStatus,
		TotalPrice:     order.TotalPrice,
		AmountPaid:     amountPaid(order),
		Currency:       order.Currency,
		PaymentDetails: details,
		Milestones:     order.Milestones,
	}, nil
}

// CanInitiate checks whether a payment may start for the order or one of its
// milestones and returns the amount still due. Expiry of the link used to
// reach this point is the caller's concern; this is pure ledger state.
func (s *Service) CanInitiate(ctx context.Context, req CanInitiateRequest) (*InitiateTarget, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CanInitiate",
		trace.WithAttributes(attribute.Int64("order.id", req.OrderID)))
	defer span.End()

	order, err := s.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentMethod != MethodOnlinePayment {
		return nil, errs.Conflict(errs.CodeInvalidPaymentMethod,
			"order %s uses %s, online payment is not enabled", order.Reference, order.PaymentMethod)
	}

	if req.MilestoneID != nil {
		return s.canInitiateMilestone(order, *req.MilestoneID)
	}

	if order.PaymentStatus == StatusSuccess {
		return nil, errs.Conflict(errs.CodeAlreadyPaid, "order %s is already paid", order.Reference)
	}
	due := order.TotalPrice - amountPaid(order)
	if due <= amountEpsilon {
		return nil, errs.Conflict(errs.CodeAlreadyPaid, "order %s has nothing left to pay", order.Reference)
	}

	return &InitiateTarget{
		Order:    order,
		Amount:   due,
		Currency: order.Currency,
	}, nil
}

func (s *Service) canInitiateMilestone(order *Order, milestoneID int64) (*InitiateTarget, error) {
	var target *Milestone
	for _, m := range order.Milestones {
		if m.ID == milestoneID {
			target = m
			break
		}
	}
	if target == nil {
		return nil, errs.NotFound(errs.CodeMilestoneNotFound,
			"milestone %d does not belong to order %s", milestoneID, order.Reference)
	}

	if target.PaymentStatus == StatusSuccess {
		return nil, errs.Conflict(errs.CodeAlreadyPaid,
			"milestone %q of order %s is already paid", target.Name, order.Reference)
	}

	if order.RequireSequentialPayment {
		for _, m := range order.Milestones {
			if m.Seq < target.Seq && m.PaymentStatus != StatusSuccess {
				return nil, errs.Conflict(errs.CodePreviousMilestoneUnpaid,
					"milestone %q must be paid before %q", m.Name, target.Name)
			}
		}
	}

	if target.Amount <= 0 {
		return nil, errs.Conflict(errs.CodeInvalidAmount,
			"milestone %q has a non-positive amount", target.Name)
	}

	return &InitiateTarget{
		Order:     order,
		Milestone: target,
		Amount:    target.Amount,
		Currency:  order.Currency,
	}, nil
}

// MarkPending records the outbound attempt before the customer is handed to
// the gateway.
func (s *Service) MarkPending(ctx context.Context, req MarkPendingRequest) (*Attempt, error) {
	ctx, span := s.tracer.Start(ctx, "orders.MarkPending",
		trace.WithAttributes(attribute.String("gateway.order_ref", req.GatewayOrderRef)))
	defer span.End()

	if req.Amount <= 0 {
		return nil, errs.Conflict(errs.CodeInvalidAmount, "attempt amount must be positive")
	}
	if req.GatewayOrderRef == "" {
		return nil, errs.Internal("attempt has no gateway order reference")
	}

	attempt, err := s.storage.CreateAttempt(ctx, req)
	if err != nil {
		s.logger.Error("Failed to create payment attempt",
			"error", err,
			"order_id", req.OrderID,
			"gateway_order_ref", req.GatewayOrderRef,
		)
		return nil, errors.Wrap(err, "failed to create payment attempt")
	}

	s.logger.Info("Payment attempt pending",
		"order_id", req.OrderID,
		"gateway_order_ref", req.GatewayOrderRef,
		"amount", req.Amount,
	)
	return attempt, nil
}

// MarkResolved applies a gateway outcome to the ledger. Idempotent: replays
// and lost races return the stored state with Applied=false.
func (s *Service) MarkResolved(ctx context.Context, req MarkResolvedRequest) (*ResolveOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "orders.MarkResolved",
		trace.WithAttributes(
			attribute.String("gateway.order_ref", req.GatewayOrderRef),
			attribute.String("status", string(req.Status)),
		))
	defer span.End()

	if !req.Status.Terminal() {
		// Non-terminal outcomes leave the attempt Pending; nothing to apply.
		attempt, err := s.storage.GetAttempt(ctx, GetAttemptCriteria{GatewayOrderRef: lo.ToPtr(req.GatewayOrderRef)})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get attempt from storage")
		}
		if attempt == nil {
			return nil, errs.NotFound(errs.CodeOrderNotFound,
				"no payment attempt for gateway reference %s", req.GatewayOrderRef)
		}
		s.logger.Info("Gateway outcome is non-terminal, attempt stays pending",
			"gateway_order_ref", req.GatewayOrderRef,
			"status", req.Status,
		)
		return &ResolveOutcome{Attempt: attempt, Applied: false}, nil
	}

	outcome, err := s.storage.ResolveAttempt(ctx, req)
	if err != nil {
		s.logger.Error("Failed to resolve payment attempt",
			"error", err,
			"gateway_order_ref", req.GatewayOrderRef,
		)
		return nil, errors.Wrap(err, "failed to resolve payment attempt")
	}
	if outcome == nil {
		return nil, errs.NotFound(errs.CodeOrderNotFound,
			"no payment attempt for gateway reference %s", req.GatewayOrderRef)
	}

	if outcome.Applied {
		s.logger.Info("Payment attempt resolved",
			"gateway_order_ref", req.GatewayOrderRef,
			"status", req.Status,
			"order_id", outcome.Attempt.OrderID,
		)
	} else {
		s.logger.Info("Payment attempt already resolved, apply skipped",
			"gateway_order_ref", req.GatewayOrderRef,
			"stored_status", outcome.Attempt.Status,
			"incoming_status", req.Status,
		)
	}

	return outcome, nil
}

// ListStalePending returns attempts that have been Pending since before the
// cutoff, oldest first. Used by the status poll worker.
func (s *Service) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Attempt, error) {
	attempts, err := s.storage.ListAttempts(ctx, ListAttemptsCriteria{
		Status:    lo.ToPtr(StatusPending),
		OlderThan: lo.ToPtr(cutoff),
		Limit:     limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stale pending attempts")
	}
	return attempts, nil
}

func amountPaid(order *Order) float64 {
	if order.PaymentStatus == StatusSuccess {
		return order.TotalPrice
	}
	var paid float64
	for _, m := range order.Milestones {
		if m.PaymentStatus == StatusSuccess {
			paid += m.Amount
		}
	}
	return paid
}
