package links

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sherryy67/nazam-core-sub002/internal/errs"
	"github.com/sherryy67/nazam-core-sub002/internal/infra/ccavenue"
	"github.com/sherryy67/nazam-core-sub002/internal/metrics"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

type Config struct {
	PublicBaseURL string
	CallbackURL   string
	DefaultExpiry time.Duration
	MaxExpiry     time.Duration
	SingleUse     bool
}

// Service issues, revokes, and redeems payment links.
type Service struct {
	storage  Storage
	ledger   Ledger
	gateway  Gateway
	notifier Notifier
	cfg      Config
	m        *metrics.PaymentMetrics
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(storage Storage, ledger Ledger, gateway Gateway, notifier Notifier, cfg Config, m *metrics.PaymentMetrics, logger *slog.Logger) *Service {
	return &Service{
		storage:  storage,
		ledger:   ledger,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		m:        m,
		logger:   logger,
		tracer:   otel.Tracer("stories.links"),
		now:      time.Now,
	}
}

// Issue creates a fresh payment link for the order or milestone, soft-expiring
// any previous live links. The customer notification is best-effort: its
// failure is reported through NotificationSent, never as an error.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	ctx, span := s.tracer.Start(ctx, "links.Issue",
		trace.WithAttributes(attribute.Int64("order.id", req.OrderID)))
	defer span.End()

	target, err := s.ledger.CanInitiate(ctx, orders.CanInitiateRequest{OrderID: req.OrderID, MilestoneID: req.MilestoneID})
	if err != nil {
		return nil, err
	}

	expiry := s.cfg.DefaultExpiry
	if req.ExpiryHours > 0 {
		expiry = time.Duration(req.ExpiryHours) * time.Hour
	}
	if expiry > s.cfg.MaxExpiry {
		return nil, errs.Validation("expiry %s exceeds the maximum %s", expiry, s.cfg.MaxExpiry)
	}

	expired, err := s.storage.ExpireActiveLinks(ctx, req.OrderID, req.MilestoneID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to expire previous links")
	}
	if expired > 0 {
		s.logger.Info("Expired previous payment links", "order_id", req.OrderID, "count", expired)
	}

	link, err := s.createWithFreshToken(ctx, req, expiry)
	if err != nil {
		return nil, err
	}

	kind := "full"
	if req.MilestoneID != nil {
		kind = "milestone"
	}
	if s.m != nil {
		s.m.LinkIssuedTotal.WithLabelValues(kind).Inc()
	}
	s.logger.Info("Payment link issued",
		"order_id", req.OrderID,
		"link_id", link.ID,
		"expires_at", link.ExpiresAt,
	)

	result := &IssueResult{
		Link:     link,
		Amount:   target.Amount,
		Currency: target.Currency,
	}
	if s.notifier != nil {
		if err := s.notifier.PaymentLinkIssued(ctx, target.Order, target.Milestone, link, target.Amount); err != nil {
			s.logger.Warn("Payment link notification failed", "order_id", req.OrderID, "error", err)
		} else {
			result.NotificationSent = true
		}
	}

	return result, nil
}

func (s *Service) createWithFreshToken(ctx context.Context, req IssueRequest, expiry time.Duration) (*Link, error) {
	now := s.now()
	for attempt := 0; attempt < 2; attempt++ {
		token, err := mintToken()
		if err != nil {
			return nil, errs.New(errs.CodeTokenGeneration, http.StatusInternalServerError, "mint token: %v", err)
		}

		link, err := s.storage.CreateLink(ctx, Link{
			Token:       token,
			OrderID:     req.OrderID,
			MilestoneID: req.MilestoneID,
			URL:         fmt.Sprintf("%s/pay/%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), token),
			GeneratedAt: now,
			ExpiresAt:   now.Add(expiry),
		})
		if err == nil {
			return link, nil
		}
		if !stderrors.Is(err, ErrTokenTaken) {
			return nil, errors.Wrap(err, "failed to create payment link")
		}
		s.logger.Warn("Payment link token collision, retrying", "order_id", req.OrderID)
	}
	return nil, errs.New(errs.CodeTokenGeneration, http.StatusInternalServerError, "token collision persisted after retry")
}

// Revoke soft-expires the live links of an order (or one milestone) before
// their natural expiry.
func (s *Service) Revoke(ctx context.Context, orderID int64, milestoneID *int64) error {
	n, err := s.storage.ExpireActiveLinks(ctx, orderID, milestoneID)
	if err != nil {
		return errors.Wrap(err, "failed to revoke payment links")
	}
	if n == 0 {
		return errs.NotFound(errs.CodeLinkNotFound, "order %d has no active payment link", orderID)
	}

	if s.m != nil {
		s.m.LinkRevokedTotal.Inc()
	}
	s.logger.Info("Payment link revoked", "order_id", orderID, "count", n)
	return nil
}

// SweepExpired retires every link whose expiry has passed. Access-time checks
// never trust the persisted flag, so this is pure bookkeeping.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.storage.SweepExpiredLinks(ctx, now)
}

// Resolve returns the public view of a link. Expired links fail with
// LINK_EXPIRED; a link whose target is already paid resolves with
// AlreadyPaid set instead of an error.
func (s *Service) Resolve(ctx context.Context, token string) (*Details, error) {
	link, err := s.storage.GetLink(ctx, GetCriteria{Token: lo.ToPtr(token)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get payment link")
	}
	if link == nil {
		return nil, errs.NotFound(errs.CodeLinkNotFound, "payment link not found")
	}
	if link.Expired(s.now()) {
		return nil, errs.Conflict(errs.CodeLinkExpired, "payment link expired at %s", link.ExpiresAt.Format(time.RFC3339))
	}

	target, err := s.ledger.CanInitiate(ctx, orders.CanInitiateRequest{OrderID: link.OrderID, MilestoneID: link.MilestoneID})
	if err != nil {
		if errs.FromErr(err).Code == errs.CodeAlreadyPaid {
			return s.paidDetails(ctx, link)
		}
		return nil, err
	}

	return &Details{
		Link:      link,
		Order:     target.Order,
		Milestone: target.Milestone,
		Amount:    target.Amount,
		Currency:  target.Currency,
	}, nil
}

func (s *Service) paidDetails(ctx context.Context, link *Link) (*Details, error) {
	order, err := s.ledger.GetOrder(ctx, link.OrderID)
	if err != nil {
		return nil, err
	}

	d := &Details{Link: link, Order: order, Currency: order.Currency, AlreadyPaid: true}
	if link.MilestoneID != nil {
		for _, m := range order.Milestones {
			if m.ID == *link.MilestoneID {
				d.Milestone = m
				break
			}
		}
	}
	return d, nil
}

// Initiate redeems a link into a ready-to-post gateway request: ledger checks
// pass, a Pending attempt is recorded, and the parameter string is encrypted.
func (s *Service) Initiate(ctx context.Context, token string) (*InitiateResult, error) {
	ctx, span := s.tracer.Start(ctx, "links.Initiate")
	defer span.End()

	link, err := s.storage.GetLink(ctx, GetCriteria{Token: lo.ToPtr(token)})
	if err != nil {
		s.countInitiate("error")
		return nil, errors.Wrap(err, "failed to get payment link")
	}
	if link == nil {
		s.countInitiate("rejected")
		return nil, errs.NotFound(errs.CodeLinkNotFound, "payment link not found")
	}
	if link.Expired(s.now()) {
		s.countInitiate("rejected")
		return nil, errs.Conflict(errs.CodeLinkExpired, "payment link expired at %s", link.ExpiresAt.Format(time.RFC3339))
	}
	if s.cfg.SingleUse && link.IsUsed {
		s.countInitiate("rejected")
		return nil, errs.Conflict(errs.CodeLinkUsed, "payment link has already been used")
	}

	target, err := s.ledger.CanInitiate(ctx, orders.CanInitiateRequest{OrderID: link.OrderID, MilestoneID: link.MilestoneID})
	if err != nil {
		s.countInitiate("rejected")
		return nil, err
	}

	ref := ccavenue.BuildOrderRef(link.OrderID, link.MilestoneID)

	if _, err := s.ledger.MarkPending(ctx, orders.MarkPendingRequest{
		OrderID:         link.OrderID,
		MilestoneID:     link.MilestoneID,
		LinkID:          &link.ID,
		GatewayOrderRef: ref,
		Amount:          target.Amount,
		Currency:        target.Currency,
	}); err != nil {
		s.countInitiate("error")
		return nil, err
	}

	if s.cfg.SingleUse {
		if err := s.storage.MarkLinkUsed(ctx, link.ID); err != nil {
			s.countInitiate("error")
			return nil, errors.Wrap(err, "failed to consume payment link")
		}
	}

	milestoneParam := ccavenue.MerchantParamFull
	if link.MilestoneID != nil {
		milestoneParam = strconv.FormatInt(*link.MilestoneID, 10)
	}

	encReq, err := s.gateway.EncryptedRequest(ccavenue.PaymentRequest{
		OrderID:        ref,
		Amount:         fmt.Sprintf("%.2f", target.Amount),
		Currency:       target.Currency,
		RedirectURL:    s.cfg.CallbackURL,
		CancelURL:      s.cfg.CallbackURL,
		Language:       strings.ToUpper(target.Order.Language),
		BillingName:    target.Order.CustomerName,
		BillingEmail:   target.Order.CustomerEmail,
		BillingTel:     target.Order.CustomerPhone,
		MerchantParam1: strconv.FormatInt(link.OrderID, 10),
		MerchantParam2: milestoneParam,
	})
	if err != nil {
		s.countInitiate("error")
		s.logger.Error("Failed to encrypt checkout request", "order_id", link.OrderID, "error", err)
		return nil, errs.New(errs.CodeEncryption, http.StatusInternalServerError, "could not prepare the gateway request")
	}

	s.countInitiate("ok")
	s.logger.Info("Payment initiated",
		"order_id", link.OrderID,
		"gateway_order_ref", ref,
		"amount", target.Amount,
	)

	return &InitiateResult{
		PaymentURL:      s.gateway.PaymentURL(),
		AccessCode:      s.gateway.AccessCode(),
		EncRequest:      encReq,
		GatewayOrderRef: ref,
		Amount:          target.Amount,
		Currency:        target.Currency,
	}, nil
}

func (s *Service) countInitiate(result string) {
	if s.m != nil {
		s.m.InitiateTotal.WithLabelValues(result).Inc()
	}
}

func mintToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
