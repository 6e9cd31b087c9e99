package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/sherryy67/nazam-core-sub002/internal/metrics"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/links"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

const (
	channelEmail    = "email"
	channelWhatsApp = "whatsapp"

	resultOK    = "ok"
	resultError = "error"
)

const expiresLayout = "02 Jan 2006 15:04"

// Service fans customer payment messages out over the configured channels.
// Either channel may be absent; a customer without a phone number simply gets
// no WhatsApp message.
type Service struct {
	loc      Localizer
	email    EmailSender
	whatsapp TextSender
	m        *metrics.PaymentMetrics
	logger   *slog.Logger
}

func NewService(loc Localizer, email EmailSender, whatsapp TextSender, m *metrics.PaymentMetrics, logger *slog.Logger) *Service {
	return &Service{
		loc:      loc,
		email:    email,
		whatsapp: whatsapp,
		m:        m,
		logger:   logger,
	}
}

// PaymentLinkIssued sends the customer their payment link.
func (s *Service) PaymentLinkIssued(ctx context.Context, order *orders.Order, milestone *orders.Milestone, link *links.Link, amount float64) error {
	params := baseParams(order)
	params["amount"] = formatAmount(amount)
	params["link"] = link.URL
	params["expires"] = link.ExpiresAt.Format(expiresLayout)
	if milestone != nil {
		params["service"] = fmt.Sprintf("%s, %s", order.ServiceName, milestone.Name)
	}
	return s.deliver(ctx, order, "payment_link", params)
}

// PaymentReceived sends the customer a receipt for a settled attempt.
func (s *Service) PaymentReceived(ctx context.Context, order *orders.Order, attempt *orders.Attempt) error {
	params := baseParams(order)
	params["amount"] = formatAmount(attempt.Amount)
	params["tracking_id"] = attempt.TrackingID
	return s.deliver(ctx, order, "receipt", params)
}

// PaymentFailed tells the customer an attempt did not go through and nothing
// was charged.
func (s *Service) PaymentFailed(ctx context.Context, order *orders.Order, attempt *orders.Attempt) error {
	reason := attempt.FailureReason
	if reason == "" {
		reason = string(attempt.Status)
	}

	params := baseParams(order)
	params["amount"] = formatAmount(attempt.Amount)
	params["reason"] = reason
	return s.deliver(ctx, order, "payment_failed", params)
}

func (s *Service) deliver(ctx context.Context, order *orders.Order, section string, params map[string]interface{}) error {
	var attempted, delivered int

	if s.email != nil && order.CustomerEmail != "" {
		attempted++
		subject := s.loc.Get(order.Language, section+".email_subject", params)
		body := s.loc.Get(order.Language, section+".email_body", params)
		if err := s.email.Send(order.CustomerEmail, subject, body); err != nil {
			s.count(channelEmail, resultError)
			s.logger.Error("Email notification failed",
				"order_id", order.ID,
				"section", section,
				"error", err,
			)
		} else {
			s.count(channelEmail, resultOK)
			delivered++
		}
	}

	if s.whatsapp != nil && order.CustomerPhone != "" {
		attempted++
		body := s.loc.Get(order.Language, section+".whatsapp", params)
		if err := s.whatsapp.SendText(ctx, order.CustomerPhone, body); err != nil {
			s.count(channelWhatsApp, resultError)
			s.logger.Error("WhatsApp notification failed",
				"order_id", order.ID,
				"section", section,
				"error", err,
			)
		} else {
			s.count(channelWhatsApp, resultOK)
			delivered++
		}
	}

	if attempted > 0 && delivered == 0 {
		return errors.Errorf("no notification channel delivered %s for order %d", section, order.ID)
	}
	return nil
}

func (s *Service) count(channel, result string) {
	if s.m != nil {
		s.m.NotifyTotal.WithLabelValues(channel, result).Inc()
	}
}

func baseParams(order *orders.Order) map[string]interface{} {
	return map[string]interface{}{
		"name":      order.CustomerName,
		"reference": order.Reference,
		"service":   order.ServiceName,
		"currency":  order.Currency,
	}
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
