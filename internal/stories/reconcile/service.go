package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sherryy67/nazam-core-sub002/internal/errs"
	"github.com/sherryy67/nazam-core-sub002/internal/infra/ccavenue"
	"github.com/sherryy67/nazam-core-sub002/internal/metrics"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
)

// callbackField is where the gateway contract puts the encrypted response.
// legacyCallbackField shows up from older integration guides; accepted, but
// counted as a deviation.
const (
	callbackField       = "encResp"
	legacyCallbackField = "encResponse"
)

const (
	deviationLegacyField = "legacy_field"
	deviationQueryParams = "query_params"
)

const (
	outcomeApplied   = "applied"
	outcomeDuplicate = "duplicate"
	outcomePending   = "pending"
)

// Service turns gateway verdicts into ledger state. It is the only write
// path for payment outcomes: the browser callback and the status poll worker
// both land here.
type Service struct {
	decrypter Decrypter
	ledger    Ledger
	notifier  Notifier
	alerter   Alerter
	m         *metrics.PaymentMetrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewService(
	decrypter Decrypter,
	ledger Ledger,
	notifier Notifier,
	alerter Alerter,
	m *metrics.PaymentMetrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		decrypter: decrypter,
		ledger:    ledger,
		notifier:  notifier,
		alerter:   alerter,
		m:         m,
		logger:    logger,
		tracer:    otel.Tracer("stories.reconcile"),
	}
}

// HandleCallback processes one browser callback from the gateway: locate the
// encrypted blob, decrypt, parse, and record the verdict. The returned
// outcome reflects stored state, so a replayed callback reports what actually
// happened, not what the replay claimed.
func (s *Service) HandleCallback(ctx context.Context, form, query url.Values) (*CallbackOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.HandleCallback")
	defer span.End()

	blob, variant := extractBlob(form, query)
	if variant != "" {
		s.logger.Warn("Callback blob arrived outside the primary contract", "variant", variant)
		if s.m != nil {
			s.m.ContractDeviationTotal.WithLabelValues(variant).Inc()
		}
	}
	if blob == "" {
		return nil, errs.New(errs.CodeOrderIDMissing, http.StatusBadRequest, "callback carries no encrypted response")
	}

	plain, err := s.decrypter.Decrypt(blob)
	if err != nil {
		s.logger.Error("Callback payload failed to decrypt", "error", err)
		if s.m != nil {
			s.m.DecryptFailedTotal.Inc()
		}
		s.alert(ctx, "Payment callback failed to decrypt. Key mismatch or tampered payload.")
		return nil, errs.New(errs.CodeDecryption, http.StatusBadRequest, "encrypted response could not be read")
	}

	cb, err := ccavenue.ParseCallback(plain)
	if err != nil {
		s.logger.Error("Decrypted callback is unreadable", "error", err)
		return nil, errs.New(errs.CodeOrderIDMissing, http.StatusBadRequest, "callback parameters are unreadable")
	}

	s.checkIdentity(cb)

	outcome, mapped, err := s.apply(ctx, GatewayResult{
		GatewayOrderRef: cb.OrderID,
		GatewayStatus:   cb.OrderStatus,
		TrackingID:      cb.TrackingID,
		BankRef:         cb.BankRefNo,
		FailureReason:   failureReason(cb),
		PaymentDate:     cb.TransDate,
		RawParams:       rawJSON(cb.Raw),
	})
	if err != nil {
		return nil, err
	}

	if s.m != nil {
		s.m.CallbackTotal.WithLabelValues(string(mapped)).Inc()
	}

	out := &CallbackOutcome{
		OrderID: outcome.Attempt.OrderID,
		Status:  outcome.Attempt.Status,
		Reason:  failureReason(cb),
		Applied: outcome.Applied,
	}
	if outcome.Order != nil {
		out.Reference = outcome.Order.Reference
	}
	return out, nil
}

// Apply records one normalized gateway verdict. The status poll worker calls
// this directly, bypassing the decrypt/parse stages.
func (s *Service) Apply(ctx context.Context, res GatewayResult) (*orders.ResolveOutcome, error) {
	outcome, _, err := s.apply(ctx, res)
	return outcome, err
}

func (s *Service) apply(ctx context.Context, res GatewayResult) (*orders.ResolveOutcome, orders.PaymentStatus, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.apply",
		trace.WithAttributes(
			attribute.String("gateway.order_ref", res.GatewayOrderRef),
			attribute.String("gateway.status", res.GatewayStatus),
		))
	defer span.End()

	status, known := MapGatewayStatus(res.GatewayStatus)
	if !known {
		s.logger.Warn("Gateway status outside the known vocabulary, attempt stays pending",
			"gateway_order_ref", res.GatewayOrderRef,
			"gateway_status", res.GatewayStatus,
		)
		if s.m != nil {
			s.m.UnknownStatusTotal.Inc()
		}
		s.alert(ctx, fmt.Sprintf("Unknown gateway status %q for %s, attempt left pending.", res.GatewayStatus, res.GatewayOrderRef))
	}

	outcome, err := s.ledger.MarkResolved(ctx, orders.MarkResolvedRequest{
		GatewayOrderRef: res.GatewayOrderRef,
		Status:          status,
		TrackingID:      res.TrackingID,
		BankRef:         res.BankRef,
		FailureReason:   res.FailureReason,
		PaymentDate:     res.PaymentDate,
		RawParams:       res.RawParams,
	})
	if err != nil {
		if errs.FromErr(err).Code == errs.CodeOrderNotFound {
			s.alert(ctx, fmt.Sprintf("Payment callback for unknown gateway reference %s.", res.GatewayOrderRef))
		}
		return nil, status, err
	}

	s.countReconcile(outcome)

	if outcome.Applied {
		s.notify(ctx, outcome)
	}

	return outcome, status, nil
}

// checkIdentity cross-checks the echoed merchant params against the
// structured order reference. Disagreement is logged, the reference wins.
func (s *Service) checkIdentity(cb *ccavenue.CallbackResult) {
	refOrderID, refMilestoneID, err := ccavenue.ParseOrderRef(cb.OrderID)
	if err != nil {
		s.logger.Warn("Gateway order reference is unstructured", "gateway_order_ref", cb.OrderID)
		return
	}

	if cb.MerchantParam1 != "" && cb.MerchantParam1 != strconv.FormatInt(refOrderID, 10) {
		s.logger.Warn("merchant_param1 disagrees with the order reference",
			"gateway_order_ref", cb.OrderID,
			"merchant_param1", cb.MerchantParam1,
		)
	}

	wantParam2 := ccavenue.MerchantParamFull
	if refMilestoneID != nil {
		wantParam2 = strconv.FormatInt(*refMilestoneID, 10)
	}
	if cb.MerchantParam2 != "" && cb.MerchantParam2 != wantParam2 {
		s.logger.Warn("merchant_param2 disagrees with the order reference",
			"gateway_order_ref", cb.OrderID,
			"merchant_param2", cb.MerchantParam2,
		)
	}
}

func (s *Service) countReconcile(outcome *orders.ResolveOutcome) {
	if s.m == nil {
		return
	}
	switch {
	case outcome.Applied:
		s.m.ReconcileTotal.WithLabelValues(outcomeApplied).Inc()
	case outcome.Attempt.Status.Terminal():
		s.m.ReconcileTotal.WithLabelValues(outcomeDuplicate).Inc()
	default:
		s.m.ReconcileTotal.WithLabelValues(outcomePending).Inc()
	}
}

func (s *Service) notify(ctx context.Context, outcome *orders.ResolveOutcome) {
	if s.notifier == nil || outcome.Order == nil {
		return
	}

	var err error
	switch outcome.Attempt.Status {
	case orders.StatusSuccess:
		err = s.notifier.PaymentReceived(ctx, outcome.Order, outcome.Attempt)
	case orders.StatusFailure, orders.StatusCancelled:
		err = s.notifier.PaymentFailed(ctx, outcome.Order, outcome.Attempt)
	}
	if err != nil {
		s.logger.Warn("Payment notification failed",
			"order_id", outcome.Order.ID,
			"status", outcome.Attempt.Status,
			"error", err,
		)
	}
}

func (s *Service) alert(ctx context.Context, text string) {
	if s.alerter != nil {
		s.alerter.Alert(ctx, text)
	}
}

// MapGatewayStatus translates the gateway's order_status vocabulary into a
// ledger payment status. Anything unrecognized maps to Pending so a later
// poll can settle it; known reports whether the input was in the vocabulary.
func MapGatewayStatus(gatewayStatus string) (status orders.PaymentStatus, known bool) {
	switch {
	case equalsAny(gatewayStatus, ccavenue.GatewayStatusSuccess, "Successful"):
		return orders.StatusSuccess, true
	case equalsAny(gatewayStatus, ccavenue.GatewayStatusFailure, ccavenue.GatewayStatusInvalid,
		ccavenue.GatewayStatusTimeout, "Unsuccessful", "Failed"):
		return orders.StatusFailure, true
	case equalsAny(gatewayStatus, ccavenue.GatewayStatusAborted, "Cancelled"):
		return orders.StatusCancelled, true
	case equalsAny(gatewayStatus, ccavenue.GatewayStatusAwaited, ccavenue.GatewayStatusPending, "Initiated"):
		return orders.StatusPending, true
	default:
		return orders.StatusPending, false
	}
}

func equalsAny(s string, options ...string) bool {
	for _, opt := range options {
		if strings.EqualFold(s, opt) {
			return true
		}
	}
	return false
}

func extractBlob(form, query url.Values) (blob, variant string) {
	if v := form.Get(callbackField); v != "" {
		return v, ""
	}
	if v := form.Get(legacyCallbackField); v != "" {
		return v, deviationLegacyField
	}
	if v := query.Get(callbackField); v != "" {
		return v, deviationQueryParams
	}
	if v := query.Get(legacyCallbackField); v != "" {
		return v, deviationQueryParams
	}
	return "", ""
}

func failureReason(cb *ccavenue.CallbackResult) string {
	if cb.FailureMessage != "" {
		return cb.FailureMessage
	}
	return cb.StatusMessage
}

// rawJSON renders the decrypted callback fields as a JSON object for the
// attempt's audit column. Keys are sorted so stored records diff cleanly.
func rawJSON(vals url.Values) string {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var e jx.Encoder
	e.ObjStart()
	for _, k := range keys {
		e.FieldStart(k)
		e.Str(vals.Get(k))
	}
	e.ObjEnd()
	return e.String()
}
