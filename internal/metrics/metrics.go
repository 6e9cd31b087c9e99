package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics holds every counter and histogram the payments subsystem
// emits. Registered against the default registry, served by the
// observability listener.
type PaymentMetrics struct {
	LinkIssuedTotal  *prometheus.CounterVec // kind: full/milestone
	LinkRevokedTotal prometheus.Counter

	InitiateTotal *prometheus.CounterVec // result: ok/rejected/error

	CallbackTotal          *prometheus.CounterVec // status: Success/Failure/Cancelled/Pending
	ContractDeviationTotal *prometheus.CounterVec // variant: legacy_field/query_params
	UnknownStatusTotal     prometheus.Counter
	DecryptFailedTotal     prometheus.Counter

	ReconcileTotal *prometheus.CounterVec // outcome: applied/duplicate/pending

	GatewayRequestDuration *prometheus.HistogramVec // operation: initiate/order_status

	NotifyTotal *prometheus.CounterVec // channel: email/whatsapp; result: ok/error

	LinkSweepExpiredTotal prometheus.Counter
	StatusPollTotal       *prometheus.CounterVec // result: resolved/pending/error
}

func NewPaymentMetrics() *PaymentMetrics {
	return &PaymentMetrics{
		LinkIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_link_issued_total",
				Help: "Total number of payment links issued",
			},
			[]string{"kind"},
		),
		LinkRevokedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_link_revoked_total",
				Help: "Total number of payment links revoked before expiry",
			},
		),

		InitiateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_initiate_total",
				Help: "Total number of payment initiations",
			},
			[]string{"result"},
		),

		CallbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_callback_total",
				Help: "Total number of gateway callbacks by mapped status",
			},
			[]string{"status"},
		),
		ContractDeviationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_callback_contract_deviation_total",
				Help: "Callbacks delivered outside the primary encResp form contract",
			},
			[]string{"variant"},
		),
		UnknownStatusTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_callback_unknown_status_total",
				Help: "Callbacks carrying a gateway status outside the known vocabulary",
			},
		),
		DecryptFailedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_callback_decrypt_failed_total",
				Help: "Callbacks whose encrypted payload could not be decrypted",
			},
		),

		ReconcileTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_reconcile_total",
				Help: "Total number of reconciliation applies",
			},
			[]string{"outcome"},
		),

		GatewayRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payments_gateway_request_duration_seconds",
				Help:    "Duration of outbound CCAvenue requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		NotifyTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_notify_total",
				Help: "Total number of customer notification sends",
			},
			[]string{"channel", "result"},
		),

		LinkSweepExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_link_sweep_expired_total",
				Help: "Links flagged expired by the sweep worker",
			},
		),
		StatusPollTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_status_poll_total",
				Help: "Total number of gateway status polls for stale attempts",
			},
			[]string{"result"},
		),
	}
}
