package statuspoll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sherryy67/nazam-core-sub002/internal/metrics"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/reconcile"
)

const (
	resultResolved = "resolved"
	resultPending  = "pending"
	resultError    = "error"
)

// batchSize caps how many stale attempts one tick picks up.
const batchSize = 50

// Worker rescues payment attempts whose callback never arrived: it polls the
// gateway's status API for attempts still Pending past the grace window and
// feeds the verdict through the reconciler.
type Worker struct {
	ledger     Ledger
	gateway    Gateway
	reconciler Reconciler
	m          *metrics.PaymentMetrics
	logger     *slog.Logger
	cron       *cron.Cron
	interval   time.Duration
	grace      time.Duration

	// Track attempts being polled to prevent double resolution
	inFlight sync.Map
}

func NewWorker(
	ledger Ledger,
	gateway Gateway,
	reconciler Reconciler,
	interval time.Duration,
	grace time.Duration,
	m *metrics.PaymentMetrics,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		ledger:     ledger,
		gateway:    gateway,
		reconciler: reconciler,
		m:          m,
		logger:     logger,
		cron:       cron.New(),
		interval:   interval,
		grace:      grace,
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "status-poll"
}

// Start schedules the poll loop.
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.interval), func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in status poll worker", "panic", r)
			}
		}()

		if err := w.run(context.Background()); err != nil {
			w.logger.Error("Status poll tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule status poll worker: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Status poll worker started", "interval", w.interval, "grace", w.grace)
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.cron.Stop()
}

func (w *Worker) run(ctx context.Context) error {
	cutoff := time.Now().Add(-w.grace)

	attempts, err := w.ledger.ListStalePending(ctx, cutoff, batchSize)
	if err != nil {
		return fmt.Errorf("list stale attempts: %w", err)
	}

	for _, attempt := range attempts {
		// Skip attempts a previous tick is still polling.
		if _, loaded := w.inFlight.LoadOrStore(attempt.ID, true); loaded {
			continue
		}

		go func(attempt *orders.Attempt) {
			defer w.inFlight.Delete(attempt.ID)

			if err := w.poll(ctx, attempt); err != nil {
				w.logger.Error("Status poll failed",
					"gateway_order_ref", attempt.GatewayOrderRef,
					"error", err)
				w.count(resultError)
			}
		}(attempt)
	}

	return nil
}

// poll asks the gateway for the attempt's fate and records it. The
// reconciler's concurrency gate makes a race with a late callback harmless.
func (w *Worker) poll(ctx context.Context, attempt *orders.Attempt) error {
	res, err := w.gateway.OrderStatus(ctx, attempt.GatewayOrderRef)
	if err != nil {
		return fmt.Errorf("order status: %w", err)
	}

	outcome, err := w.reconciler.Apply(ctx, reconcile.GatewayResult{
		GatewayOrderRef: attempt.GatewayOrderRef,
		GatewayStatus:   res.OrderStatus,
		TrackingID:      res.ReferenceNo,
		BankRef:         res.BankRefNo,
		FailureReason:   res.StatusMessage,
		RawParams:       res.Raw,
	})
	if err != nil {
		return fmt.Errorf("apply verdict: %w", err)
	}

	if outcome.Applied {
		w.logger.Info("Stale attempt resolved by status poll",
			"gateway_order_ref", attempt.GatewayOrderRef,
			"status", outcome.Attempt.Status)
		w.count(resultResolved)
		return nil
	}

	w.count(resultPending)
	return nil
}

func (w *Worker) count(result string) {
	if w.m == nil {
		return
	}
	w.m.StatusPollTotal.WithLabelValues(result).Inc()
}
