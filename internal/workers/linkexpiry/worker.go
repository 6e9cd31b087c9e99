package linkexpiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sherryy67/nazam-core-sub002/internal/metrics"
)

// Worker flips the is_expired flag on overdue payment links. Access-time
// checks already compare against the clock, so the sweep is bookkeeping: it
// keeps listings honest and stops dead links from looking active.
type Worker struct {
	links    Links
	m        *metrics.PaymentMetrics
	logger   *slog.Logger
	cron     *cron.Cron
	interval time.Duration
}

func NewWorker(links Links, interval time.Duration, m *metrics.PaymentMetrics, logger *slog.Logger) *Worker {
	return &Worker{
		links:    links,
		m:        m,
		logger:   logger,
		cron:     cron.New(),
		interval: interval,
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "link-expiry"
}

// Start schedules the sweep.
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.interval), func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in link expiry worker", "panic", r)
			}
		}()

		if err := w.run(context.Background()); err != nil {
			w.logger.Error("Link expiry sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule link expiry worker: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Link expiry worker started", "interval", w.interval)
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.cron.Stop()
}

func (w *Worker) run(ctx context.Context) error {
	expired, err := w.links.SweepExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("sweep expired links: %w", err)
	}

	if expired > 0 {
		w.logger.Info("Expired payment links swept", "count", expired)
		if w.m != nil {
			w.m.LinkSweepExpiredTotal.Add(float64(expired))
		}
	}

	return nil
}
