package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sherryy67/nazam-core-sub002/internal/infra/sqlite3"
)

var (
	descDBOpenConns = prometheus.NewDesc(
		"payments_db_open_connections",
		"Open connections in the SQLite pool",
		nil, nil,
	)
	descDBInUseConns = prometheus.NewDesc(
		"payments_db_in_use_connections",
		"Connections currently in use",
		nil, nil,
	)
	descPendingAttempts = prometheus.NewDesc(
		"payments_pending_attempts",
		"Payment attempts awaiting a terminal status",
		nil, nil,
	)
	descActiveLinks = prometheus.NewDesc(
		"payments_active_links",
		"Payment links not yet expired or used",
		nil, nil,
	)
)

// DBCollector exports pool stats and two business gauges straight from the
// database on each scrape. Queries are bounded by the configured timeout so
// a stuck database cannot hang the scrape.
type DBCollector struct {
	db      *sqlite3.DB
	logger  *slog.Logger
	timeout time.Duration
}

func NewDBCollector(db *sqlite3.DB, logger *slog.Logger, timeout time.Duration) *DBCollector {
	return &DBCollector{
		db:      db,
		logger:  logger,
		timeout: timeout,
	}
}

func (c *DBCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descDBOpenConns
	ch <- descDBInUseConns
	ch <- descPendingAttempts
	ch <- descActiveLinks
}

func (c *DBCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Stats()
	ch <- prometheus.MustNewConstMetric(descDBOpenConns, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(descDBInUseConns, prometheus.GaugeValue, float64(stats.InUse))

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var pending int64
	if err := c.db.GetContext(ctx, &pending,
		"SELECT COUNT(*) FROM payment_attempts WHERE status = 'Pending'"); err != nil {
		c.logger.Warn("Failed to collect pending attempts gauge", "error", err)
	} else {
		ch <- prometheus.MustNewConstMetric(descPendingAttempts, prometheus.GaugeValue, float64(pending))
	}

	var active int64
	if err := c.db.GetContext(ctx, &active,
		"SELECT COUNT(*) FROM payment_links WHERE is_expired = 0 AND is_used = 0 AND expires_at > CURRENT_TIMESTAMP"); err != nil {
		c.logger.Warn("Failed to collect active links gauge", "error", err)
	} else {
		ch <- prometheus.MustNewConstMetric(descActiveLinks, prometheus.GaugeValue, float64(active))
	}
}
