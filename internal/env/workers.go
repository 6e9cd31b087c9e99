package environment

import (
	"log/slog"

	"github.com/sherryy67/nazam-core-sub002/internal/config"
	"github.com/sherryy67/nazam-core-sub002/internal/workers"
	"github.com/sherryy67/nazam-core-sub002/internal/workers/linkexpiry"
	"github.com/sherryy67/nazam-core-sub002/internal/workers/statuspoll"
)

func newWorkers(cfg config.Config, clients *Clients, services *Services, logger *slog.Logger) *workers.Manager {
	sweep := linkexpiry.NewWorker(
		services.Links,
		cfg.Workers.LinkSweepInterval,
		clients.Metrics,
		logger,
	)

	poll := statuspoll.NewWorker(
		services.Orders,
		clients.Gateway,
		services.Reconcile,
		cfg.Workers.StatusPollInterval,
		cfg.Workers.StatusPollGrace,
		clients.Metrics,
		logger,
	)

	return workers.NewManager(logger, sweep, poll)
}
