package environment

import (
	"log/slog"
	"net/http"

	"github.com/sherryy67/nazam-core-sub002/internal/config"
	"github.com/sherryy67/nazam-core-sub002/internal/httpapi"
)

type Servers struct {
	HTTP struct {
		Observability *http.Server
		API           *http.Server
	}
}

func newServers(cfg config.Config, logger *slog.Logger, clients *Clients, services *Services) *Servers {
	var servers Servers

	auth := httpapi.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	api := httpapi.NewServer(
		services.Orders,
		services.Links,
		services.Reconcile,
		auth,
		cfg.Gateway.ResultPageURL,
		logger,
	)

	servers.HTTP.API = &http.Server{
		Addr:              cfg.API.ADDR(),
		Handler:           api.Router(cfg.Env),
		ReadTimeout:       cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       cfg.API.IdleTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
	}
	servers.HTTP.Observability = initObservability(logger.WithGroup("http"), clients, cfg)

	return &servers
}
