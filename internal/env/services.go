package environment

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/sherryy67/nazam-core-sub002/internal/config"
	"github.com/sherryy67/nazam-core-sub002/internal/localization"
	"github.com/sherryy67/nazam-core-sub002/internal/storage"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/links"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/notify"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/orders"
	"github.com/sherryy67/nazam-core-sub002/internal/stories/reconcile"
)

type Services struct {
	Orders    *orders.Service
	Links     *links.Service
	Notify    *notify.Service
	Reconcile *reconcile.Service
}

func newServices(clients *Clients, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	var s Services

	store := storage.New(clients.SQLiteDB)

	s.Orders = orders.NewService(store, logger)

	loc, err := localization.NewService()
	if err != nil {
		return nil, errors.Wrap(err, "init localization")
	}

	// nil concrete clients must become nil interfaces, or the notify
	// service would call through them.
	var emailSender notify.EmailSender
	if clients.Mail != nil {
		emailSender = clients.Mail
	}
	var textSender notify.TextSender
	if clients.WhatsApp != nil {
		textSender = clients.WhatsApp
	}
	s.Notify = notify.NewService(loc, emailSender, textSender, clients.Metrics, logger)

	s.Links = links.NewService(store, s.Orders, clients.Gateway, s.Notify, links.Config{
		PublicBaseURL: cfg.Links.PublicBaseURL,
		CallbackURL:   strings.TrimRight(cfg.Links.PublicBaseURL, "/") + "/api/payments/callback",
		DefaultExpiry: cfg.Links.DefaultExpiry,
		MaxExpiry:     cfg.Links.MaxExpiry,
		SingleUse:     cfg.Links.SingleUse,
	}, clients.Metrics, logger)

	var alerter reconcile.Alerter
	if clients.Alerter != nil {
		alerter = clients.Alerter
	}
	s.Reconcile = reconcile.NewService(clients.Gateway.Codec(), s.Orders, s.Notify, alerter, clients.Metrics, logger)

	return &s, nil
}
