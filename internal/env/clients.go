package environment

import (
	"context"
	"log/slog"

	"github.com/sherryy67/nazam-core-sub002/internal/config"
	"github.com/sherryy67/nazam-core-sub002/internal/infra/ccavenue"
	"github.com/sherryy67/nazam-core-sub002/internal/infra/mail"
	"github.com/sherryy67/nazam-core-sub002/internal/infra/sqlite3"
	"github.com/sherryy67/nazam-core-sub002/internal/infra/telegram"
	"github.com/sherryy67/nazam-core-sub002/internal/infra/whatsapp"
	"github.com/sherryy67/nazam-core-sub002/internal/metrics"
)

// Clients holds the process-wide infra handles. Mail, WhatsApp and Alerter
// are nil when their config section is absent; the services treat a missing
// channel as disabled.
type Clients struct {
	SQLiteDB *sqlite3.DB
	Gateway  *ccavenue.Client
	Mail     *mail.Client
	WhatsApp *whatsapp.Client
	Alerter  *telegram.Alerter
	Metrics  *metrics.PaymentMetrics
}

func newClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Clients, error) {
	m := metrics.NewPaymentMetrics()

	sqliteDB, err := provideSQLiteDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gateway, err := ccavenue.NewClient(ccavenue.Config{
		MerchantID: cfg.Gateway.MerchantID,
		AccessCode: cfg.Gateway.AccessCode,
		WorkingKey: cfg.Gateway.WorkingKey,
		PaymentURL: cfg.Gateway.PaymentURL,
		StatusURL:  cfg.Gateway.StatusURL,
		Timeout:    cfg.Gateway.Timeout,
	}, m, logger)
	if err != nil {
		return nil, err
	}

	alerter, err := provideAlerter(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Clients{
		SQLiteDB: sqliteDB,
		Gateway:  gateway,
		Mail:     provideMail(cfg, logger),
		WhatsApp: provideWhatsApp(cfg, logger),
		Alerter:  alerter,
		Metrics:  m,
	}, nil
}

func provideSQLiteDB(ctx context.Context, cfg config.Config) (*sqlite3.DB, error) {
	opts := []sqlite3.Option{
		sqlite3.WithDSN(cfg.DB.Path),
		sqlite3.WithMaxOpenConns(cfg.DB.MaxOpenConns),
		sqlite3.WithMaxIdleConns(cfg.DB.MaxIdleConns),
		sqlite3.WithConnMaxLifetime(cfg.DB.MaxLifetime),
		sqlite3.WithBusyTimeout(cfg.DB.BusyTimeout),
	}

	return sqlite3.New(ctx, opts...)
}

func provideMail(cfg config.Config, logger *slog.Logger) *mail.Client {
	if !cfg.SMTP.Enabled() {
		return nil
	}

	return mail.NewClient(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger)
}

func provideWhatsApp(cfg config.Config, logger *slog.Logger) *whatsapp.Client {
	if !cfg.WhatsApp.Enabled() {
		return nil
	}

	return whatsapp.NewClient(
		cfg.WhatsApp.BaseURL,
		cfg.WhatsApp.AccessToken,
		cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.RateLimit.RPS,
		cfg.WhatsApp.RateLimit.Burst,
		cfg.WhatsApp.Timeout,
		logger,
	)
}

func provideAlerter(cfg config.Config, logger *slog.Logger) (*telegram.Alerter, error) {
	if !cfg.Alerts.Enabled() {
		return nil, nil
	}

	return telegram.NewAlerter(cfg.Alerts.TelegramToken, cfg.Alerts.ChatID, logger)
}
