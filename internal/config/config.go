package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env              string                  `env:"ENV,default=local"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	API              APIConfig               `env:",prefix=API_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=30s"`
	DB               SQLiteConfig            `env:",prefix=DB_"`
	Auth             AuthConfig              `env:",prefix=AUTH_"`
	Gateway          GatewayConfig           `env:",prefix=GATEWAY_"`
	Links            LinksConfig             `env:",prefix=LINKS_"`
	SMTP             SMTPConfig              `env:",prefix=SMTP_"`
	WhatsApp         WhatsAppConfig          `env:",prefix=WHATSAPP_"`
	Alerts           AlertsConfig            `env:",prefix=ALERTS_"`
	Workers          WorkersConfig           `env:",prefix=WORKERS_"`
	Metrics          MetricsConfig           `env:",prefix=METRICS_"`
}

type MetricsConfig struct {
	// CollectorTimeout bounds the DB stats queries behind /metrics scrapes.
	CollectorTimeout time.Duration `env:"COLLECTOR_TIMEOUT,default=10s"`
}

type LoggerConfig struct {
	Level string `env:"LEVEL,default=debug"`
}

type APIConfig struct {
	Host         string        `env:"HOST,default=0.0.0.0"`
	Port         uint16        `env:"PORT,default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a APIConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type ObservabilityHTTPConfig struct {
	Host         string        `env:"HOST,default=127.0.0.1"`
	Port         uint16        `env:"PORT,default=8383"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a ObservabilityHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type SQLiteConfig struct {
	Path         string        `env:"PATH,default=./data/nazam.db"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS,default=25"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS,default=5"`
	MaxLifetime  time.Duration `env:"MAX_LIFETIME,default=1h"`
	BusyTimeout  time.Duration `env:"BUSY_TIMEOUT,default=5s"`
}

type AuthConfig struct {
	// JWTSecret verifies admin API tokens. Token issuance lives in the
	// account service; this service only validates.
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=24h"`
}

// GatewayConfig carries the CCAvenue merchant credentials. The working key is
// the AES shared secret and must never appear in logs; it is handed to the
// codec once at startup and not read from anywhere else.
type GatewayConfig struct {
	MerchantID string        `env:"MERCHANT_ID,required"`
	AccessCode string        `env:"ACCESS_CODE,required"`
	WorkingKey string        `env:"WORKING_KEY,required"`
	PaymentURL string        `env:"PAYMENT_URL,default=https://secure.ccavenue.ae/transaction/transaction.do?command=initiateTransaction"`
	StatusURL  string        `env:"STATUS_URL,default=https://login.ccavenue.ae/apis/servlet/DoWebTrans"`
	Timeout    time.Duration `env:"TIMEOUT,default=30s"`
	// ResultPageURL is the storefront page the customer's browser lands on
	// after the gateway calls back; order_id/status/reason are appended.
	ResultPageURL string `env:"RESULT_PAGE_URL,default=https://nazam.ae/payment/result"`
}

type LinksConfig struct {
	// PublicBaseURL is the externally reachable base for shareable payment
	// links, e.g. https://pay.nazam.ae.
	PublicBaseURL string        `env:"PUBLIC_BASE_URL,default=http://127.0.0.1:8080"`
	DefaultExpiry time.Duration `env:"DEFAULT_EXPIRY,default=48h"`
	MaxExpiry     time.Duration `env:"MAX_EXPIRY,default=168h"`
	// SingleUse consumes a link on first initiation. When false (default) a
	// link stays usable for repeated attempts until one of them succeeds.
	SingleUse bool `env:"SINGLE_USE,default=false"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT,default=587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM,default=payments@nazam.ae"`
}

// Enabled reports whether outbound email is configured; an empty host turns
// the mail channel into a no-op.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type WhatsAppConfig struct {
	BaseURL       string        `env:"BASE_URL,default=https://graph.facebook.com/v19.0"`
	AccessToken   string        `env:"ACCESS_TOKEN"`
	PhoneNumberID string        `env:"PHONE_NUMBER_ID"`
	Timeout       time.Duration `env:"TIMEOUT,default=30s"`
	RateLimit     struct {
		Burst int     `env:"BURST,default=1"`
		RPS   float64 `env:"RPS,default=10.0"`
	} `env:",prefix=RATE_LIMIT_"`
}

func (c WhatsAppConfig) Enabled() bool {
	return c.AccessToken != "" && c.PhoneNumberID != ""
}

type AlertsConfig struct {
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	ChatID        int64  `env:"CHAT_ID"`
}

func (c AlertsConfig) Enabled() bool {
	return c.TelegramToken != "" && c.ChatID != 0
}

type WorkersConfig struct {
	// LinkSweepInterval controls how often overdue links get their expired
	// flag set; access-time checks never trust the flag alone.
	LinkSweepInterval time.Duration `env:"LINK_SWEEP_INTERVAL,default=5m"`
	// StatusPollInterval controls gateway status polling for attempts stuck
	// in Pending longer than StatusPollGrace.
	StatusPollInterval time.Duration `env:"STATUS_POLL_INTERVAL,default=1m"`
	StatusPollGrace    time.Duration `env:"STATUS_POLL_GRACE,default=10m"`
}
