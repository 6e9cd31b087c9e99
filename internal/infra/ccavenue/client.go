package ccavenue

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sherryy67/nazam-core-sub002/internal/metrics"
)

// Config carries the merchant credentials and gateway endpoints. The working
// key never leaves the codec and must never be logged.
type Config struct {
	MerchantID string
	AccessCode string
	WorkingKey string
	PaymentURL string
	StatusURL  string
	Timeout    time.Duration
}

// Client prepares encrypted checkout requests for the hosted payment page
// and polls the gateway's order status API.
type Client struct {
	cfg      Config
	codec    *Codec
	httpc    *http.Client
	logger   *slog.Logger
	m        *metrics.PaymentMetrics
	tracer   trace.Tracer
	requests metric.Int64Counter
}

func NewClient(cfg Config, m *metrics.PaymentMetrics, logger *slog.Logger) (*Client, error) {
	codec, err := NewCodec(cfg.WorkingKey)
	if err != nil {
		return nil, errors.Wrap(err, "init codec")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	requests, err := otel.Meter("ccavenue").Int64Counter("ccavenue.requests",
		metric.WithDescription("Outbound CCAvenue API requests"))
	if err != nil {
		return nil, errors.Wrap(err, "init request counter")
	}

	return &Client{
		cfg:      cfg,
		codec:    codec,
		httpc:    &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
		m:        m,
		tracer:   otel.Tracer("ccavenue"),
		requests: requests,
	}, nil
}

// Codec exposes the shared cipher for the callback path.
func (c *Client) Codec() *Codec { return c.codec }

func (c *Client) AccessCode() string { return c.cfg.AccessCode }

func (c *Client) PaymentURL() string { return c.cfg.PaymentURL }

// EncryptedRequest fills in the merchant id and encrypts the checkout
// parameter string the browser posts to the hosted payment page.
func (c *Client) EncryptedRequest(req PaymentRequest) (string, error) {
	req.MerchantID = c.cfg.MerchantID
	enc, err := c.codec.Encrypt(req.Encode())
	if err != nil {
		return "", errors.Wrap(err, "encrypt checkout request")
	}
	return enc, nil
}

// OrderStatusResult is the decrypted answer of the orderStatusTracker API.
type OrderStatusResult struct {
	OrderNo       string
	ReferenceNo   string
	OrderStatus   string
	BankRefNo     string
	StatusMessage string
	Amount        string

	// Raw keeps the decrypted JSON for the audit record.
	Raw string
}

// OrderStatus polls the gateway for the current state of one gateway order
// reference. Used by the status poll worker for attempts whose callback
// never arrived.
func (c *Client) OrderStatus(ctx context.Context, gatewayOrderRef string) (*OrderStatusResult, error) {
	ctx, span := c.tracer.Start(ctx, "ccavenue.OrderStatus",
		trace.WithAttributes(attribute.String("gateway.order_ref", gatewayOrderRef)))
	defer span.End()

	started := time.Now()

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_no")
	e.Str(gatewayOrderRef)
	e.ObjEnd()

	encReq, err := c.codec.Encrypt(e.String())
	if err != nil {
		return nil, errors.Wrap(err, "encrypt status request")
	}

	form := url.Values{}
	form.Set("enc_request", encReq)
	form.Set("access_code", c.cfg.AccessCode)
	form.Set("command", "orderStatusTracker")
	form.Set("request_type", "JSON")
	form.Set("response_type", "JSON")
	form.Set("version", "1.2")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.StatusURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build status request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		c.observe(ctx, "order_status", "error", started)
		return nil, errors.Wrap(err, "call status API")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.observe(ctx, "order_status", "error", started)
		return nil, errors.Wrap(err, "read status response")
	}
	if resp.StatusCode != http.StatusOK {
		c.observe(ctx, "order_status", "error", started)
		return nil, errors.Errorf("status API returned HTTP %d", resp.StatusCode)
	}

	vals, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		c.observe(ctx, "order_status", "error", started)
		return nil, errors.Wrap(err, "parse status response")
	}
	// On failure the gateway answers status=1 with a plaintext description in
	// enc_response.
	if vals.Get("status") != "0" {
		c.observe(ctx, "order_status", "error", started)
		return nil, errors.Errorf("status API rejected request: %s", vals.Get("enc_response"))
	}

	plain, err := c.codec.Decrypt(strings.TrimSpace(vals.Get("enc_response")))
	if err != nil {
		c.observe(ctx, "order_status", "error", started)
		return nil, errors.Wrap(err, "decrypt status response")
	}

	res, err := parseOrderStatusJSON(plain)
	if err != nil {
		c.observe(ctx, "order_status", "error", started)
		return nil, err
	}

	c.observe(ctx, "order_status", "ok", started)
	c.logger.Info("Gateway order status retrieved",
		"gateway_order_ref", gatewayOrderRef,
		"order_status", res.OrderStatus)
	return res, nil
}

func (c *Client) observe(ctx context.Context, operation, outcome string, started time.Time) {
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
	if c.m != nil {
		c.m.GatewayRequestDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	}
}

func parseOrderStatusJSON(plain string) (*OrderStatusResult, error) {
	res := &OrderStatusResult{Raw: plain}
	d := jx.DecodeStr(plain)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var target *string
		switch key {
		case "order_no":
			target = &res.OrderNo
		case "reference_no":
			target = &res.ReferenceNo
		case "order_status":
			target = &res.OrderStatus
		case "order_bank_ref_no":
			target = &res.BankRefNo
		case "status_message", "error_desc":
			target = &res.StatusMessage
		case "order_amt":
			// Sent as number or string depending on API version.
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			res.Amount = strings.Trim(string(raw), `"`)
			return nil
		default:
			return d.Skip()
		}
		v, err := d.Str()
		if err != nil {
			return err
		}
		*target = v
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "parse status JSON")
	}
	return res, nil
}
