package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/time/rate"
)

// Client sends text messages through the WhatsApp Cloud API. Requests are
// rate limited to stay inside Meta's messaging throughput tier.
type Client struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	httpc         *http.Client
	limiter       *rate.Limiter
	logger        *slog.Logger
}

func NewClient(baseURL, accessToken, phoneNumberID string, rps float64, burst int, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpc:         &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		logger:        logger,
	}
}

type textMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

// SendText delivers one free-form text message to an international-format
// phone number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiting")
	}

	msg := textMessage{MessagingProduct: "whatsapp", To: to, Type: "text"}
	msg.Text.Body = body

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "call cloud API")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("WhatsApp send rejected",
			"to", to,
			"status", resp.StatusCode,
			"detail", string(detail))
		return errors.Errorf("cloud API returned HTTP %d", resp.StatusCode)
	}

	c.logger.Info("WhatsApp message sent", "to", to)
	return nil
}
