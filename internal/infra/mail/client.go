package mail

import (
	"log/slog"

	"github.com/go-faster/errors"
	"gopkg.in/gomail.v2"
)

// Client sends transactional mail over SMTP.
type Client struct {
	dialer *gomail.Dialer
	from   string
	logger *slog.Logger
}

func NewClient(host string, port int, username, password, from string, logger *slog.Logger) *Client {
	return &Client{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		logger: logger,
	}
}

// Send delivers one plain-text message. Dial failures and rejects come back
// as a single wrapped error; callers treat mail as best-effort.
func (c *Client) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", c.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := c.dialer.DialAndSend(m); err != nil {
		c.logger.Error("Failed to send email", "to", to, "error", err)
		return errors.Wrap(err, "send email")
	}

	c.logger.Info("Email sent", "to", to, "subject", subject)
	return nil
}
