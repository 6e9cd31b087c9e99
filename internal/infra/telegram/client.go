package telegram

import (
	"context"
	"log/slog"

	"github.com/go-faster/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Alerter pushes operational alerts to a fixed ops chat: unknown gateway
// statuses, callback decrypt failures, reconcile conflicts.
type Alerter struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	logger  *slog.Logger
	limiter *rate.Limiter
}

func NewAlerter(token string, chatID int64, logger *slog.Logger) (*Alerter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}

	// One alert per second with a small burst; a misbehaving loop must not
	// flood the ops chat.
	return &Alerter{
		api:     bot,
		chatID:  chatID,
		logger:  logger,
		limiter: rate.NewLimiter(1, 5),
	}, nil
}

// Alert sends one message. Best-effort: failures are logged, never returned.
func (a *Alerter) Alert(ctx context.Context, text string) {
	if err := a.limiter.Wait(ctx); err != nil {
		a.logger.Warn("Dropped ops alert", "error", err)
		return
	}

	msg := tgbotapi.NewMessage(a.chatID, text)
	if _, err := a.api.Send(msg); err != nil {
		a.logger.Error("Failed to send ops alert", "error", err)
	}
}
