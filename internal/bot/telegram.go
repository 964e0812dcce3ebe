package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/timesheet-app/timesheet/internal/domain"
	"github.com/timesheet-app/timesheet/internal/log"
)

// pollTimeout is the Telegram long-poll timeout in seconds.
const pollTimeout = 30

// Telegram runs the bot over the Telegram long-poll API. The chat id of
// a private conversation doubles as the user's platform identity.
type Telegram struct {
	api        *tgbotapi.BotAPI
	dispatcher *Dispatcher
	logger     zerolog.Logger
}

// NewTelegram connects to the Telegram API with the given token.
func NewTelegram(token string, dispatcher *Dispatcher) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, err, "connect telegram")
	}
	return &Telegram{
		api:        api,
		dispatcher: dispatcher,
		logger:     log.WithComponent("telegram"),
	}, nil
}

// Run consumes updates until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	updates := t.api.GetUpdatesChan(cfg)

	t.logger.Info().
		Str("event", "telegram.start").
		Str("username", t.api.Self.UserName).
		Msg("bot polling started")

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.logger.Info().Str("event", "telegram.stop").Msg("bot polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message

	// Bound each message so one slow operation cannot stall the poll loop.
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reply := t.dispatcher.HandleMessage(ctx, msg.Chat.ID, msg.Text)
	if reply == "" {
		return
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		t.logger.Warn().Err(err).
			Str("event", "telegram.send_failed").
			Int64("chat_id", msg.Chat.ID).
			Msg("reply not delivered")
	}
}

// Notify implements the background workers' notifier over Telegram.
func (t *Telegram) Notify(_ context.Context, user *domain.User, message string) error {
	if _, err := t.api.Send(tgbotapi.NewMessage(user.ExternalID, message)); err != nil {
		return domain.Wrap(domain.KindTransient, err, "send notification")
	}
	return nil
}
