package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
)

// Telegram delivers notifications through a Telegram bot. The device token is
// the numeric chat id as a string. Delivery runs in its own goroutine with its
// own timeout so callers never wait on the Telegram API.
type Telegram struct {
	bot *bot.Bot
}

func NewTelegram(token string) (*Telegram, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: b}, nil
}

func (t *Telegram) Send(ctx context.Context, token string, payload Payload) {
	chatID, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		slog.Warn("notification token is not a chat id", "token", token)
		return
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		text := payload.Body
		if payload.Title != "" {
			text = payload.Title + "\n\n" + payload.Body
		}
		_, err := t.bot.SendMessage(sendCtx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		if err != nil {
			slog.Error("failed to send notification", "chat_id", chatID, "error", err)
		}
	}()
}
