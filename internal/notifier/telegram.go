package notifier

import (
	"context"
	"errors"
	"net/http"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

// telegramTextLimit is the Bot API message length limit.
const telegramTextLimit = 4096

// Telegram posts alerts to one chat, optionally inside a forum thread.
type Telegram struct {
	bot      *tele.Bot
	chatID   int64
	threadID int
}

// NewTelegram builds an offline bot: no getMe call and no poller, the
// engine only sends.
func NewTelegram(token string, chatID int64, threadID int) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: sendTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chatID: chatID, threadID: threadID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, truncate(m.Text, telegramTextLimit), &tele.SendOptions{
		ThreadID:              t.threadID,
		DisableWebPagePreview: true,
	})
	return err
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
