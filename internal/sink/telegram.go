package sink

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
	"notifyrelay/internal/notify"
)

// telegramSender is the part of *tele.Bot the sink uses.
type telegramSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// RatePerSec caps outgoing messages; Telegram allows roughly one per
	// second per chat before flood control kicks in.
	RatePerSec int
	APIURL     string
}

// Telegram posts notifications as messages to one chat (and optional
// forum thread).
type Telegram struct {
	bot      telegramSender
	chatID   int64
	threadID int
	limiter  *rate.Limiter
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegram(b, cfg), nil
}

func newTelegram(bot telegramSender, cfg TelegramConfig) *Telegram {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return &Telegram{
		bot:      bot,
		chatID:   cfg.ChatID,
		threadID: cfg.ThreadID,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Deliver(ctx context.Context, n notify.Notification) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ThreadID:              t.threadID,
		DisableWebPagePreview: true,
		DisableNotification:   n.Category == notify.CategorySuccess || n.Category == notify.CategoryInfo,
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, telegramText(n), opts)
	return err
}

func categoryPrefix(c notify.Category) string {
	switch c {
	case notify.CategoryQuestion:
		return "❓"
	case notify.CategoryError:
		return "🚨"
	case notify.CategoryStop:
		return "⏹"
	case notify.CategorySuccess:
		return "✅"
	default:
		return "ℹ️"
	}
}

func telegramText(n notify.Notification) string {
	var b strings.Builder
	b.WriteString(categoryPrefix(n.Category))
	b.WriteString(" <b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>")
	if n.Subtitle != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(n.Subtitle))
		b.WriteString("</i>")
	}
	b.WriteString("\n")
	b.WriteString(html.EscapeString(n.Message))
	if n.Open != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(n.Open))
	}
	return b.String()
}
