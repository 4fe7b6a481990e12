// Package telegram connects the bot to the Telegram Bot API using long
// polling.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/hhbot/internal/bot"
)

const pollTimeout = 30 // seconds

// requestTimeout bounds every Bot API call, long polls included. The
// library takes no context, so this is the only deadline a hung call gets.
const requestTimeout = (pollTimeout + 15) * time.Second

// Handler consumes chat events.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) error
}

type Client struct {
	api *tgbotapi.BotAPI
	log *zap.Logger
}

func New(token string, log *zap.Logger) (*Client, error) {
	return NewWithEndpoint(token, tgbotapi.APIEndpoint, nil, log)
}

// NewWithEndpoint uses a custom endpoint format, e.g. a local Bot API server.
// It calls getMe to validate the token. A nil hc, or one without a timeout,
// gets requestTimeout.
func NewWithEndpoint(token, endpoint string, hc *http.Client, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Timeout == 0 {
		bounded := *hc
		bounded.Timeout = requestTimeout
		hc = &bounded
	}
	log = log.Named("telegram")
	_ = tgbotapi.SetLogger(zap.NewStdLog(log))

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	log.Info("authorized", zap.String("username", api.Self.UserName))
	return &Client{api: api, log: log}, nil
}

// Run polls for updates and hands them to h one at a time, so a chat's
// messages are handled in order. It returns when ctx is done.
func (c *Client) Run(ctx context.Context, h Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.api.GetUpdatesChan(u)
	defer c.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := toEvent(upd)
			if !ok {
				continue
			}
			// Handle logs and reports its own failures
			_ = h.Handle(ctx, ev)
		}
	}
}

func (c *Client) Send(ctx context.Context, chatID int64, m bot.Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewMessage(chatID, m.Text)
	cfg.DisableWebPagePreview = m.DisablePreview
	if m.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if kb := markup(m.Keyboard); kb != nil {
		cfg.ReplyMarkup = *kb
	}
	sent, err := c.api.Send(cfg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send: %w", err)
	}
	return sent.MessageID, nil
}

func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, m bot.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, m.Text)
	cfg.DisableWebPagePreview = m.DisablePreview
	if m.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	cfg.ReplyMarkup = markup(m.Keyboard)
	if _, err := c.api.Request(cfg); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("telegram: edit: %w", err)
	}
	return nil
}

func (c *Client) Answer(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

func markup(kb [][]bot.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		r := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				r = append(r, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			r = append(r, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, r)
	}
	m := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &m
}

func toEvent(upd tgbotapi.Update) (bot.Event, bool) {
	if cq := upd.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil {
			return bot.Event{}, false
		}
		return bot.Event{
			ChatID:     cq.Message.Chat.ID,
			MessageID:  cq.Message.MessageID,
			CallbackID: cq.ID,
			Data:       cq.Data,
		}, true
	}
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return bot.Event{}, false
	}
	ev := bot.Event{ChatID: msg.Chat.ID, MessageID: msg.MessageID}
	if msg.IsCommand() {
		ev.Command = msg.Command()
	} else {
		ev.Text = msg.Text
	}
	return ev, true
}
