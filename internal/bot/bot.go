// Package bot adapts the Telegram Bot API to the router: updates become
// events and responses become messages with inline keyboards.
package bot

import (
	"context"
	"fmt"
	"strings"

	"booking-bot/internal/router"
	"booking-bot/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Submitter accepts events for processing. *router.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, ev router.Event) error
}

type Bot struct {
	API *tgbotapi.BotAPI
	log *zap.Logger
}

// New connects to the Bot API. An empty endpoint selects the public
// Telegram server; compatible servers take a "https://host/bot%s/%s" format.
func New(token, endpoint string, log *zap.Logger) (*Bot, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if log == nil {
		log = zap.NewNop()
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info("Authorized on account", zap.String("account", api.Self.UserName))
	return &Bot{API: api, log: log}, nil
}

// Send delivers resp to chatID.
func (b *Bot) Send(_ context.Context, chatID int64, resp router.Response) error {
	msg := tgbotapi.NewMessage(chatID, resp.Text)
	if markup := Markup(resp.Buttons); markup != nil {
		msg.ReplyMarkup = *markup
	}

	if _, err := b.API.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Run long-polls for updates and submits them until ctx is canceled.
func (b *Bot) Run(ctx context.Context, sub Submitter) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.API.GetUpdatesChan(u)
	defer b.API.StopReceivingUpdates()

	b.log.Info("Bot started successfully")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update, sub)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update, sub Submitter) {
	if cq := update.CallbackQuery; cq != nil {
		if _, err := b.API.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			b.log.Debug("Failed to answer callback", zap.Error(err))
		}
	}

	ev, ok := EventFromUpdate(update)
	if !ok {
		return
	}

	if err := sub.Submit(ctx, ev); err != nil {
		b.log.Warn("Update not submitted",
			append(logger.User(ev.UserID, ev.ChatID), zap.Error(err))...)
	}
}

// EventFromUpdate converts a private-chat message or a callback query into
// an event. Other updates are ignored.
func EventFromUpdate(update tgbotapi.Update) (router.Event, bool) {
	switch {
	case update.Message != nil:
		m := update.Message
		if m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
			return router.Event{}, false
		}
		ev := newEvent(m.From, m.Chat.ID)
		if m.IsCommand() {
			ev.Kind = router.EventCommand
			ev.Payload = strings.ToLower(m.Command())
		} else {
			ev.Kind = router.EventText
			ev.Payload = m.Text
		}
		return ev, true

	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.From == nil {
			return router.Event{}, false
		}
		chatID := cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			if !cq.Message.Chat.IsPrivate() {
				return router.Event{}, false
			}
			chatID = cq.Message.Chat.ID
		}
		ev := newEvent(cq.From, chatID)
		ev.Kind = router.EventButton
		ev.Payload = cq.Data
		return ev, true
	}
	return router.Event{}, false
}

func newEvent(from *tgbotapi.User, chatID int64) router.Event {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = from.UserName
	}
	return router.Event{
		UserID:      from.ID,
		ChatID:      chatID,
		Handle:      from.UserName,
		DisplayName: name,
	}
}

// Markup builds an inline keyboard, or nil when there are no buttons.
func Markup(rows [][]router.Button) *tgbotapi.InlineKeyboardMarkup {
	var out [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		out = append(out, buttons)
	}
	if len(out) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &markup
}
