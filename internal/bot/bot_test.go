package bot

import (
	"testing"

	"booking-bot/internal/router"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = &tgbotapi.User{ID: 100, UserName: "alice", FirstName: "Alice", LastName: "Smith"}

func privateChat(id int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: id, Type: "private"}
}

func TestEventFromCommand(t *testing.T) {
	ev, ok := EventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From:     alice,
		Chat:     privateChat(100),
		Text:     "/Book@booking_bot",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 17}},
	}})
	require.True(t, ok)

	assert.Equal(t, router.EventCommand, ev.Kind)
	assert.Equal(t, "book", ev.Payload)
	assert.Equal(t, int64(100), ev.UserID)
	assert.Equal(t, "alice", ev.Handle)
	assert.Equal(t, "Alice Smith", ev.DisplayName)
}

func TestEventFromText(t *testing.T) {
	ev, ok := EventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: alice,
		Chat: privateChat(100),
		Text: "2025-04-20",
	}})
	require.True(t, ok)
	assert.Equal(t, router.EventText, ev.Kind)
	assert.Equal(t, "2025-04-20", ev.Payload)
}

func TestEventFromCallback(t *testing.T) {
	ev, ok := EventFromUpdate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    alice,
		Message: &tgbotapi.Message{Chat: privateChat(555)},
		Data:    "svc:3",
	}})
	require.True(t, ok)
	assert.Equal(t, router.EventButton, ev.Kind)
	assert.Equal(t, "svc:3", ev.Payload)
	assert.Equal(t, int64(555), ev.ChatID)
}

func TestGroupAndEmptyUpdatesAreIgnored(t *testing.T) {
	_, ok := EventFromUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: alice,
		Chat: &tgbotapi.Chat{ID: -1, Type: "group"},
		Text: "hi",
	}})
	assert.False(t, ok)

	_, ok = EventFromUpdate(tgbotapi.Update{})
	assert.False(t, ok)
}

func TestMarkup(t *testing.T) {
	assert.Nil(t, Markup(nil))
	assert.Nil(t, Markup([][]router.Button{{}}))

	m := Markup([][]router.Button{
		{{Text: "Yes", Data: "confirm:yes"}, {Text: "No", Data: "cancel"}},
		{{Text: "Back", Data: "menu"}},
	})
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Equal(t, "Yes", m.InlineKeyboard[0][0].Text)
	require.NotNil(t, m.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "cancel", *m.InlineKeyboard[0][1].CallbackData)
}
