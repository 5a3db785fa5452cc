package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	sent    []tgbotapi.MessageConfig
	failAll bool
	failMD  bool
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if f.failAll || (f.failMD && msg.ParseMode == "Markdown") {
		return tgbotapi.Message{}, errors.New("bad request")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

func command(chatID int64, text string) *tgbotapi.Message {
	name, _, _ := strings.Cut(text, " ")
	return &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}
}

func newTestAdapter(bot *fakeBot, opts Options) *Adapter {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return newAdapter(bot, opts)
}

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 || parts[0] != short {
		t.Fatalf("unexpected parts %q", parts)
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	long := "a" + strings.Repeat("é", 3000)
	parts := splitMessage(long)
	if strings.Join(parts, "") != long {
		t.Fatal("parts must reassemble the input")
	}
	for i, p := range parts {
		if !utf8.ValidString(p) {
			t.Errorf("part %d is not valid UTF-8", i)
		}
	}
}

func TestStatusCommand(t *testing.T) {
	bot := &fakeBot{}
	a := newTestAdapter(bot, Options{
		Status: func(context.Context) string { return "whatsapp: 3 polls" },
	})
	a.handleMessage(context.Background(), command(42, "/status"))

	if len(bot.sent) != 1 || bot.sent[0].Text != "whatsapp: 3 polls" || bot.sent[0].ChatID != 42 {
		t.Errorf("unexpected sends %+v", bot.sent)
	}
}

func TestPendingCommand(t *testing.T) {
	bot := &fakeBot{}
	a := newTestAdapter(bot, Options{
		Pending: func() ([]string, error) { return []string{"EMAIL_a_1.md", "WHATSAPP_b_2.md"}, nil },
	})
	a.handleMessage(context.Background(), command(42, "/pending"))
	if len(bot.sent) != 1 || !strings.HasPrefix(bot.sent[0].Text, "2 pending:\nEMAIL_a_1.md") {
		t.Errorf("unexpected sends %+v", bot.sent)
	}

	bot.sent = nil
	a = newTestAdapter(bot, Options{Pending: func() ([]string, error) { return nil, nil }})
	a.handleMessage(context.Background(), command(42, "/pending"))
	if len(bot.sent) != 1 || bot.sent[0].Text != "No pending tasks." {
		t.Errorf("unexpected sends %+v", bot.sent)
	}
}

func TestAdminChatFilter(t *testing.T) {
	bot := &fakeBot{}
	a := newTestAdapter(bot, Options{AdminChatID: 7, Status: func(context.Context) string { return "ok" }})
	a.handleMessage(context.Background(), command(42, "/status"))
	if len(bot.sent) != 0 {
		t.Errorf("messages from other chats must be ignored, got %+v", bot.sent)
	}
	a.handleMessage(context.Background(), command(7, "/status"))
	if len(bot.sent) != 1 {
		t.Errorf("expected a reply to the admin chat, got %+v", bot.sent)
	}
}

func TestMarkdownFallback(t *testing.T) {
	bot := &fakeBot{failMD: true}
	a := newTestAdapter(bot, Options{})
	a.handleMessage(context.Background(), command(1, "/nope"))
	if len(bot.sent) != 1 || bot.sent[0].ParseMode != "" {
		t.Errorf("expected plain-text retry, got %+v", bot.sent)
	}
}

func TestDeliver(t *testing.T) {
	bot := &fakeBot{}
	a := newTestAdapter(bot, Options{})

	if err := a.Deliver(context.Background(), "telegram:12345", "New whatsapp from Alice"); err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 12345 || bot.sent[0].ParseMode != "" {
		t.Errorf("unexpected sends %+v", bot.sent)
	}

	if err := a.Deliver(context.Background(), "telegram:abc", "x"); err == nil {
		t.Error("expected error for non-numeric chat id")
	}

	bot.failAll = true
	if err := a.Deliver(context.Background(), "telegram:1", "x"); err == nil {
		t.Error("expected send error to surface")
	}
}
