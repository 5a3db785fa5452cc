package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/deskhand/internal/types"
)

const maxTelegramMessage = 4096

// botAPI is the part of tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Options wires the command handlers.
type Options struct {
	// AdminChatID restricts commands to one chat when non-zero.
	AdminChatID int64
	// Status renders the /status reply.
	Status func(ctx context.Context) string
	// Pending lists the pending task files for /pending.
	Pending func() ([]string, error)
	Logger  *slog.Logger
}

// Adapter delivers notifications to Telegram chats and answers a few
// operator commands.
type Adapter struct {
	bot    botAPI
	opts   Options
	logger *slog.Logger
}

// New creates a Telegram adapter.
func New(token string, opts Options) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return newAdapter(bot, opts), nil
}

func newAdapter(bot botAPI, opts Options) *Adapter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{bot: bot, opts: opts, logger: opts.Logger.With("component", "telegram")}
}

// Start begins long-polling for Telegram updates.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if a.opts.AdminChatID != 0 && chatID != a.opts.AdminChatID {
		a.logger.Warn("ignoring message from unknown chat", "chat_id", chatID)
		return
	}
	if !msg.IsCommand() {
		a.sendResponse(chatID, "I only understand commands. Available: /status, /pending")
		return
	}

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, fmt.Sprintf("Hello! Notifications for this chat go to telegram:%d", chatID))

	case "status":
		if a.opts.Status == nil {
			a.sendResponse(chatID, "Status is not available.")
			return
		}
		a.sendResponse(chatID, a.opts.Status(ctx))

	case "pending":
		if a.opts.Pending == nil {
			a.sendResponse(chatID, "The vault is not available.")
			return
		}
		names, err := a.opts.Pending()
		if err != nil {
			a.logger.Error("list pending failed", "error", err)
			a.sendResponse(chatID, "Error listing pending tasks.")
			return
		}
		if len(names) == 0 {
			a.sendResponse(chatID, "No pending tasks.")
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("%d pending:\n%s", len(names), strings.Join(names, "\n")))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /status, /pending")
	}
}

// Deliver sends message to the chat addressed by a telegram:<chat id>
// forward target.
func (a *Adapter) Deliver(_ context.Context, target types.ForwardTarget, message string) error {
	chatID, err := strconv.ParseInt(target.Address(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", target.Address(), err)
	}
	var errs []error
	for _, part := range splitMessage(message) {
		if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	parts := splitMessage(text)
	for _, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				a.logger.Error("send message failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// splitMessage cuts text into Telegram-sized parts on rune boundaries.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end >= len(text) {
			end = len(text)
		} else {
			for end > 0 && !utf8.RuneStart(text[end]) {
				end--
			}
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
