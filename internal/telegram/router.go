package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
)

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Repo is the storage the router needs: chat registration plus a read of
// the active notifications for /status.
type Repo interface {
	UpsertChat(ctx context.Context, c *domain.Chat) error
	SetChatEnabled(ctx context.Context, chatID int64, enabled bool) error
	ListActive(ctx context.Context) ([]domain.Notification, error)
}

// Router wires Telegram updates to handlers.
type Router struct {
	bot  Bot
	log  *zap.Logger
	repo Repo
	tz   string
}

// NewRouter creates a new Telegram router. tz is used to display send times.
func NewRouter(bot Bot, log *zap.Logger, repo Repo, tz string) *Router {
	return &Router{
		bot:  bot,
		log:  log,
		repo: repo,
		tz:   tz,
	}
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil || upd.Message.Chat == nil {
		return
	}
	msg := upd.Message
	text := strings.TrimSpace(msg.Text)

	switch command(text) {
	case "/start":
		r.handleStart(ctx, msg.Chat)
	case "/stop":
		r.handleStop(ctx, msg.Chat.ID)
	case "/status":
		r.handleStatus(ctx, msg.Chat.ID)
	case "/help":
		r.sendText(msg.Chat.ID, helpText)
	default:
		// Free-form text is not a command; ignore it.
	}
}

// command strips arguments and a "@botname" suffix from a command.
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}

// SendMessage sends a plain text message to the given chat.
// This makes Router satisfy delivery.Sender.
func (r *Router) SendMessage(chatID int64, text string) error {
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
