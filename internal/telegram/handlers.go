package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
	"github.com/AlexanderKara/orgportal-sub002/internal/store"
)

// statusListLimit caps the notifications listed in /status.
const statusListLimit = 10

func (r *Router) sendText(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("send reply failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (r *Router) sendWithMenu(chatID int64, text string, enabled bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard(enabled)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send reply failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

// chatTitle picks a display name: group title, then @username, then first name.
func chatTitle(c *tgbotapi.Chat) string {
	switch {
	case c.Title != "":
		return c.Title
	case c.UserName != "":
		return "@" + c.UserName
	default:
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
}

// handleStart registers the chat as a recipient of "all" notifications.
func (r *Router) handleStart(ctx context.Context, c *tgbotapi.Chat) {
	chat := &domain.Chat{
		ID:        c.ID,
		Title:     chatTitle(c),
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.repo.UpsertChat(ctx, chat); err != nil {
		r.log.Error("UpsertChat failed", zap.Int64("chatID", c.ID), zap.Error(err))
		r.sendText(c.ID, errRegisterText)
		return
	}
	r.log.Info("chat registered", zap.Int64("chatID", c.ID), zap.String("title", chat.Title))
	r.sendWithMenu(c.ID, startText, true)
}

// handleStop takes the chat out of "all" deliveries. Explicit recipients
// naming this chat still reach it.
func (r *Router) handleStop(ctx context.Context, chatID int64) {
	err := r.repo.SetChatEnabled(ctx, chatID, false)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.sendWithMenu(chatID, notRegisteredText, false)
		return
	case err != nil:
		r.log.Error("SetChatEnabled failed", zap.Int64("chatID", chatID), zap.Error(err))
		r.sendText(chatID, errStopText)
		return
	}
	r.log.Info("chat disabled", zap.Int64("chatID", chatID))
	r.sendWithMenu(chatID, stoppedText, false)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	list, err := r.repo.ListActive(ctx)
	if err != nil {
		r.log.Error("ListActive failed", zap.Error(err))
		r.sendText(chatID, errStatusText)
		return
	}
	r.sendText(chatID, r.statusBody(list))
}

// statusBody lists active notifications ordered as stored and names the
// soonest known send.
func (r *Router) statusBody(list []domain.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, statusFmt, len(list), r.localize(soonest(list)))

	for i, n := range list {
		if i == statusListLimit {
			fmt.Fprintf(&b, "… and %d more\n", len(list)-statusListLimit)
			break
		}
		fmt.Fprintf(&b, "• %s: %s\n", n.Name, n.Rule)
	}
	return b.String()
}

func (r *Router) localize(t *time.Time) string {
	if t == nil {
		return "—"
	}
	s, err := domain.LocalizeTime(*t, r.tz)
	if err != nil {
		return t.UTC().Format("2006-01-02 15:04") + " UTC"
	}
	return s
}

func soonest(list []domain.Notification) *time.Time {
	var best *time.Time
	for _, n := range list {
		if n.NextFireAt != nil && (best == nil || n.NextFireAt.Before(*best)) {
			best = n.NextFireAt
		}
	}
	return best
}
