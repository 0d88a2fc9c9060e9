// Package delivery sends rendered notification text to recipients.
//
// A recipient target is either a numeric Telegram chat ID or a shoutrrr
// service URL such as "discord://token@channel".
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
)

var ErrUnsupportedTarget = errors.New("unsupported delivery target")

// Channel delivers one message to one target.
type Channel interface {
	Send(ctx context.Context, target, text string) error
}

// Sender is the minimal Telegram capability Telegram needs.
// telegram.Router implements it.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// ChatID parses a Telegram chat target.
func ChatID(target string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	return id, err == nil
}

// IsURL reports whether target is a shoutrrr service URL.
func IsURL(target string) bool {
	return strings.Contains(target, "://")
}

// Telegram delivers to chat IDs through the bot.
type Telegram struct{ sender Sender }

func NewTelegram(sender Sender) *Telegram { return &Telegram{sender: sender} }

func (t *Telegram) Send(ctx context.Context, target, text string) error {
	chatID, ok := ChatID(target)
	if !ok {
		return fmt.Errorf("%w: %q is not a chat id", ErrUnsupportedTarget, target)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.sender.SendMessage(chatID, text)
}

// Shoutrrr delivers to any service URL shoutrrr understands.
type Shoutrrr struct {
	send func(url, message string) error
}

func NewShoutrrr() *Shoutrrr { return &Shoutrrr{send: shoutrrr.Send} }

func (s *Shoutrrr) Send(ctx context.Context, target, text string) error {
	if !IsURL(target) {
		return fmt.Errorf("%w: %q is not a service url", ErrUnsupportedTarget, target)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(target, text)
}

// Mux picks the channel by target form. A nil channel rejects its targets.
type Mux struct {
	Telegram Channel
	URL      Channel
}

func (m *Mux) Send(ctx context.Context, target, text string) error {
	var ch Channel
	switch {
	case IsURL(target):
		ch = m.URL
	default:
		if _, ok := ChatID(target); ok {
			ch = m.Telegram
		}
	}
	if ch == nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedTarget, target)
	}
	return ch.Send(ctx, target, text)
}
