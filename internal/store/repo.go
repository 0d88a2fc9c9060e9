package store

import (
	"context"
	"errors"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Repo defines storage operations for notifications, templates and chats.
type Repo interface {
	ListActive(ctx context.Context) ([]domain.Notification, error)
	Get(ctx context.Context, id int64) (*domain.Notification, error)
	Update(ctx context.Context, id int64, u domain.Update) (*domain.Notification, error)
	Create(ctx context.Context, n *domain.Notification) (int64, error)
	SetStatus(ctx context.Context, id int64, status domain.Status) error

	GetTemplate(ctx context.Context, name string) (string, error)
	UpsertTemplate(ctx context.Context, name, body string) error

	UpsertChat(ctx context.Context, c *domain.Chat) error
	SetChatEnabled(ctx context.Context, chatID int64, enabled bool) error
	ListEnabledChats(ctx context.Context) ([]domain.Chat, error)

	Close() error
}
