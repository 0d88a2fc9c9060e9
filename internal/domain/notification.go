package domain

import "time"

// Status is the lifecycle state of a notification owned by the store.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// RecipientAll expands to every enabled registered chat.
const RecipientAll = "all"

// Notification is a scheduled message and its delivery state.
type Notification struct {
	ID          int64
	Name        string
	TemplateRef string
	Recipients  []string // Telegram chat IDs, shoutrrr URLs or RecipientAll
	Rule        Rule
	IsActive    bool
	Status      Status
	LastFiredAt *time.Time // UTC, nullable
	NextFireAt  *time.Time // UTC, nullable; informational
	CreatedAt   time.Time  // UTC
	UpdatedAt   time.Time  // UTC
}

// Schedulable reports whether the poller should look at n at all.
func (n *Notification) Schedulable() bool {
	return n.IsActive && n.Status == StatusActive
}

// Update is a partial write of the engine-owned fields; nil fields are left as is.
type Update struct {
	LastFiredAt *time.Time
	NextFireAt  *time.Time
	ClearNext   bool
	IsActive    *bool
}

// Chat is a Telegram chat that registered with the bot.
type Chat struct {
	ID        int64
	Title     string
	Enabled   bool
	CreatedAt time.Time
}
