package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
// The path ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Notifications ---

// Create inserts a notification and returns its ID.
func (r *SQLiteRepo) Create(ctx context.Context, n *domain.Notification) (int64, error) {
	if n == nil {
		return 0, errors.New("nil notification")
	}
	rule := n.Rule
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	if err := rule.Validate(); err != nil {
		return 0, fmt.Errorf("create notification: %w", err)
	}
	recipients, err := json.Marshal(n.Recipients)
	if err != nil {
		return 0, err
	}
	status := n.Status
	if status == "" {
		status = domain.StatusActive
	}
	now := time.Now().UTC().Unix()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (
			name, template_ref, recipients, kind, interval_n, week_days, month_day,
			send_time_m, anchor_date, is_active, status, last_fired_at, next_fire_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Name, n.TemplateRef, string(recipients), string(rule.Kind), rule.Interval,
		domain.FormatWeekDays(rule.WeekDays), rule.MonthDay,
		toNullMinutes(rule.SendTime), toNullDate(rule.Anchor),
		boolToInt(n.IsActive), string(status),
		toNullInt64(n.LastFiredAt), toNullInt64(n.NextFireAt),
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("create notification: %w", err)
	}
	return res.LastInsertId()
}

// ListActive returns every notification that takes part in polling.
func (r *SQLiteRepo) ListActive(ctx context.Context) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+notificationColumns+`
		FROM notifications
		WHERE is_active = 1 AND status = ?
		ORDER BY id ASC`,
		string(domain.StatusActive),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Get returns a notification by ID or ErrNotFound.
func (r *SQLiteRepo) Get(ctx context.Context, id int64) (*domain.Notification, error) {
	return getNotification(ctx, r.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getNotification(ctx context.Context, q queryRower, id int64) (*domain.Notification, error) {
	row := q.QueryRowContext(ctx, `SELECT`+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return n, err
}

// Update applies the non-nil fields of u in one transaction and returns the stored row.
func (r *SQLiteRepo) Update(ctx context.Context, id int64, u domain.Update) (*domain.Notification, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Unix()}
	if u.LastFiredAt != nil {
		sets = append(sets, "last_fired_at = ?")
		args = append(args, toNullInt64(u.LastFiredAt))
	}
	switch {
	case u.ClearNext:
		sets = append(sets, "next_fire_at = NULL")
	case u.NextFireAt != nil:
		sets = append(sets, "next_fire_at = ?")
		args = append(args, toNullInt64(u.NextFireAt))
	}
	if u.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolToInt(*u.IsActive))
	}
	args = append(args, id)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE notifications SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update notification %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	n, err := getNotification(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return n, nil
}

// SetStatus moves a notification between active, archived and deleted.
func (r *SQLiteRepo) SetStatus(ctx context.Context, id int64, status domain.Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = ?, updated_at = ?
		WHERE id = ?`,
		string(status), time.Now().UTC().Unix(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Templates ---

// GetTemplate returns a template body by name or ErrNotFound.
func (r *SQLiteRepo) GetTemplate(ctx context.Context, name string) (string, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM templates WHERE name = ?`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	return body, err
}

// UpsertTemplate creates or replaces a template body.
func (r *SQLiteRepo) UpsertTemplate(ctx context.Context, name, body string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			body       = excluded.body,
			updated_at = excluded.updated_at`,
		name, body, time.Now().UTC().Unix(),
	)
	return err
}

// --- Chats ---

// UpsertChat registers a chat or refreshes its title and enabled flag.
func (r *SQLiteRepo) UpsertChat(ctx context.Context, c *domain.Chat) error {
	if c == nil {
		return errors.New("nil chat")
	}
	created := c.CreatedAt.UTC().Unix()
	if c.CreatedAt.IsZero() {
		created = time.Now().UTC().Unix()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chats (chat_id, title, enabled, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			title   = excluded.title,
			enabled = excluded.enabled`,
		c.ID, c.Title, boolToInt(c.Enabled), created,
	)
	return err
}

// SetChatEnabled toggles the enabled flag for a chat.
func (r *SQLiteRepo) SetChatEnabled(ctx context.Context, chatID int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chats
		SET enabled = ?
		WHERE chat_id = ?`,
		boolToInt(enabled), chatID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("chat %d: %w", chatID, ErrNotFound)
	}
	return nil
}

// ListEnabledChats returns the chats that receive "all" notifications.
func (r *SQLiteRepo) ListEnabledChats(ctx context.Context) ([]domain.Chat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, title, enabled, created_at
		FROM chats
		WHERE enabled = 1
		ORDER BY chat_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Chat
	for rows.Next() {
		var (
			c          domain.Chat
			enabledInt int
			createdAt  int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &enabledInt, &createdAt); err != nil {
			return nil, err
		}
		c.Enabled = enabledInt != 0
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
