package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
)

func setupTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sendAt(hh, mm int) *int {
	v := hh*60 + mm
	return &v
}

func TestCreateAndGetRoundTripsRule(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, &domain.Notification{
		Name:        "standup",
		TemplateRef: "standup",
		Recipients:  []string{"-1001", "all"},
		Rule: domain.Rule{
			Kind:     domain.KindWeekdays,
			WeekDays: []int{1, 3, 5},
			SendTime: sendAt(9, 30),
			Anchor:   &domain.Date{Year: 2025, Month: time.March, Day: 3},
		},
		IsActive: true,
	})
	require.NoError(t, err)

	n, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "standup", n.Name)
	assert.Equal(t, []string{"-1001", "all"}, n.Recipients)
	assert.Equal(t, domain.KindWeekdays, n.Rule.Kind)
	assert.Equal(t, []int{1, 3, 5}, n.Rule.WeekDays)
	require.NotNil(t, n.Rule.SendTime)
	assert.Equal(t, 570, *n.Rule.SendTime)
	require.NotNil(t, n.Rule.Anchor)
	assert.Equal(t, "2025-03-03", n.Rule.Anchor.String())
	assert.Equal(t, domain.StatusActive, n.Status)
	assert.True(t, n.IsActive)
	assert.Nil(t, n.LastFiredAt)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	repo := setupTestRepo(t)
	_, err := repo.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListActiveFiltersInactiveAndArchived(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	daily := domain.Rule{Kind: domain.KindDaily, Interval: 1}
	activeID, err := repo.Create(ctx, &domain.Notification{Name: "a", Rule: daily, IsActive: true})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &domain.Notification{Name: "paused", Rule: daily, IsActive: false})
	require.NoError(t, err)
	archivedID, err := repo.Create(ctx, &domain.Notification{Name: "old", Rule: daily, IsActive: true})
	require.NoError(t, err)
	require.NoError(t, repo.SetStatus(ctx, archivedID, domain.StatusArchived))

	list, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, activeID, list[0].ID)
}

func TestUpdateAppliesOnlyGivenFields(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, &domain.Notification{
		Name: "once", Rule: domain.Rule{Kind: domain.KindOnce}, IsActive: true,
	})
	require.NoError(t, err)

	fired := time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC)
	next := fired.Add(24 * time.Hour)
	inactive := false

	n, err := repo.Update(ctx, id, domain.Update{LastFiredAt: &fired, NextFireAt: &next, IsActive: &inactive})
	require.NoError(t, err)
	require.NotNil(t, n.LastFiredAt)
	assert.True(t, fired.Equal(*n.LastFiredAt))
	require.NotNil(t, n.NextFireAt)
	assert.True(t, next.Equal(*n.NextFireAt))
	assert.False(t, n.IsActive)

	n, err = repo.Update(ctx, id, domain.Update{ClearNext: true})
	require.NoError(t, err)
	assert.Nil(t, n.NextFireAt)
	require.NotNil(t, n.LastFiredAt, "untouched fields stay")
	assert.False(t, n.IsActive)

	_, err = repo.Update(ctx, 999, domain.Update{ClearNext: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTemplates(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetTemplate(ctx, "birthdays")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.UpsertTemplate(ctx, "birthdays", "v1"))
	require.NoError(t, repo.UpsertTemplate(ctx, "birthdays", "Today: {birthdays}"))

	body, err := repo.GetTemplate(ctx, "birthdays")
	require.NoError(t, err)
	assert.Equal(t, "Today: {birthdays}", body)
}

func TestChats(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertChat(ctx, &domain.Chat{ID: 10, Title: "team", Enabled: true}))
	require.NoError(t, repo.UpsertChat(ctx, &domain.Chat{ID: 20, Title: "hr", Enabled: true}))
	require.NoError(t, repo.SetChatEnabled(ctx, 20, false))
	assert.ErrorIs(t, repo.SetChatEnabled(ctx, 30, false), ErrNotFound)

	chats, err := repo.ListEnabledChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, int64(10), chats[0].ID)
	assert.Equal(t, "team", chats[0].Title)
}

func TestMigrationsAreRecorded(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	// second run is a no-op
	require.NoError(t, RunMigrations(ctx, repo.db))

	var count int
	require.NoError(t, repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCreateRejectsInvalidRule(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.Create(context.Background(), &domain.Notification{
		Name:     "bad",
		Rule:     domain.Rule{Kind: domain.KindWeekdays, WeekDays: []int{9}},
		IsActive: true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRule)

	list, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListActiveKeepsUndecodableRows(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	goodID, err := repo.Create(ctx, &domain.Notification{
		Name: "good", Rule: domain.Rule{Kind: domain.KindDaily, Interval: 1}, IsActive: true,
	})
	require.NoError(t, err)
	badID, err := repo.Create(ctx, &domain.Notification{
		Name: "bad", Rule: domain.Rule{Kind: domain.KindWeekdays, WeekDays: []int{1}}, IsActive: true,
	})
	require.NoError(t, err)
	_, err = repo.db.ExecContext(ctx, `UPDATE notifications SET week_days = '9', anchor_date = 'soon' WHERE id = ?`, badID)
	require.NoError(t, err)

	list, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, goodID, list[0].ID)
	assert.NoError(t, list[0].Rule.Validate())

	assert.Equal(t, badID, list[1].ID)
	require.NotNil(t, list[1].Rule.Invalid)
	assert.Equal(t, "WeekDays", list[1].Rule.Invalid.Field)
	assert.ErrorIs(t, list[1].Rule.Validate(), domain.ErrInvalidRule)

	n, err := repo.Get(ctx, badID)
	require.NoError(t, err)
	assert.NotNil(t, n.Rule.Invalid)
}
