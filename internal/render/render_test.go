package render

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AlexanderKara/orgportal-sub002/internal/store"
)

type memTemplates map[string]string

func (m memTemplates) GetTemplate(_ context.Context, name string) (string, error) {
	if body, ok := m[name]; ok {
		return body, nil
	}
	return "", fmt.Errorf("template %q: %w", name, store.ErrNotFound)
}

type brokenTemplates struct{}

func (brokenTemplates) GetTemplate(context.Context, string) (string, error) {
	return "", errors.New("database is locked")
}

func testContext() Context {
	return Context{
		Notification: "Birthdays",
		Target:       "-100500",
		ChatTitle:    "Office",
		Now:          time.Date(2025, time.May, 5, 9, 0, 0, 0, time.UTC),
	}
}

func TestRenderSubstitutesBuiltinAndSourceTags(t *testing.T) {
	tpl := memTemplates{"bday": "{weekday} {date} {time} in {chat_title}: {birthdays} {unknown}"}
	birthdays := TagFunc(func(context.Context, Context) (map[string]string, error) {
		return map[string]string{"birthdays": "Anna, Oleg"}, nil
	})
	r := New(tpl, zap.NewNop(), birthdays)

	got, err := r.Render(context.Background(), "bday", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Monday 05.05.2025 09:00 in Office: Anna, Oleg {unknown}", got)
}

func TestRenderFallsBackToNotificationName(t *testing.T) {
	r := New(memTemplates{}, zap.NewNop())

	got, err := r.Render(context.Background(), "missing", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Birthdays", got)
}

func TestRenderSkipsFailingTagSource(t *testing.T) {
	failing := TagFunc(func(context.Context, Context) (map[string]string, error) {
		return nil, errors.New("employees service down")
	})
	r := New(memTemplates{"v": "Away: {vacations}"}, zap.NewNop(), failing)

	got, err := r.Render(context.Background(), "v", testContext())
	require.NoError(t, err)
	assert.Equal(t, "Away: {vacations}", got)
}

func TestRenderPropagatesStoreErrors(t *testing.T) {
	r := New(brokenTemplates{}, zap.NewNop())
	_, err := r.Render(context.Background(), "x", testContext())
	assert.Error(t, err)
}
