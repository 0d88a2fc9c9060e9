package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
	"github.com/AlexanderKara/orgportal-sub002/internal/render"
	"github.com/AlexanderKara/orgportal-sub002/internal/store"
)

// memStore is an in-memory Store with switchable failures.
type memStore struct {
	mu        sync.Mutex
	rows      map[int64]domain.Notification
	listErr   error
	updateErr error
	listCalls int
	updates   int
	// afterList runs once the snapshot is taken, before ListActive returns.
	afterList func(m *memStore)
}

func newMemStore(rows ...domain.Notification) *memStore {
	m := &memStore{rows: make(map[int64]domain.Notification)}
	for _, r := range rows {
		if r.Status == "" {
			r.Status = domain.StatusActive
		}
		m.rows[r.ID] = r
	}
	return m
}

func (m *memStore) ListActive(_ context.Context) ([]domain.Notification, error) {
	m.mu.Lock()
	m.listCalls++
	if m.listErr != nil {
		m.mu.Unlock()
		return nil, m.listErr
	}
	var out []domain.Notification
	for _, r := range m.rows {
		if r.Schedulable() {
			out = append(out, r)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if m.afterList != nil {
		m.afterList(m)
	}
	return out, nil
}

func (m *memStore) Get(_ context.Context, id int64) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("notification %d: %w", id, store.ErrNotFound)
	}
	return &r, nil
}

func (m *memStore) Update(_ context.Context, id int64, u domain.Update) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("notification %d: %w", id, store.ErrNotFound)
	}
	m.updates++
	if u.LastFiredAt != nil {
		t := *u.LastFiredAt
		r.LastFiredAt = &t
	}
	switch {
	case u.ClearNext:
		r.NextFireAt = nil
	case u.NextFireAt != nil:
		t := *u.NextFireAt
		r.NextFireAt = &t
	}
	if u.IsActive != nil {
		r.IsActive = *u.IsActive
	}
	m.rows[id] = r
	return &r, nil
}

func (m *memStore) mutate(id int64, f func(n *domain.Notification)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rows[id]
	f(&r)
	m.rows[id] = r
}

func (m *memStore) row(id int64) domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

type memChats struct {
	chats []domain.Chat
	err   error
}

func (c *memChats) ListEnabledChats(context.Context) ([]domain.Chat, error) {
	return c.chats, c.err
}

// echoRenderer renders "<template>|<target>|<chat title>".
type echoRenderer struct {
	failFor string
}

func (r *echoRenderer) Render(_ context.Context, templateRef string, rc render.Context) (string, error) {
	if rc.Target == r.failFor {
		return "", errors.New("template broken")
	}
	return templateRef + "|" + rc.Target + "|" + rc.ChatTitle, nil
}

// fakeChannel records deliveries; optional hooks block or fail targets.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []string
	fail    map[string]error
	started chan struct{}
	release chan struct{}
}

func (c *fakeChannel) Send(_ context.Context, target, text string) error {
	if c.started != nil {
		c.started <- struct{}{}
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[target]; err != nil {
		return err
	}
	c.sent = append(c.sent, target+"="+text)
	return nil
}

func (c *fakeChannel) deliveries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func minutesOf(hh, mm int) *int {
	v := hh*60 + mm
	return &v
}
