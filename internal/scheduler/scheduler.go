package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AlexanderKara/orgportal-sub002/internal/domain"
	"github.com/AlexanderKara/orgportal-sub002/internal/render"
	"github.com/AlexanderKara/orgportal-sub002/internal/store"
)

// Store is the slice of the notification store the scheduler needs.
type Store interface {
	ListActive(ctx context.Context) ([]domain.Notification, error)
	Get(ctx context.Context, id int64) (*domain.Notification, error)
	Update(ctx context.Context, id int64, u domain.Update) (*domain.Notification, error)
}

// ChatDirectory resolves the "all" recipient.
type ChatDirectory interface {
	ListEnabledChats(ctx context.Context) ([]domain.Chat, error)
}

// Renderer produces the message text for one recipient.
type Renderer interface {
	Render(ctx context.Context, templateRef string, rc render.Context) (string, error)
}

// Channel delivers one message to one target.
type Channel interface {
	Send(ctx context.Context, target, text string) error
}

// Options tunes a Scheduler. Zero values pick defaults.
type Options struct {
	Location *time.Location // calendar math zone, default UTC
	Workers  int            // records processed concurrently per tick, default 1
	Clock    func() time.Time
}

// Scheduler evaluates active notifications and fires the due ones.
type Scheduler struct {
	store    Store
	chats    ChatDirectory
	renderer Renderer
	channel  Channel
	log      *zap.Logger

	loc     *time.Location
	workers int
	clock   func() time.Time

	ticking atomic.Bool
	locks   *keyedMutex
}

// New creates a new Scheduler.
func New(st Store, chats ChatDirectory, renderer Renderer, channel Channel, log *zap.Logger, opts Options) *Scheduler {
	s := &Scheduler{
		store:    st,
		chats:    chats,
		renderer: renderer,
		channel:  channel,
		log:      log,
		loc:      opts.Location,
		workers:  opts.Workers,
		clock:    opts.Clock,
		locks:    newKeyedMutex(),
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// TickReport summarizes one pass over the active notifications.
type TickReport struct {
	ID         string
	StartedAt  time.Time
	Candidates int
	// Results holds one entry per notification that fired, expired or failed.
	Results []FireResult
}

// FireResult is the outcome for one notification.
type FireResult struct {
	NotificationID int64
	Name           string
	Fired          bool
	Expired        bool
	Deactivated    bool
	Targets        int
	Delivered      int
	FiredAt        *time.Time
	NextFireAt     *time.Time
	Errors         []error
}

// Err joins the per-target and per-record errors, nil when there were none.
func (r FireResult) Err() error { return errors.Join(r.Errors...) }

// Tick runs one scheduling cycle at now: list active notifications, fire the
// due ones and persist their new state. Only a failed listing aborts the
// cycle; problems with one notification end up in its FireResult.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickReport, error) {
	if !s.ticking.CompareAndSwap(false, true) {
		return TickReport{}, ErrTickInProgress
	}
	defer s.ticking.Store(false)

	report := TickReport{ID: uuid.NewString(), StartedAt: now}
	log := s.log.With(zap.String("tickID", report.ID))

	list, err := s.store.ListActive(ctx)
	if err != nil {
		log.Error("ListActive failed", zap.Error(err))
		return report, &StoreError{Op: "list active", Err: err}
	}
	report.Candidates = len(list)

	results := make([]*FireResult, len(list))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range list {
		g.Go(func() error {
			results[i] = s.process(ctx, log, list[i], now)
			return nil
		})
	}
	_ = g.Wait()

	fired, failed := 0, 0
	for _, r := range results {
		if r == nil {
			continue
		}
		report.Results = append(report.Results, *r)
		if r.Fired {
			fired++
		}
		if len(r.Errors) > 0 {
			failed++
		}
	}

	lvl := zap.DebugLevel
	if fired > 0 || failed > 0 {
		lvl = zap.InfoLevel
	}
	log.Log(lvl, "tick done",
		zap.Int("candidates", report.Candidates),
		zap.Int("fired", fired),
		zap.Int("failed", failed),
	)
	return report, nil
}

// process evaluates one listed notification and fires it when due.
func (s *Scheduler) process(ctx context.Context, log *zap.Logger, n domain.Notification, now time.Time) *FireResult {
	log = log.With(zap.Int64("notificationID", n.ID))
	local := now.In(s.loc)

	dec, err := domain.Evaluate(n.Rule, n.LastFiredAt, local)
	if err != nil {
		log.Warn("invalid recurrence rule", zap.Error(err))
		return &FireResult{NotificationID: n.ID, Name: n.Name, Errors: []error{err}}
	}
	if dec.Expired {
		log.Warn("one-shot notification date passed without a send",
			zap.Stringer("date", n.Rule.Anchor))
		if n.NextFireAt != nil {
			s.refreshNext(ctx, log, n.ID, local)
		}
		return &FireResult{NotificationID: n.ID, Name: n.Name, Expired: true}
	}
	if !dec.Due {
		if !sameInstant(n.NextFireAt, dec.Next) {
			s.refreshNext(ctx, log, n.ID, local)
		}
		return nil
	}

	unlock := s.locks.Lock(n.ID)
	defer unlock()

	// A manual send may have landed after ListActive; decide again on fresh state.
	cur, err := s.store.Get(ctx, n.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		log.Error("reload failed", zap.Error(err))
		return &FireResult{NotificationID: n.ID, Name: n.Name, Errors: []error{&StoreError{Op: "get", Err: err}}}
	}
	if !cur.Schedulable() {
		return nil
	}
	if dec, err = domain.Evaluate(cur.Rule, cur.LastFiredAt, local); err != nil || !dec.Due {
		return nil
	}

	res := s.fire(ctx, log, cur, now)
	return &res
}

// FireNow sends one notification immediately, skipping the due check.
// It returns ErrNotFound when the notification does not exist or is not active.
func (s *Scheduler) FireNow(ctx context.Context, id int64) (FireResult, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	n, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return FireResult{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return FireResult{}, &StoreError{Op: "get", Err: err}
	}
	if n.Status != domain.StatusActive {
		return FireResult{}, fmt.Errorf("%w: %d is %s", ErrNotFound, id, n.Status)
	}
	if err := n.Rule.Validate(); err != nil {
		return FireResult{}, err
	}

	log := s.log.With(zap.Int64("notificationID", id), zap.Bool("manual", true))
	return s.fire(ctx, log, n, s.clock()), nil
}

// fire renders and delivers to every recipient, then records the send.
// Callers hold the notification's lock.
func (s *Scheduler) fire(ctx context.Context, log *zap.Logger, n *domain.Notification, now time.Time) FireResult {
	res := FireResult{NotificationID: n.ID, Name: n.Name}
	local := now.In(s.loc)

	targets, err := s.resolveRecipients(ctx, n.Recipients)
	if err != nil {
		// nothing was sent, so leave the state alone and retry next tick
		log.Error("resolve recipients failed", zap.Error(err))
		res.Errors = append(res.Errors, fmt.Errorf("resolve recipients: %w", err))
		return res
	}
	res.Targets = len(targets)
	if len(targets) == 0 {
		log.Warn("notification has no recipients")
	}

	for _, t := range targets {
		text, err := s.renderer.Render(ctx, n.TemplateRef, render.Context{
			Notification: n.Name,
			Target:       t.target,
			ChatTitle:    t.title,
			Now:          local,
		})
		if err != nil {
			log.Error("render failed", zap.Error(err), zap.String("target", t.target))
			res.Errors = append(res.Errors, &DeliveryError{Target: t.target, Err: fmt.Errorf("render: %w", err)})
			continue
		}
		if err := s.channel.Send(ctx, t.target, text); err != nil {
			log.Error("send failed", zap.Error(err), zap.String("target", t.target))
			res.Errors = append(res.Errors, &DeliveryError{Target: t.target, Err: err})
			continue
		}
		res.Delivered++
	}

	// Every target got an attempt: count it as fired even if some failed,
	// so the ones that succeeded are not sent again next tick.
	firedAt := now.UTC()
	upd := domain.Update{LastFiredAt: &firedAt}
	if n.Rule.Kind.Repeating() {
		next, err := domain.NextFire(n.Rule, &firedAt, local)
		if err != nil {
			log.Warn("next fire not computed", zap.Error(err))
		}
		if next != nil {
			utc := next.UTC()
			upd.NextFireAt = &utc
		} else {
			upd.ClearNext = true
		}
	} else {
		inactive := false
		upd.IsActive = &inactive
		upd.ClearNext = true
	}

	if _, err := s.store.Update(ctx, n.ID, upd); err != nil {
		log.Error("Update after send failed", zap.Error(err))
		res.Errors = append(res.Errors, &StoreError{Op: "update", Err: err})
		return res
	}

	res.Fired = true
	res.FiredAt = &firedAt
	res.NextFireAt = upd.NextFireAt
	res.Deactivated = upd.IsActive != nil
	log.Info("notification sent",
		zap.Int("targets", res.Targets),
		zap.Int("delivered", res.Delivered),
		zap.Bool("deactivated", res.Deactivated),
	)
	return res
}

// refreshNext recomputes next_fire_at from the current row under the record
// lock, so a send that landed after ListActive is not overwritten.
func (s *Scheduler) refreshNext(ctx context.Context, log *zap.Logger, id int64, local time.Time) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("reload for next fire failed", zap.Error(err))
		}
		return
	}
	if !cur.Schedulable() {
		return
	}
	dec, err := domain.Evaluate(cur.Rule, cur.LastFiredAt, local)
	if err != nil || dec.Due || sameInstant(cur.NextFireAt, dec.Next) {
		return
	}

	upd := domain.Update{ClearNext: dec.Next == nil}
	if dec.Next != nil {
		utc := dec.Next.UTC()
		upd.NextFireAt = &utc
	}
	if _, err := s.store.Update(ctx, id, upd); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn("saving next fire time failed", zap.Error(err))
	}
}

type recipient struct {
	target string
	title  string
}

// resolveRecipients expands "all" into registered chats and drops duplicates.
func (s *Scheduler) resolveRecipients(ctx context.Context, list []string) ([]recipient, error) {
	seen := make(map[string]bool)
	var out []recipient
	add := func(target, title string) {
		if target == "" || seen[target] {
			return
		}
		seen[target] = true
		out = append(out, recipient{target: target, title: title})
	}

	for _, r := range list {
		r = strings.TrimSpace(r)
		if !strings.EqualFold(r, domain.RecipientAll) {
			add(r, "")
			continue
		}
		chats, err := s.chats.ListEnabledChats(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range chats {
			add(strconv.FormatInt(c.ID, 10), c.Title)
		}
	}
	return out, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Unix() == b.Unix()
}
