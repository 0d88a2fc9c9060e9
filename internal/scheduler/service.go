package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Poller runs one scheduling cycle; *Scheduler implements it.
type Poller interface {
	Tick(ctx context.Context, now time.Time) (TickReport, error)
}

// Status is a snapshot of the poll loop.
type Status struct {
	Running      bool
	PollInterval time.Duration
	LastTickAt   *time.Time
	NextTickAt   *time.Time
	LastTickID   string
	LastError    string
	ActiveCount  int
}

// Service owns the poll loop: start, stop and status for the process.
type Service struct {
	poller Poller
	log    *zap.Logger
	clock  func() time.Time

	mu          sync.Mutex
	running     bool
	interval    time.Duration
	stop        chan struct{}
	done        chan struct{}
	lastTickAt  *time.Time
	nextTickAt  *time.Time
	lastTickID  string
	lastError   string
	activeCount int
}

// NewService creates a stopped Service.
func NewService(p Poller, log *zap.Logger) *Service {
	return &Service{poller: p, log: log, clock: time.Now}
}

// Start launches the poll loop. Starting a running service changes nothing
// and returns its current status.
func (s *Service) Start(interval time.Duration) (Status, error) {
	if interval <= 0 {
		return s.Status(), ErrBadInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.statusLocked(), nil
	}

	s.running = true
	s.interval = interval
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	next := s.clock().Add(interval)
	s.nextTickAt = &next

	go s.loop(interval, s.stop, s.done)
	s.log.Info("scheduler started", zap.Duration("interval", interval))
	return s.statusLocked(), nil
}

// Stop prevents further ticks and waits for an in-flight tick to finish.
// Stopping a stopped service is a no-op.
func (s *Service) Stop() Status {
	s.mu.Lock()
	if !s.running {
		st := s.statusLocked()
		s.mu.Unlock()
		return st
	}
	s.running = false
	s.nextTickAt = nil
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Info("scheduler stopped")
	return s.Status()
}

// Status returns a snapshot of the loop state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	st := Status{
		Running:     s.running,
		LastTickID:  s.lastTickID,
		LastError:   s.lastError,
		ActiveCount: s.activeCount,
	}
	if s.running {
		st.PollInterval = s.interval
	}
	if s.lastTickAt != nil {
		t := *s.lastTickAt
		st.LastTickAt = &t
	}
	if s.nextTickAt != nil {
		t := *s.nextTickAt
		st.NextTickAt = &t
	}
	return st
}

// ProcessNow runs one tick right away, whether or not the loop is running.
func (s *Service) ProcessNow(ctx context.Context) (TickReport, error) {
	return s.runTick(ctx)
}

func (s *Service) loop(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// Ticks are not bound to the loop's lifetime: Stop lets a running one finish.
			if _, err := s.runTick(context.Background()); err != nil && !errors.Is(err, ErrTickInProgress) {
				s.log.Error("tick failed", zap.Error(err))
			}
			s.mu.Lock()
			if s.running && s.stop == stop {
				next := s.clock().Add(interval)
				s.nextTickAt = &next
			}
			s.mu.Unlock()
		}
	}
}

// runTick calls the poller and records the outcome; a panic is turned into an error.
func (s *Service) runTick(ctx context.Context) (report TickReport, err error) {
	now := s.clock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
			s.log.Error("tick panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		s.record(now, report, err)
	}()
	return s.poller.Tick(ctx, now)
}

func (s *Service) record(now time.Time, report TickReport, err error) {
	if errors.Is(err, ErrTickInProgress) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTickAt = &now
	s.lastTickID = report.ID
	if err != nil {
		s.lastError = err.Error()
		return
	}
	s.lastError = ""
	s.activeCount = report.Candidates
}
