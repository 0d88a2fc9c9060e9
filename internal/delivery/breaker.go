package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Breaker stops calling a failing channel for a while so one dead
// integration does not stall every tick on timeouts.
type Breaker struct {
	next Channel
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreaker wraps next; the breaker opens after `failures` consecutive
// errors and probes again after `timeout`.
func NewBreaker(name string, next Channel, failures uint32, timeout time.Duration, log *zap.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// a bad target says nothing about the channel's health
			return err == nil || errors.Is(err, ErrUnsupportedTarget)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("delivery breaker state changed",
				zap.String("channel", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Send(ctx context.Context, target, text string) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Send(ctx, target, text)
	})
	return err
}

// State exposes the breaker state for status reporting.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }
