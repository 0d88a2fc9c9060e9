package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPoller struct {
	calls    atomic.Int32
	mu       sync.Mutex
	panicOn  int32
	err      error
	block    chan struct{}
	entered  chan struct{}
	finished atomic.Bool
}

func (p *stubPoller) Tick(_ context.Context, now time.Time) (TickReport, error) {
	n := p.calls.Add(1)
	if p.entered != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
	}
	if p.block != nil {
		<-p.block
	}
	if n == p.panicOn {
		panic("boom")
	}
	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	p.finished.Store(true)
	return TickReport{ID: "tick", StartedAt: now, Candidates: 3}, err
}

func TestServiceStartIsIdempotent(t *testing.T) {
	svc := NewService(&stubPoller{}, zap.NewNop())

	st, err := svc.Start(time.Hour)
	require.NoError(t, err)
	defer svc.Stop()
	assert.True(t, st.Running)
	assert.Equal(t, time.Hour, st.PollInterval)
	require.NotNil(t, st.NextTickAt)

	st2, err := svc.Start(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, st2.PollInterval, "second start keeps the running interval")
}

func TestServiceStartRejectsBadInterval(t *testing.T) {
	svc := NewService(&stubPoller{}, zap.NewNop())
	_, err := svc.Start(0)
	assert.ErrorIs(t, err, ErrBadInterval)
	assert.False(t, svc.Status().Running)
}

func TestServiceStopWhenStopped(t *testing.T) {
	svc := NewService(&stubPoller{}, zap.NewNop())
	st := svc.Stop()
	assert.False(t, st.Running)
	assert.Nil(t, st.NextTickAt)
}

func TestServiceRestart(t *testing.T) {
	p := &stubPoller{}
	svc := NewService(p, zap.NewNop())

	_, err := svc.Start(time.Hour)
	require.NoError(t, err)
	st := svc.Stop()
	assert.False(t, st.Running)
	assert.Zero(t, st.PollInterval)

	st, err = svc.Start(10 * time.Millisecond)
	require.NoError(t, err)
	assert.True(t, st.Running)
	require.Eventually(t, func() bool { return p.calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	svc.Stop()
}

func TestServiceLoopTicksAndRecordsStatus(t *testing.T) {
	p := &stubPoller{}
	svc := NewService(p, zap.NewNop())

	_, err := svc.Start(5 * time.Millisecond)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	svc.Stop()

	st := svc.Status()
	require.NotNil(t, st.LastTickAt)
	assert.Equal(t, "tick", st.LastTickID)
	assert.Equal(t, 3, st.ActiveCount)
	assert.Empty(t, st.LastError)
}

func TestServiceSurvivesPanickingTick(t *testing.T) {
	p := &stubPoller{panicOn: 1}
	svc := NewService(p, zap.NewNop())

	_, err := svc.Start(5 * time.Millisecond)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	svc.Stop()
	assert.True(t, p.finished.Load())
}

func TestServiceRecordsTickError(t *testing.T) {
	p := &stubPoller{err: &StoreError{Op: "list active", Err: errors.New("locked")}}
	svc := NewService(p, zap.NewNop())

	_, err := svc.ProcessNow(context.Background())
	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, svc.Status().LastError, "locked")
	assert.Zero(t, svc.Status().ActiveCount)
}

func TestServiceStopWaitsForInFlightTick(t *testing.T) {
	p := &stubPoller{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	svc := NewService(p, zap.NewNop())

	_, err := svc.Start(5 * time.Millisecond)
	require.NoError(t, err)
	<-p.entered

	stopped := make(chan struct{})
	go func() {
		svc.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(p.block)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the tick finished")
	}
	assert.True(t, p.finished.Load())
}

func TestServiceProcessNowWhileStopped(t *testing.T) {
	svc := NewService(&stubPoller{}, zap.NewNop())
	report, err := svc.ProcessNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Candidates)

	st := svc.Status()
	assert.False(t, st.Running)
	assert.Equal(t, 3, st.ActiveCount)
}
