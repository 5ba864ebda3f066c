package services

import (
	"sync"
	"testing"
	"time"

	"wheelsync/models"

	"go.uber.org/zap"
)

// fakeClock only moves when Advance is called
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	clock   *fakeClock
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, c: make(chan time.Time, 1), period: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves time forward and fires due tickers. Like time.Ticker, a tick is dropped
// when the previous one has not been received yet.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(c.now) {
			select {
			case t.c <- t.next:
			default:
			}
			t.next = t.next.Add(t.period)
		}
	}
}

func (c *fakeClock) tickerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

// eventually polls cond until it holds or two seconds pass
func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recordingPresenter keeps every event in arrival order
type recordingPresenter struct {
	mu       sync.Mutex
	events   []models.EventType
	states   []models.DeviceState
	failures []string
}

func (p *recordingPresenter) OnStateChanged(state models.DeviceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, models.EventStateChanged)
	p.states = append(p.states, state)
}

func (p *recordingPresenter) OnCommandFailed(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, models.EventCommandFailed)
	p.failures = append(p.failures, reason)
}

func (p *recordingPresenter) OnCameraUnavailable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, models.EventCameraUnavailable)
}

func (p *recordingPresenter) OnCameraAvailable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, models.EventCameraAvailable)
}

func (p *recordingPresenter) Events() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.EventType(nil), p.events...)
}

func (p *recordingPresenter) Count(event models.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

func (p *recordingPresenter) Failures() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.failures...)
}

var testThresholds = ObstacleThresholds{Danger: 15, Warning: 30, Caution: 50}

func newTestReconciler() *Reconciler {
	return NewReconciler(NewObstacleClassifierWithThresholds(testThresholds))
}

func newTestStore(presenter Presenter, clock Clock, logger *zap.Logger) *StateStore {
	return NewStateStore(models.NewDeviceState("test-session", 50), newTestReconciler(), presenter, clock, logger)
}

func float64Ptr(v float64) *float64 { return &v }
