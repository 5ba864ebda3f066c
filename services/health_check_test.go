package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wheelsync/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type linkAlert struct {
	kind      string
	task      string
	since     time.Duration
	lastError string
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []linkAlert
}

func (f *fakeAlerter) SendLinkTimeoutAlert(task string, _ time.Time, since time.Duration, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, linkAlert{kind: "timeout", task: task, since: since, lastError: lastError})
	return nil
}

func (f *fakeAlerter) SendLinkRecoveryAlert(task string, downtime time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, linkAlert{kind: "recovery", task: task, since: downtime})
	return nil
}

func (f *fakeAlerter) Alerts() []linkAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]linkAlert(nil), f.alerts...)
}

func TestLinkMonitorTimeoutAndRecovery(t *testing.T) {
	clock := newFakeClock()
	alerter := &fakeAlerter{}
	m := NewLinkMonitor(testSchedulerConfig(), alerter, clock, zaptest.NewLogger(t))

	m.RecordSuccess("motor")
	clock.Advance(5 * time.Second)
	m.RecordFailure("motor", errors.New("connection refused"))
	m.checkTimeouts()
	if n := len(alerter.Alerts()); n != 0 {
		t.Fatalf("%d alerts before the timeout", n)
	}

	clock.Advance(6 * time.Second)
	m.checkTimeouts()
	m.checkTimeouts()

	alerts := alerter.Alerts()
	if len(alerts) != 1 {
		t.Fatalf("alerts = %+v, want one timeout", alerts)
	}
	if a := alerts[0]; a.kind != "timeout" || a.task != "motor" || a.since != 11*time.Second || a.lastError != "connection refused" {
		t.Fatalf("timeout alert = %+v", a)
	}
	if link, _ := m.Link("motor"); link.Status != models.LinkTimeout {
		t.Fatalf("status = %s, want timeout", link.Status)
	}

	clock.Advance(4 * time.Second)
	m.RecordSuccess("motor")

	alerts = alerter.Alerts()
	if len(alerts) != 2 || alerts[1].kind != "recovery" || alerts[1].since != 4*time.Second {
		t.Fatalf("alerts = %+v, want recovery after 4s", alerts)
	}
	if link, _ := m.Link("motor"); link.Status != models.LinkRecovered {
		t.Fatalf("status = %s, want recovered", link.Status)
	}

	m.RecordSuccess("motor")
	if link, _ := m.Link("motor"); link.Status != models.LinkHealthy {
		t.Fatalf("status = %s, want healthy", link.Status)
	}
	if n := len(alerter.Alerts()); n != 2 {
		t.Fatalf("%d alerts, want no more", n)
	}
}

func TestLinkMonitorTaskThatNeverSucceeds(t *testing.T) {
	clock := newFakeClock()
	alerter := &fakeAlerter{}
	m := NewLinkMonitor(testSchedulerConfig(), alerter, clock, zap.NewNop())

	m.RecordFailure("gps", errors.New("timeout"))
	clock.Advance(11 * time.Second)
	m.checkTimeouts()

	alerts := alerter.Alerts()
	if len(alerts) != 1 || alerts[0].task != "gps" || alerts[0].lastError != "timeout" {
		t.Fatalf("alerts = %+v", alerts)
	}
	if _, ok := m.Link("camera"); ok {
		t.Fatalf("unseen task has a link record")
	}
}

func TestLinkMonitorStartChecksOnTicks(t *testing.T) {
	clock := newFakeClock()
	alerter := &fakeAlerter{}
	m := NewLinkMonitor(testSchedulerConfig(), alerter, clock, zap.NewNop())
	m.RecordSuccess("sensors")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Start(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	eventually(t, func() bool { return clock.tickerCount() == 1 }, "monitor ticker")
	eventually(t, func() bool {
		clock.Advance(2 * time.Second)
		return len(alerter.Alerts()) == 1
	}, "timeout alert")
}
