package services

import (
	"context"
	"sync"
	"time"

	"wheelsync/config"
	"wheelsync/models"

	"go.uber.org/zap"
)

// LinkAlerter is notified when a poll task loses or regains the backend
type LinkAlerter interface {
	SendLinkTimeoutAlert(task string, lastSuccess time.Time, since time.Duration, lastError string) error
	SendLinkRecoveryAlert(task string, downtime time.Duration) error
}

// LinkMonitor tracks per-task backend reachability and alerts on timeouts
type LinkMonitor struct {
	timeout    time.Duration
	checkEvery time.Duration
	alerter    LinkAlerter
	clock      Clock
	logger     *zap.Logger
	links      map[string]*models.LinkHealth
	mu         sync.RWMutex
}

// NewLinkMonitor creates a new link monitor. alerter may be nil.
func NewLinkMonitor(cfg *config.Config, alerter LinkAlerter, clock Clock, logger *zap.Logger) *LinkMonitor {
	return &LinkMonitor{
		timeout:    time.Duration(cfg.LinkTimeout) * time.Second,
		checkEvery: time.Duration(cfg.LinkCheckSeconds) * time.Second,
		alerter:    alerter,
		clock:      clock,
		logger:     logger,
		links:      make(map[string]*models.LinkHealth),
	}
}

// Start runs the timeout checker until ctx is cancelled
func (m *LinkMonitor) Start(ctx context.Context) {
	ticker := m.clock.NewTicker(m.checkEvery)
	defer ticker.Stop()

	m.logger.Info("Link monitor started",
		zap.Duration("timeout", m.timeout),
		zap.Duration("check_every", m.checkEvery))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Link monitor stopped")
			return
		case <-ticker.C():
			m.checkTimeouts()
		}
	}
}

// RecordSuccess marks a task as having reached the backend
func (m *LinkMonitor) RecordSuccess(task string) {
	m.mu.Lock()
	now := m.clock.Now()
	link := m.link(task, now)

	wasTimeout := link.Status == models.LinkTimeout
	link.LastSuccess = now
	link.Failures = 0
	link.LastError = ""
	if wasTimeout {
		link.Status = models.LinkRecovered
	} else {
		link.Status = models.LinkHealthy
	}
	downtime := now.Sub(link.TimeoutAt)
	m.mu.Unlock()

	if !wasTimeout {
		return
	}

	m.logger.Info("Backend link recovered",
		zap.String("task", task),
		zap.Duration("down_duration", downtime))

	if m.alerter != nil {
		if err := m.alerter.SendLinkRecoveryAlert(task, downtime); err != nil {
			m.logger.Error("Failed to send recovery alert",
				zap.String("task", task),
				zap.Error(err))
		}
	}
}

// RecordFailure counts a failed call of a task
func (m *LinkMonitor) RecordFailure(task string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link := m.link(task, m.clock.Now())
	link.Failures++
	if err != nil {
		link.LastError = err.Error()
	}
}

// link must be called with mu held. A task seen for the first time counts as reachable
// from that moment so it can still time out without ever succeeding.
func (m *LinkMonitor) link(task string, now time.Time) *models.LinkHealth {
	link, exists := m.links[task]
	if !exists {
		link = &models.LinkHealth{
			Task:        task,
			LastSuccess: now,
			Status:      models.LinkHealthy,
		}
		m.links[task] = link
		m.logger.Debug("Task registered for link monitoring", zap.String("task", task))
	}
	return link
}

type linkTimeout struct {
	task        string
	lastSuccess time.Time
	since       time.Duration
	lastError   string
}

// checkTimeouts marks links that have not succeeded within the timeout
func (m *LinkMonitor) checkTimeouts() {
	m.mu.Lock()
	now := m.clock.Now()

	var timedOut []linkTimeout
	for task, link := range m.links {
		if link.Status == models.LinkTimeout {
			continue
		}

		since := now.Sub(link.LastSuccess)
		if since > m.timeout {
			link.Status = models.LinkTimeout
			link.TimeoutAt = now
			timedOut = append(timedOut, linkTimeout{
				task:        task,
				lastSuccess: link.LastSuccess,
				since:       since,
				lastError:   link.LastError,
			})
		}
	}
	m.mu.Unlock()

	for _, t := range timedOut {
		m.logger.Warn("Backend link timeout detected",
			zap.String("task", t.task),
			zap.Time("last_success", t.lastSuccess),
			zap.Duration("time_since_last_success", t.since),
			zap.String("last_error", t.lastError))

		if m.alerter == nil {
			continue
		}
		if err := m.alerter.SendLinkTimeoutAlert(t.task, t.lastSuccess, t.since, t.lastError); err != nil {
			m.logger.Error("Failed to send timeout alert",
				zap.String("task", t.task),
				zap.Error(err))
		}
	}
}

// Link returns a copy of a task's health record
func (m *LinkMonitor) Link(task string) (models.LinkHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[task]
	if !exists {
		return models.LinkHealth{}, false
	}
	return *link, true
}
