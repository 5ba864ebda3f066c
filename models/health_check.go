package models

import (
	"time"
)

// LinkHealthStatus represents the reachability of one backend endpoint group
type LinkHealthStatus string

const (
	LinkHealthy   LinkHealthStatus = "healthy"
	LinkTimeout   LinkHealthStatus = "timeout"
	LinkRecovered LinkHealthStatus = "recovered"
)

// LinkHealth tracks the health state of one poll task
type LinkHealth struct {
	Task        string
	LastSuccess time.Time
	LastError   string
	Failures    int
	Status      LinkHealthStatus
	TimeoutAt   time.Time // When the link timed out (if applicable)
}
