package domain

import (
	"slices"
	"time"
)

// SessionStatus is the aggregate state of one deployment run.
type SessionStatus string

const (
	SessionInitialized SessionStatus = "initialized"
	SessionRunning     SessionStatus = "running"
	SessionCompleted   SessionStatus = "completed"
	SessionFailed      SessionStatus = "failed"
)

// PlatformStatus is the state of a single platform within a session.
type PlatformStatus string

const (
	PlatformPending    PlatformStatus = "pending"
	PlatformRunning    PlatformStatus = "running"
	PlatformCompleted  PlatformStatus = "completed"
	PlatformFailed     PlatformStatus = "failed"
	PlatformRolledBack PlatformStatus = "rolled_back"
)

// CanTransition reports whether moving from s to next keeps the platform lifecycle
// moving forward: pending -> running -> completed|failed -> rolled_back.
// Re-applying the current status is allowed.
func (s PlatformStatus) CanTransition(next PlatformStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case PlatformPending:
		return next == PlatformRunning || next == PlatformCompleted || next == PlatformFailed
	case PlatformRunning:
		return next == PlatformCompleted || next == PlatformFailed
	case PlatformCompleted, PlatformFailed:
		return next == PlatformRolledBack
	}
	return false
}

// Terminal reports whether the platform has reached an outcome for the run.
func (s PlatformStatus) Terminal() bool {
	return s == PlatformCompleted || s == PlatformFailed || s == PlatformRolledBack
}

// StageStatus is recorded in the stage log.
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageAborted   StageStatus = "aborted"
)

// StageLogEntry records a stage transition.
type StageLogEntry struct {
	Stage     StageName   `json:"stage"`
	Status    StageStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// PlatformOutcome is the latest known state of one platform.
type PlatformOutcome struct {
	Status      PlatformStatus `json:"status"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	LastError   string         `json:"lastError,omitempty"`
}

// ErrorEntry is one error encountered during the run, in encounter order.
type ErrorEntry struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the record of one deploy, build, test or rollback invocation.
type Session struct {
	ID             string                     `json:"id"`
	Package        string                     `json:"package"`
	Version        string                     `json:"version"`
	Platforms      []string                   `json:"platforms"`
	PipelineName   string                     `json:"pipelineName"`
	Status         SessionStatus              `json:"status"`
	StartedAt      time.Time                  `json:"startedAt"`
	CompletedAt    *time.Time                 `json:"completedAt,omitempty"`
	StageLog       []StageLogEntry            `json:"stageLog"`
	PlatformStatus map[string]PlatformOutcome `json:"platformStatus"`
	Errors         []ErrorEntry               `json:"errors"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	c := s
	c.Platforms = slices.Clone(s.Platforms)
	c.StageLog = slices.Clone(s.StageLog)
	c.Errors = slices.Clone(s.Errors)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.PlatformStatus = make(map[string]PlatformOutcome, len(s.PlatformStatus))
	for k, v := range s.PlatformStatus {
		if v.CompletedAt != nil {
			t := *v.CompletedAt
			v.CompletedAt = &t
		}
		c.PlatformStatus[k] = v
	}
	return c
}

// HasPlatform reports whether platform was requested for the session.
func (s Session) HasPlatform(platform string) bool {
	return slices.Contains(s.Platforms, platform)
}

// Outcome aggregates platform outcomes: failed if any platform failed or had
// to be rolled back, completed otherwise.
func (s Session) Outcome() SessionStatus {
	for _, o := range s.PlatformStatus {
		if o.Status == PlatformFailed || o.Status == PlatformRolledBack {
			return SessionFailed
		}
	}
	return SessionCompleted
}

// Finished reports whether the session has been finalized.
func (s Session) Finished() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}
