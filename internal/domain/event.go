package domain

import "time"

// EventType names a session mutation observed by persistence sinks.
type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventSessionStarted   EventType = "session.started"
	EventStageLogged      EventType = "stage.logged"
	EventPlatformStatus   EventType = "platform.status"
	EventErrorRecorded    EventType = "error.recorded"
	EventSessionFinalized EventType = "session.finalized"
)

// Event is emitted by the session store after every mutation.
// Session is set for created and finalized events only.
type Event struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"sessionId"`
	Package    string    `json:"package"`
	Version    string    `json:"version"`
	Platform   string    `json:"platform,omitempty"`
	Stage      StageName `json:"stage,omitempty"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	Session    *Session  `json:"session,omitempty"`
}
