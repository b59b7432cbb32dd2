package model

import (
	"fmt"
	"strings"
	"time"
)

// Direction of a call leg relative to the dealership.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// EventKind discriminates the messages arriving on the telephony feed.
type EventKind string

const (
	KindCallStarted        EventKind = "call_started"
	KindCallEnded          EventKind = "call_ended"
	KindRecordingAvailable EventKind = "recording_available"
)

// CallEvent is the inbound event shape reported by the telephony source.
// Timestamps are ISO-8601 UTC with fractional seconds.
type CallEvent struct {
	CallID         string    `json:"id"`
	Kind           EventKind `json:"kind,omitempty"`
	Direction      Direction `json:"direction"`
	State          string    `json:"state,omitempty"` // raw disposition: ANSWERED, MISSED, ...
	StartedAt      string    `json:"startedAt,omitempty"`
	EndedAt        string    `json:"endedAt,omitempty"`
	CustomerNumber string    `json:"customerNumber,omitempty"`
	DealerNumber   string    `json:"dealerNumber,omitempty"`
	DealerID       string    `json:"dealerId,omitempty"`
	DealerName     string    `json:"dealerName,omitempty"`
	Extension      string    `json:"extension,omitempty"`
	Email          string    `json:"email,omitempty"`
}

// RecordingEvent announces that a call recording landed in the media bucket.
// The object key is the source call id plus the media extension.
type RecordingEvent struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Validate checks the fields a call_ended event must carry before any
// conversation mutation happens.
func (e CallEvent) Validate() error {
	if e.CallID == "" {
		return fmt.Errorf("event missing call id")
	}
	if e.Direction != DirectionIn && e.Direction != DirectionOut {
		return fmt.Errorf("event %s: unknown direction %q", e.CallID, e.Direction)
	}
	if _, _, err := e.Times(); err != nil {
		return err
	}
	return nil
}

// Times parses the event's start and end timestamps.
func (e CallEvent) Times() (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339Nano, e.StartedAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("event %s: parsing startedAt: %w", e.CallID, err)
	}
	end, err = time.Parse(time.RFC3339Nano, e.EndedAt)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("event %s: parsing endedAt: %w", e.CallID, err)
	}
	return start, end, nil
}

// DurationSeconds derives the leg duration. Times must have validated.
func (e CallEvent) DurationSeconds() int {
	start, end, err := e.Times()
	if err != nil {
		return 0
	}
	return int(end.Sub(start).Seconds())
}

// AgentName derives a display name from the agent's email address:
// "jane.doe@example.com" becomes "Jane Doe".
func (e CallEvent) AgentName() string {
	if e.Email == "" {
		return ""
	}
	username := e.Email
	if at := strings.Index(username, "@"); at >= 0 {
		username = username[:at]
	}
	parts := strings.SplitN(username, ".", 2)
	if len(parts) == 2 {
		return titleCase(parts[0]) + " " + titleCase(parts[1])
	}
	return titleCase(username)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
