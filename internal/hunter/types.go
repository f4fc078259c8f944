package hunter

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventKind tags the payload carried by an Event.
type EventKind string

// Supported event kinds. The values double as the wire "type" tag.
const (
	KindLog    EventKind = "Log"
	KindSource EventKind = "Source"
	KindStatus EventKind = "Status"
)

// Level grades advisory log events shown to observers.
type Level string

// Log levels understood by the UI.
const (
	LevelInfo    Level = "INFO"
	LevelWarn    Level = "WARN"
	LevelSuccess Level = "SUCCESS"
)

// Topics assigned by the classifier and the built-in seeds.
const (
	TopicGovernment = "GOVERNMENT"
	TopicAcademia   = "ACADEMIA"
	TopicOpenData   = "OPEN DATA"
	TopicWeb        = "WEB"
)

// logTimeLayout is the clock format shown next to log lines.
const logTimeLayout = "15:04:05"

// Source is a discovered item. It is immutable once created and unique by URL
// within a session.
type Source struct {
	URL         string `json:"url"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
}

// LogEntry is an advisory progress message.
type LogEntry struct {
	Time    time.Time
	Message string
	Level   Level
}

// MarshalJSON renders the entry the way the dashboard expects it.
func (l LogEntry) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(struct {
		Time    string `json:"time"`
		Message string `json:"msg"`
		Level   Level  `json:"level"`
	}{
		Time:    l.Time.Format(logTimeLayout),
		Message: l.Message,
		Level:   l.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal log entry: %w", err)
	}
	return data, nil
}

// Status is a snapshot of session progress.
type Status struct {
	Running         bool `json:"running"`
	Count           int  `json:"count"`
	Target          int  `json:"target"`
	HasCustomTopics bool `json:"has_custom_topics"`
}

// Event is the tagged union published on the bus. Exactly one of Log, Source
// or Status is set, matching Kind.
type Event struct {
	Kind EventKind
	// SessionID scopes the event to a crawl session; empty for events raised
	// by command handlers. It is not part of the wire format.
	SessionID string
	// At is the publish timestamp used by archival sinks.
	At time.Time

	Log    *LogEntry
	Source *Source
	Status *Status
}

// NewLogEvent builds a Log event stamped with at.
func NewLogEvent(at time.Time, level Level, msg string) Event {
	return Event{
		Kind: KindLog,
		At:   at,
		Log:  &LogEntry{Time: at, Message: msg, Level: level},
	}
}

// NewSourceEvent builds a SourceFound event.
func NewSourceEvent(at time.Time, src Source) Event {
	return Event{Kind: KindSource, At: at, Source: &src}
}

// NewStatusEvent builds a Status snapshot event.
func NewStatusEvent(at time.Time, st Status) Event {
	return Event{Kind: KindStatus, At: at, Status: &st}
}

// Validate checks that the payload matches the kind.
func (e Event) Validate() error {
	switch e.Kind {
	case KindLog:
		if e.Log == nil {
			return errors.New("log event requires a log payload")
		}
	case KindSource:
		if e.Source == nil || e.Source.URL == "" {
			return errors.New("source event requires a source with a url")
		}
	case KindStatus:
		if e.Status == nil {
			return errors.New("status event requires a status payload")
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// MarshalJSON encodes the event as {"type": kind, "payload": ...}.
func (e Event) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Kind {
	case KindLog:
		payload = e.Log
	case KindSource:
		payload = e.Source
	case KindStatus:
		payload = e.Status
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	data, err := json.Marshal(struct {
		Type    EventKind `json:"type"`
		Payload any       `json:"payload"`
	}{Type: e.Kind, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}
