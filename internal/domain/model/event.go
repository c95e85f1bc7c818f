// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// Core event types follow the ProgSnap 2 vocabulary. Extension types carry
// an "X-" prefix so they cannot collide with future core types.
const (
	EventFileEdit   = "File.Edit"
	EventRunProgram = "Run.Program"
	EventSubmit     = "Submit"

	// EventReminder is the synthetic marker logged by the run-reminder
	// policy; it resets the elapsed-time clock between reminders.
	EventReminder = "X-Reminder"
)

// Recognized field names of the event log. Any other field supplied by the
// client is logged verbatim under its own name.
const (
	FieldEventID         = "EventID"
	FieldEventType       = "EventType"
	FieldProblemID       = "ProblemID"
	FieldSubjectID       = "SubjectID"
	FieldCodeStateID     = "CodeStateID"
	FieldCodeState       = "CodeState"
	FieldScore           = "Score"
	FieldServerTimestamp = "ServerTimestamp"
	FieldClientTimestamp = "ClientTimestamp"
)

// TimestampFormat is the fixed storage format for both timestamps.
// Timestamps are stored as strings and are never an ordering key; rows are
// ordered by EventID.
const TimestampFormat = "2006-01-02T15:04:05"

// ExtensionPrefix marks event types and actions outside the core vocabulary.
const ExtensionPrefix = "X-"

// Fields is the open mapping of named event fields as received from the
// client, plus the fields assigned by the store.
type Fields map[string]any

// String returns the named field as a string, with ok reporting whether the
// field is present and is a string.
func (f Fields) String(name string) (string, bool) {
	v, ok := f[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a shallow copy so callers can annotate fields without
// mutating the original request payload.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// IsExtensionType reports whether t is an extension event type.
func IsExtensionType(t string) bool {
	return strings.HasPrefix(t, ExtensionPrefix)
}

// NormalizeClientTimestamp converts a client-supplied RFC3339 timestamp
// (fractional seconds, trailing "Z") to the storage format. The second
// return value is false when the input cannot be parsed; callers drop the
// field rather than failing the write.
func NormalizeClientTimestamp(ts string) (string, bool) {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", false
	}
	return parsed.Format(TimestampFormat), true
}
