// Package repository defines the append-only event store and its errors.
package repository

import (
	"context"

	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/scoring"
)

// LoggedEvent is one persisted row of the main event table. Only the fixed
// columns needed by readers are materialized; dynamic columns stay in the
// table until queried explicitly.
type LoggedEvent struct {
	EventID         int64
	EventType       string
	ProblemID       string
	SubjectID       string
	ServerTimestamp string
}

// ModelRecord is the stored artifact of the last successful model build for
// a problem.
type ModelRecord struct {
	ProblemID     string
	Model         []byte
	TrainingCount int
}

// EventStore provides append-only event persistence plus the side tables for
// subject conditions and model artifacts.
type EventStore interface {
	// Append assigns the server timestamp, normalizes the client timestamp
	// (dropping it on parse failure), persists one row atomically, and
	// returns the assigned event id.
	Append(ctx context.Context, eventType string, fields model.Fields) (int64, error)

	// QueryLatest returns the most recent event (by EventID, descending)
	// matching problem, subject, and one of the given event types, or nil
	// when no such event exists.
	QueryLatest(ctx context.Context, problemID, subjectID string, eventTypes []string) (*LoggedEvent, error)

	// GetOrSetSubjectCondition returns the persisted condition for subject,
	// or persists defaultFn() under first-writer-wins semantics. Concurrent
	// callers for the same subject all observe the single durable value.
	GetOrSetSubjectCondition(ctx context.Context, subjectID string, defaultFn func() bool) (bool, error)

	// DistinctCodeStateCount counts distinct code states logged for a
	// problem across run and submit events.
	DistinctCodeStateCount(ctx context.Context, problemID string) (int, error)

	// TrainingExamples returns the graded submissions for a problem:
	// rows of run/submit events carrying both code and a score.
	TrainingExamples(ctx context.Context, problemID string) ([]scoring.Example, error)

	// ModelRecord returns the stored model for a problem, or nil when no
	// build has succeeded yet.
	ModelRecord(ctx context.Context, problemID string) (*ModelRecord, error)

	// SetModelRecord atomically overwrites the model blob and training
	// count for a problem.
	SetModelRecord(ctx context.Context, problemID string, blob []byte, trainingCount int) error

	// EventCount returns the total number of logged events.
	EventCount(ctx context.Context) (int64, error)

	Close() error
}
