package intervene

import (
	"context"
	"time"

	"github.com/okian/nudge/internal/adapters/repository"
	"github.com/okian/nudge/internal/domain/model"
)

// Default reminder configuration constants.
const defaultReminderThreshold = 15 * time.Second

const reminderMessage = "Don't forget to run your code!"

// EventLog is the slice of the event store the reminder depends on.
type EventLog interface {
	Append(ctx context.Context, eventType string, fields model.Fields) (int64, error)
	QueryLatest(ctx context.Context, problemID, subjectID string, eventTypes []string) (*repository.LoggedEvent, error)
}

// RunReminder nudges students who keep editing without running their code.
//
// State is carried entirely in the event log: the elapsed time since the
// most recent run, submit, or prior reminder for (problem, subject) decides
// whether to remind, and each reminder logs a synthetic X-Reminder event
// that resets the clock.
type RunReminder struct {
	log       EventLog
	threshold time.Duration
	now       func() time.Time
}

// ReminderOption applies a configuration option to the RunReminder.
type ReminderOption func(*RunReminder)

// WithThreshold sets the staleness threshold.
func WithThreshold(threshold time.Duration) ReminderOption {
	return func(r *RunReminder) {
		if threshold > 0 {
			r.threshold = threshold
		}
	}
}

// WithNow sets the clock used for elapsed-time arithmetic.
func WithNow(now func() time.Time) ReminderOption {
	return func(r *RunReminder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunReminder creates the run-reminder policy over log.
func NewRunReminder(log EventLog, opts ...ReminderOption) *RunReminder {
	r := &RunReminder{
		log:       log,
		threshold: defaultReminderThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements Intervention.
func (r *RunReminder) Name() string {
	return NameRunReminder
}

// OnEvent reminds on file edits when the student has not run, submitted, or
// been reminded within the threshold. Non-edit events produce no action.
func (r *RunReminder) OnEvent(ctx context.Context, eventType string, fields model.Fields, _ string) ([]model.Action, error) {
	if eventType != model.EventFileEdit {
		return nil, nil
	}
	problemID, _ := fields.String(model.FieldProblemID)
	subjectID, _ := fields.String(model.FieldSubjectID)

	elapsed, known, err := r.timeSinceLastRun(ctx, problemID, subjectID)
	if err != nil {
		return nil, err
	}
	if known && elapsed <= r.threshold {
		return nil, nil
	}

	// The synthetic event restarts the clock, so the student is not nagged
	// again until the threshold re-elapses.
	if _, err := r.log.Append(ctx, model.EventReminder, fields); err != nil {
		return nil, err
	}
	return []model.Action{model.ShowMessage(reminderMessage)}, nil
}

// timeSinceLastRun returns the wall-clock time since the most recent run,
// submit, or reminder event for (problem, subject). Rows are ordered by
// EventID; the stored timestamp string is only used for the elapsed-time
// arithmetic and may disagree with insertion order under clock adjustments.
func (r *RunReminder) timeSinceLastRun(ctx context.Context, problemID, subjectID string) (time.Duration, bool, error) {
	last, err := r.log.QueryLatest(ctx, problemID, subjectID, []string{
		model.EventRunProgram,
		model.EventSubmit,
		model.EventReminder,
	})
	if err != nil {
		return 0, false, err
	}
	if last == nil {
		return 0, false, nil
	}
	at, err := time.ParseInLocation(model.TimestampFormat, last.ServerTimestamp, time.Local)
	if err != nil {
		// An unparsable stored timestamp reads as "never ran".
		return 0, false, nil //nolint:nilerr // deliberate degradation
	}
	return r.now().Sub(at), true, nil
}
