package service

import (
	"time"

	"github.com/okian/nudge/internal/adapters/repository"
	"github.com/okian/nudge/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDatabasePath sets the on-disk path of the event log database.
func WithDatabasePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithDatabaseID sets the stable database identity mixed into deterministic
// condition assignment.
func WithDatabaseID(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.databaseID = id
		}
	}
}

// WithStore injects an already-open event store, bypassing WithDatabasePath.
func WithStore(store repository.EventStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithAssignment sets the condition assignment mode and the intervention
// probability used for default draws.
func WithAssignment(mode string, probability float64) Option {
	return func(s *Service) {
		if mode != "" {
			s.assignmentMode = mode
		}
		if probability >= 0 && probability <= 1 {
			s.probability = probability
		}
	}
}

// WithInverseProblems sets the problems whose resolved condition is flipped.
func WithInverseProblems(problems []string) Option {
	return func(s *Service) {
		s.inverseProblems = problems
	}
}

// WithManualAssignments pins problems to "intervention" or "control".
func WithManualAssignments(assignments map[string]string) Option {
	return func(s *Service) {
		if assignments != nil {
			s.manualAssignments = assignments
		}
	}
}

// WithActivePolicy selects the intervention policy by name.
func WithActivePolicy(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.activePolicy = name
		}
	}
}

// WithReminderThreshold sets the run-reminder staleness threshold.
func WithReminderThreshold(threshold time.Duration) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.reminderThreshold = threshold
		}
	}
}

// WithBuildThresholds sets the model rebuild gate.
func WithBuildThresholds(minCount, increment int) Option {
	return func(s *Service) {
		if minCount > 0 {
			s.buildMinCount = minCount
		}
		if increment > 0 {
			s.buildIncrement = increment
		}
	}
}

// WithRebuildQueueSize bounds the rebuild task queue.
func WithRebuildQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.rebuildQueueSize = size
		}
	}
}

// WithRebuildWorkerCount sets the number of rebuild workers.
func WithRebuildWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.rebuildWorkerCount = count
		}
	}
}

// WithModelCacheSize bounds the in-memory model cache.
func WithModelCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.modelCacheSize = size
		}
	}
}

// WithClock sets the clock used for server timestamps and reminder
// arithmetic.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
