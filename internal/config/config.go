// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load() layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

import "path/filepath"

// Condition assignment modes.
const (
	AssignRandomStudent   = "random_student"
	AssignAllControl      = "all_control"
	AssignAllIntervention = "all_intervention"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":5500".
	Addr string `koanf:"addr"`

	// DataDir is the directory holding log databases.
	DataDir string `koanf:"data_dir"`

	// LogDatabase names the event log database. It doubles as the stable
	// identity mixed into deterministic condition assignment, so renaming
	// it reshuffles future default assignments.
	LogDatabase string `koanf:"log_database"`

	// BuildMinCount is the minimum number of distinct submissions before
	// any model is built for a problem.
	BuildMinCount int `koanf:"build_min_count"`

	// BuildIncrement is the number of new distinct submissions that must
	// accumulate before a model is rebuilt.
	BuildIncrement int `koanf:"build_increment"`

	// Assignment selects the condition assignment mode.
	Assignment string `koanf:"assignment"`

	// InterventionProbability is the chance a subject defaults to the
	// intervention group under random_student assignment.
	InterventionProbability float64 `koanf:"intervention_probability"`

	// InverseProblems flips the resolved condition for the listed problems
	// to balance exposure without re-randomizing subjects.
	InverseProblems []string `koanf:"inverse_problems"`

	// ManuallyAssignedProblems pins listed problems to "intervention" or
	// "control", bypassing persistence and randomization.
	ManuallyAssignedProblems map[string]string `koanf:"manually_assigned_problems"`

	// ActiveIntervention selects the policy: greeting, run_reminder, or
	// autograder.
	ActiveIntervention string `koanf:"active_intervention"`

	// ReminderSeconds is the run-reminder staleness threshold.
	ReminderSeconds int `koanf:"reminder_seconds"`

	// RebuildQueueSize bounds the background model-rebuild queue.
	RebuildQueueSize int `koanf:"rebuild_queue_size"`

	// RebuildWorkerCount sets the number of rebuild workers.
	RebuildWorkerCount int `koanf:"rebuild_worker_count"`

	// ModelCacheSize bounds the in-memory cache of deserialized models.
	ModelCacheSize int `koanf:"model_cache_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		Addr:                     ":5500",
		DataDir:                  "data",
		LogDatabase:              "log",
		BuildMinCount:            10,
		BuildIncrement:           5,
		Assignment:               AssignRandomStudent,
		InterventionProbability:  0.5,
		InverseProblems:          nil,
		ManuallyAssignedProblems: map[string]string{},
		ActiveIntervention:       "run_reminder",
		ReminderSeconds:          15,
		RebuildQueueSize:         1024,
		RebuildWorkerCount:       2,
		ModelCacheSize:           128,
	}
}

// DatabasePath returns the on-disk path of the configured log database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.LogDatabase+".db")
}
