// Package assign decides the experiment condition (control vs. intervention)
// for each subject.
//
// The default decision is a pure function of the log database identity and
// the subject id, so it is reproducible without any stored state; the store
// then persists the first decision under first-writer-wins semantics so a
// subject's experience never flips once recorded, even if the configuration
// or the default function later changes.
package assign

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/okian/nudge/internal/config"
	"github.com/okian/nudge/pkg/logger"
)

// ConditionStore persists the first condition decision per subject.
type ConditionStore interface {
	GetOrSetSubjectCondition(ctx context.Context, subjectID string, defaultFn func() bool) (bool, error)
}

// Assigner resolves subject conditions.
type Assigner struct {
	store       ConditionStore
	databaseID  string
	mode        string
	probability float64
	inverse     map[string]struct{}
	manual      map[string]bool
	logger      logger.Logger
}

// Option applies a configuration option to the Assigner.
type Option func(*Assigner)

// WithDatabaseID sets the stable database identity seeding default draws.
func WithDatabaseID(id string) Option {
	return func(a *Assigner) {
		a.databaseID = id
	}
}

// WithMode sets the assignment mode.
func WithMode(mode string) Option {
	return func(a *Assigner) {
		if mode != "" {
			a.mode = mode
		}
	}
}

// WithProbability sets the intervention probability for default draws.
func WithProbability(p float64) Option {
	return func(a *Assigner) {
		if p >= 0 && p <= 1 {
			a.probability = p
		}
	}
}

// WithInverseProblems sets the problems whose resolved condition is flipped.
func WithInverseProblems(problems []string) Option {
	return func(a *Assigner) {
		a.inverse = make(map[string]struct{}, len(problems))
		for _, p := range problems {
			a.inverse[p] = struct{}{}
		}
	}
}

// WithManualAssignments pins problems to a fixed condition. Values are
// "intervention" or "control".
func WithManualAssignments(assignments map[string]string) Option {
	return func(a *Assigner) {
		a.manual = make(map[string]bool, len(assignments))
		for p, condition := range assignments {
			a.manual[p] = condition == "intervention"
		}
	}
}

// WithLogger sets a custom logger for the assigner.
func WithLogger(l logger.Logger) Option {
	return func(a *Assigner) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Assigner backed by store.
func New(store ConditionStore, opts ...Option) *Assigner {
	a := &Assigner{
		store:       store,
		mode:        config.AssignRandomStudent,
		probability: 0.5,
		inverse:     map[string]struct{}{},
		manual:      map[string]bool{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("assign")
	}
	return a
}

// DeterministicDefault returns the default condition for a subject: a single
// uniform draw from a generator seeded by (database identity, subject id),
// compared against the intervention probability. Recomputing it always
// reproduces the same draw.
func (a *Assigner) DeterministicDefault(subjectID string) bool {
	h := fnv.New64a()
	_, _ = h.Write([]byte(a.databaseID + subjectID))
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec // deterministic seed is the point
	return rng.Float64() < a.probability
}

// Resolve returns true when (subject, problem) is in the intervention group.
//
// Manual per-problem overrides and the fixed all_control/all_intervention
// modes bypass persistence entirely; only random_student assignment records
// a per-subject condition.
func (a *Assigner) Resolve(ctx context.Context, subjectID, problemID string) (bool, error) {
	if condition, ok := a.manual[problemID]; ok {
		return condition, nil
	}
	switch a.mode {
	case config.AssignAllControl:
		return false, nil
	case config.AssignAllIntervention:
		return true, nil
	}

	condition, err := a.store.GetOrSetSubjectCondition(ctx, subjectID, func() bool {
		return a.DeterministicDefault(subjectID)
	})
	if err != nil {
		return false, err
	}
	if _, ok := a.inverse[problemID]; ok {
		condition = !condition
	}
	if a.mode != config.AssignRandomStudent {
		// Unknown mode is a configuration error; fail open so students are
		// not silently excluded from the study.
		a.logger.Warn(ctx, "unknown condition assignment mode",
			logger.String("mode", a.mode),
		)
		return true, nil
	}
	return condition, nil
}
