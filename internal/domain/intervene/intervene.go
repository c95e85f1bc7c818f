// Package intervene defines the pluggable intervention policies.
//
// A policy is a single capability: given one logged event and the submitted
// code, return zero or more UI actions. Policies are interchangeable and
// selected by configuration; the dispatcher only ever talks to the active
// one. Policy failures never propagate to the client; the dispatcher logs
// them and degrades to no actions.
package intervene

import (
	"context"

	"github.com/okian/nudge/internal/domain/model"
)

// Policy names selectable via configuration.
const (
	NameGreeting    = "greeting"
	NameRunReminder = "run_reminder"
	NameAutograder  = "autograder"
)

// Intervention reacts to a logged event with zero or more actions.
type Intervention interface {
	// Name identifies the policy in configuration, logs, and metrics.
	Name() string

	// OnEvent inspects one event and returns the actions to show the
	// student. An empty slice means no intervention.
	OnEvent(ctx context.Context, eventType string, fields model.Fields, code string) ([]model.Action, error)
}
