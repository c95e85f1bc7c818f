package intervene

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/okian/nudge/internal/domain/model"
	"github.com/okian/nudge/internal/domain/scoring"
	"github.com/okian/nudge/pkg/logger"
)

var feedbackTemplate = template.Must(template.New("feedback").Parse(
	`<div class="autograder-feedback">
  <p>Estimated chance this code would pass: <b>{{printf "%.0f" .Percent}}%</b></p>
</div>`,
))

// ModelProvider serves the current correctness model for a problem and
// reports when it has gone stale.
type ModelProvider interface {
	ShouldRebuild(ctx context.Context, problemID string) (bool, error)
	Get(ctx context.Context, problemID string) (scoring.Model, error)
}

// RebuildTrigger hands a stale problem to the background rebuild pipeline.
// Trigger returns false when the rebuild was not accepted (backpressure or
// already in flight); serving feedback does not depend on the outcome.
type RebuildTrigger interface {
	Trigger(ctx context.Context, problemID string) bool
}

// Autograder scores submitted code with the problem's trained model and
// shows the student an estimated pass probability.
type Autograder struct {
	models  ModelProvider
	rebuild RebuildTrigger
	logger  logger.Logger
}

// AutograderOption applies a configuration option to the Autograder.
type AutograderOption func(*Autograder)

// WithAutograderLogger sets a custom logger for the autograder.
func WithAutograderLogger(l logger.Logger) AutograderOption {
	return func(a *Autograder) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAutograder creates the autograder policy.
func NewAutograder(models ModelProvider, rebuild RebuildTrigger, opts ...AutograderOption) *Autograder {
	a := &Autograder{
		models:  models,
		rebuild: rebuild,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("autograder")
	}
	return a
}

// Name implements Intervention.
func (a *Autograder) Name() string {
	return NameAutograder
}

// OnEvent fires on any event carrying a problem id: it triggers a rebuild
// if the model is stale (fire-and-forget), then scores the code with the
// current model. No model yet means no feedback.
func (a *Autograder) OnEvent(ctx context.Context, _ string, fields model.Fields, code string) ([]model.Action, error) {
	problemID, ok := fields.String(model.FieldProblemID)
	if !ok {
		return nil, nil
	}

	stale, err := a.models.ShouldRebuild(ctx, problemID)
	if err != nil {
		// Feedback from the current model is still worth serving.
		a.logger.Warn(ctx, "rebuild check failed",
			logger.String("problemID", problemID),
			logger.Error(err),
		)
	} else if stale && !a.rebuild.Trigger(ctx, problemID) {
		a.logger.Debug(ctx, "rebuild not accepted",
			logger.String("problemID", problemID),
		)
	}

	m, err := a.models.Get(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		a.logger.Debug(ctx, "no model yet",
			logger.String("problemID", problemID),
		)
		return nil, nil
	}

	score := m.Score(code)
	var buf bytes.Buffer
	err = feedbackTemplate.Execute(&buf, struct{ Percent float64 }{Percent: score * 100})
	if err != nil {
		return nil, fmt.Errorf("render feedback: %w", err)
	}
	act := model.ShowDiv(buf.String())
	act.Data["x-score"] = score
	return []model.Action{act}, nil
}
