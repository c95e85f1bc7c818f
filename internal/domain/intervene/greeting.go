package intervene

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/okian/nudge/internal/domain/model"
)

var greetingTemplate = template.Must(template.New("greeting").Parse(
	`Great work, <b>{{.SubjectID}}</b>! You've written <b>{{.Written}}</b> characters on {{.ProblemID}}.`,
))

// Greeting is the simplest policy: an encouraging note on every file edit.
// It exists mostly as a deployment smoke test for the action pipeline.
type Greeting struct{}

// NewGreeting creates the greeting policy.
func NewGreeting() *Greeting {
	return &Greeting{}
}

// Name implements Intervention.
func (g *Greeting) Name() string {
	return NameGreeting
}

// OnEvent responds to file edits with a templated ShowDiv; all other event
// types produce no action.
func (g *Greeting) OnEvent(_ context.Context, eventType string, fields model.Fields, code string) ([]model.Action, error) {
	if eventType != model.EventFileEdit {
		return nil, nil
	}
	subjectID, ok := fields.String(model.FieldSubjectID)
	if !ok {
		subjectID = "Student"
	}
	problemID, ok := fields.String(model.FieldProblemID)
	if !ok {
		problemID = "this problem"
	}

	var buf bytes.Buffer
	err := greetingTemplate.Execute(&buf, struct {
		SubjectID string
		ProblemID string
		Written   int
	}{SubjectID: subjectID, ProblemID: problemID, Written: len(code)})
	if err != nil {
		return nil, fmt.Errorf("render greeting: %w", err)
	}
	return []model.Action{model.ShowDiv(buf.String())}, nil
}
