package model

import "strings"

// Action kinds understood by the coding environment's client.
const (
	ActionShowDiv       = "ShowDiv"
	ActionShowMessage   = "ShowMessage"
	ActionHighlightCode = "HighlightCode"
)

// Action is a structured instruction returned to the client. Actions are
// output values only; they are never persisted.
type Action struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

// ShowDiv renders an HTML fragment in the environment's feedback area.
func ShowDiv(html string) Action {
	return Action{
		Action: ActionShowDiv,
		Data:   map[string]any{"html": html},
	}
}

// ShowMessage displays a plain-text message.
func ShowMessage(message string) Action {
	return Action{
		Action: ActionShowMessage,
		Data:   map[string]any{"message": message},
	}
}

// HighlightCode highlights a code range. An empty message omits the tooltip.
func HighlightCode(startLine, endLine, startColumn, endColumn int, message string) Action {
	data := map[string]any{
		"startLine":   startLine,
		"endLine":     endLine,
		"startColumn": startColumn,
		"endColumn":   endColumn,
	}
	if message != "" {
		data["message"] = message
	}
	return Action{Action: ActionHighlightCode, Data: data}
}

// CustomAction builds an extension action. Names outside the core vocabulary
// are normalized to carry the "X-" prefix exactly once.
func CustomAction(name string, data map[string]any) Action {
	if !strings.HasPrefix(name, ExtensionPrefix) {
		name = ExtensionPrefix + name
	}
	return Action{Action: name, Data: data}
}
