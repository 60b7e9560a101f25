package domain

import "encoding/json"

// Part is one piece of turn content. Only text parts are forwarded to the model
// after trimming.
type Part struct {
	Kind PartKind        `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// TextPart creates a text part.
func TextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// IsText reports whether the part carries text.
func (p Part) IsText() bool {
	return p.Kind == PartKindText || (p.Kind == "" && p.Text != "")
}

// Turn is one role-tagged unit of conversational content.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Invocation is a run of turns ending with an agent turn, or the trailing
// run that has no agent turn yet.
type Invocation []Turn
