package domain

import "fmt"

// DecisionKind tags the two legal decision variants.
type DecisionKind string

const (
	DecisionFinal DecisionKind = "final_answer"
	DecisionTools DecisionKind = "tool_request"
)

// ToolRequest is one tool invocation the model asked for, before dispatch.
type ToolRequest struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// Decision is the model gateway's output for one turn step: either a final
// answer or an ordered list of tool requests. It is a closed tagged variant
// validated at the gateway boundary — anything else is rejected there.
// On a tool request, Answer holds any prose the model emitted alongside
// its tool calls.
type Decision struct {
	Kind     DecisionKind  `json:"kind"`
	Answer   string        `json:"answer,omitempty"`
	Requests []ToolRequest `json:"requests,omitempty"`
}

// FinalAnswer builds a final-answer decision.
func FinalAnswer(text string) Decision {
	return Decision{Kind: DecisionFinal, Answer: text}
}

// RequestTools builds a tool-request decision. Request order is preserved
// through dispatch and trace rendering.
func RequestTools(reqs ...ToolRequest) Decision {
	return Decision{Kind: DecisionTools, Requests: reqs}
}

// Validate checks that the decision is one of the two legal variants.
func (d Decision) Validate() error {
	switch d.Kind {
	case DecisionFinal:
		return nil
	case DecisionTools:
		if len(d.Requests) == 0 {
			return fmt.Errorf("tool_request decision with no requests")
		}
		for i, r := range d.Requests {
			if r.Tool == "" {
				return fmt.Errorf("tool_request decision with empty tool name at index %d", i)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown decision kind %q", d.Kind)
	}
}
