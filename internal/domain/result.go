package domain

import "fmt"

// FailureKind classifies why a tool call failed.
type FailureKind string

const (
	FailureToolNotFound FailureKind = "tool_not_found"
	FailureInvalidInput FailureKind = "invalid_input"
	FailureTimeout      FailureKind = "timeout"
	FailureExecution    FailureKind = "execution_failed"
)

// ToolResult is either a success payload or a failure descriptor, never
// both and never partially populated.
type ToolResult struct {
	Value   any      `json:"value,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// Failure describes a tool call that did not produce a value.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Succeed wraps a success payload.
func Succeed(v any) ToolResult {
	return ToolResult{Value: v}
}

// Fail wraps a failure descriptor.
func Fail(kind FailureKind, format string, args ...any) ToolResult {
	return ToolResult{Failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// Failed reports whether the result carries a failure descriptor.
func (r ToolResult) Failed() bool {
	return r.Failure != nil
}
