// Package tool defines the agent's tool contract and the startup-time
// registry mapping tool names to callable implementations.
package tool

import (
	"context"
	"fmt"
	"time"
)

// Executor runs a tool against validated input and returns its payload.
type Executor func(ctx context.Context, input map[string]any) (any, error)

// Validator rejects malformed input before any execution is attempted.
// This guards against malformed or adversarial model decisions.
type Validator func(input map[string]any) error

// Tool is a named external capability with typed input, an executor, and a
// failure policy (per-call timeout, cacheability of results).
type Tool struct {
	Name        string
	Description string
	InputSchema string // JSON Schema, rendered into the model prompt
	Validate    Validator
	Execute     Executor
	Cacheable   bool
	CacheTTL    time.Duration // only meaningful when Cacheable
	Timeout     time.Duration
}

// Definition is the serializable subset of a tool shown to the model.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"`
}

// Registry holds the available tools. It is populated at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Re-registering a name replaces the prior entry but
// keeps its position in the definition order.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns model-ready tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, Definition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return defs
}

// stringArg extracts a required non-empty string field from tool input.
func stringArg(input map[string]any, field string) (string, error) {
	v, ok := input[field]
	if !ok {
		return "", fmt.Errorf("missing required field %q", field)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", field)
	}
	if s == "" {
		return "", fmt.Errorf("field %q must not be empty", field)
	}
	return s, nil
}

// requireString builds a Validator for a single required string field.
func requireString(field string) Validator {
	return func(input map[string]any) error {
		_, err := stringArg(input, field)
		return err
	}
}
