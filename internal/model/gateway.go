// Package model abstracts the language model behind a decision-making
// gateway. The orchestration loop never sees provider specifics: it hands
// over conversation history and gets back a validated Decision — a final
// answer or a set of tool requests.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/tool"
)

// Gateway turns conversation history into a Decision. Implementations may
// have latency and transient failures; callers must not assume determinism.
type Gateway interface {
	// Decide asks the model to act on the history with the given tools
	// available. The returned Decision is always validated.
	Decide(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error)

	// Ready reports whether the provider's credentials are configured.
	Ready() bool

	// Name returns the provider name (e.g. "gemini").
	Name() string
}

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// KindUnavailable covers transport, auth, and server-side failures.
	KindUnavailable ErrorKind = "unavailable"
	// KindMalformed covers replies that cannot be parsed into a Decision.
	KindMalformed ErrorKind = "malformed_output"
)

// GatewayError is returned when the model gateway fails. Both kinds are
// recoverable by the orchestration loop via retry with backoff.
type GatewayError struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Unavailable builds a transport/auth failure error.
func Unavailable(provider string, err error, format string, args ...any) *GatewayError {
	return &GatewayError{Kind: KindUnavailable, Provider: provider, Message: fmt.Sprintf(format, args...), Err: err}
}

// Malformed builds an unparseable-output error.
func Malformed(provider, format string, args ...any) *GatewayError {
	return &GatewayError{Kind: KindMalformed, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether the error is a gateway failure the loop
// should retry with backoff.
func IsRetryable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
