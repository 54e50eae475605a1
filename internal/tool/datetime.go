package tool

import (
	"context"
	"time"
)

// NewDatetimeTool returns the get_current_datetime tool. It takes no input
// and is never cached.
func NewDatetimeTool() *Tool {
	return &Tool{
		Name:        "get_current_datetime",
		Description: "Get the current date and time in ISO format",
		InputSchema: `{"type":"object","properties":{}}`,
		Validate:    func(map[string]any) error { return nil },
		Cacheable:   false,
		Timeout:     time.Second,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			return time.Now().Format(time.RFC3339), nil
		},
	}
}
