package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Conversation is an ordered message history identified by an opaque,
// server-generated id. It is owned by the conversation store and mutated
// only through the store's append operation.
type Conversation struct {
	ID         string    `json:"id"`
	Messages   []Message `json:"messages,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

// Message is a single entry in a conversation. Immutable once appended.
// ToolCalls is populated only on assistant messages that triggered tools.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// ToolCall is one tool invocation requested by the model, together with its
// resolved result. A call transitions exactly once from pending to resolved.
type ToolCall struct {
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
	Result ToolResult     `json:"result"`
}
