package model

import (
	"fmt"
	"strings"

	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/tool"
)

// buildSystemPrompt renders the tool-use instructions shown to the model.
// The fenced-block protocol matches what the decision parser expects.
func buildSystemPrompt(tools []tool.Definition) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI assistant with access to tools.\n")

	if len(tools) > 0 {
		b.WriteString("You can use the following tools when appropriate:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
			if t.InputSchema != "" {
				fmt.Fprintf(&b, "  input schema: %s\n", t.InputSchema)
			}
		}
		b.WriteString("\nWhen you need to use a tool, emit exactly this format:\n")
		b.WriteString("```tool\n{\"name\": \"tool_name\", \"input\": {\"param\": \"value\"}}\n```\n")
		b.WriteString("You may emit several tool blocks in one reply if the calls are independent.\n")
	}

	b.WriteString("\nOtherwise, respond directly to the user in a helpful, informative, and friendly manner. ")
	b.WriteString("Use tools when relevant, but answer directly when you can.")
	return b.String()
}

// renderHistory flattens conversation history into a plain prompt for
// providers without a structured chat API. Tool messages carry the results
// of the preceding assistant turn's tool calls.
func renderHistory(history []domain.Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case domain.RoleUser:
			fmt.Fprintf(&b, "User: %s\n\n", msg.Content)
		case domain.RoleAssistant:
			fmt.Fprintf(&b, "Assistant: %s\n\n", msg.Content)
			if len(msg.ToolCalls) > 0 {
				b.WriteString(renderToolResults(msg.ToolCalls))
			}
		case domain.RoleTool:
			fmt.Fprintf(&b, "Tool: %s\n\n", msg.Content)
		}
	}
	return b.String()
}

// renderToolResults formats resolved tool calls for the model to read.
// Failures are rendered inline so the model can adapt its answer rather
// than the turn aborting.
func renderToolResults(calls []domain.ToolCall) string {
	var b strings.Builder
	b.WriteString("Tool execution results:\n\n")
	for _, c := range calls {
		fmt.Fprintf(&b, "### %s\n", c.Name)
		if c.Result.Failed() {
			fmt.Fprintf(&b, "Error (%s): %s\n", c.Result.Failure.Kind, c.Result.Failure.Message)
		} else {
			fmt.Fprintf(&b, "%v\n", c.Result.Value)
		}
		b.WriteString("\n")
	}
	return b.String()
}
