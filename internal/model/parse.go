package model

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/dmaher/parley/internal/domain"
)

// toolBlockRe matches ```tool\n{...}\n``` fenced blocks in model output.
var toolBlockRe = regexp.MustCompile("(?s)```tool\\s*\n(\\{.*?\\})\\s*```")

// blankLineCollapseRe collapses 3+ consecutive newlines to a single blank line.
var blankLineCollapseRe = regexp.MustCompile(`\n{3,}`)

type rawToolBlock struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// parseDecision converts raw model text into a validated Decision.
// Text with no tool blocks is a final answer; text with tool blocks is a
// tool request in emission order. Tool fences that cannot be parsed at all
// yield a malformed-output error so the loop can retry.
func parseDecision(provider, text string) (domain.Decision, error) {
	matches := toolBlockRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		answer := strings.TrimSpace(text)
		if answer == "" {
			return domain.Decision{}, Malformed(provider, "empty model reply")
		}
		return domain.FinalAnswer(answer), nil
	}

	var reqs []domain.ToolRequest
	for _, m := range matches {
		var blk rawToolBlock
		if err := json.Unmarshal([]byte(m[1]), &blk); err != nil {
			continue
		}
		if blk.Name == "" {
			continue
		}
		if blk.Input == nil {
			blk.Input = map[string]any{}
		}
		reqs = append(reqs, domain.ToolRequest{Tool: blk.Name, Input: blk.Input})
	}
	if len(reqs) == 0 {
		return domain.Decision{}, Malformed(provider, "tool blocks present but none parseable")
	}

	d := domain.RequestTools(reqs...)
	d.Answer = stripToolBlocks(text)
	if err := d.Validate(); err != nil {
		return domain.Decision{}, Malformed(provider, "invalid decision: %v", err)
	}
	return d, nil
}

// stripToolBlocks removes tool fences from a reply, leaving the surrounding
// prose so it can accompany the request in history.
func stripToolBlocks(text string) string {
	cleaned := toolBlockRe.ReplaceAllString(text, "\n\n")
	cleaned = blankLineCollapseRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
