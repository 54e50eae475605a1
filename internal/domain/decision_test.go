package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecision_Validate_FinalAnswer(t *testing.T) {
	d := FinalAnswer("hello")
	require.NoError(t, d.Validate())
	assert.Equal(t, DecisionFinal, d.Kind)
	assert.Equal(t, "hello", d.Answer)
}

func TestDecision_Validate_ToolRequest(t *testing.T) {
	d := RequestTools(ToolRequest{Tool: "get_weather", Input: map[string]any{"location": "London"}})
	require.NoError(t, d.Validate())
	assert.Equal(t, DecisionTools, d.Kind)
	assert.Len(t, d.Requests, 1)
}

func TestDecision_Validate_Rejects(t *testing.T) {
	assert.Error(t, Decision{Kind: "other"}.Validate())
	assert.Error(t, Decision{Kind: DecisionTools}.Validate())
	assert.Error(t, RequestTools(ToolRequest{Tool: ""}).Validate())
}

func TestToolResult_SucceedAndFail(t *testing.T) {
	ok := Succeed("42")
	assert.False(t, ok.Failed())
	assert.Equal(t, "42", ok.Value)

	bad := Fail(FailureTimeout, "took %ds", 11)
	require.True(t, bad.Failed())
	assert.Equal(t, FailureTimeout, bad.Failure.Kind)
	assert.Equal(t, "took 11s", bad.Failure.Message)
	assert.Contains(t, bad.Failure.Error(), "timeout")
}
