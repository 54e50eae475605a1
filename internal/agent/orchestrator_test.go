package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmaher/parley/internal/cache"
	"github.com/dmaher/parley/internal/config"
	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/logging"
	"github.com/dmaher/parley/internal/model"
	"github.com/dmaher/parley/internal/store"
	"github.com/dmaher/parley/internal/tool"
)

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxRounds:          4,
		GatewayAttempts:    3,
		RetryBackoffMs:     1,
		TurnTimeoutSeconds: 30,
	}
}

func newTestOrchestrator(t *testing.T, gw model.Gateway, reg *tool.Registry) (*Orchestrator, store.ConversationStore) {
	t.Helper()
	log := logging.New(nil, "silent")

	convs := store.NewMemoryStore(0, log)
	t.Cleanup(func() { convs.Close() })

	results := cache.New(0)
	t.Cleanup(results.Close)

	d := NewDispatcher(reg, results, testToolsConfig(), log)
	return NewOrchestrator(gw, convs, reg, d, testAgentConfig(), log), convs
}

func weatherRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	reg.Register(&tool.Tool{
		Name:    "get_weather",
		Timeout: time.Second,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			return "sunny, 75°F", nil
		},
	})
	return reg
}

func TestHandleTurn_DirectFinalAnswer(t *testing.T) {
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		return domain.FinalAnswer("Paris is the capital of France."), nil
	}}
	orch, convs := newTestOrchestrator(t, gw, tool.NewRegistry())

	result, err := orch.HandleTurn(context.Background(), "", "capital of France?")
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital of France.", result.Response)
	assert.NotEmpty(t, result.ConversationID)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.ToolCalls)
	assert.Equal(t, 1, result.Rounds)

	history, err := convs.History(result.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	assert.Empty(t, history[1].ToolCalls)
}

func TestHandleTurn_ToolRoundThenAnswer(t *testing.T) {
	var round atomic.Int32
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		if round.Add(1) == 1 {
			return domain.RequestTools(domain.ToolRequest{
				Tool:  "get_weather",
				Input: map[string]any{"location": "London"},
			}), nil
		}
		return domain.FinalAnswer("It's sunny and 75°F in London."), nil
	}}
	orch, convs := newTestOrchestrator(t, gw, weatherRegistry(t))

	result, err := orch.HandleTurn(context.Background(), "", "weather in London?")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Rounds)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "get_weather", result.ToolCalls[0].Name)
	assert.Equal(t, "sunny, 75°F", result.ToolCalls[0].Result.Value)

	// user, assistant-with-calls, final assistant
	history, err := convs.History(result.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Len(t, history[1].ToolCalls, 1)
	assert.Equal(t, "It's sunny and 75°F in London.", history[2].Content)
}

func TestHandleTurn_ToolRequestProsePersisted(t *testing.T) {
	var round atomic.Int32
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		if round.Add(1) == 1 {
			d := domain.RequestTools(domain.ToolRequest{
				Tool:  "get_weather",
				Input: map[string]any{"location": "London"},
			})
			d.Answer = "Let me check the weather."
			return d, nil
		}
		return domain.FinalAnswer("Sunny."), nil
	}}
	orch, convs := newTestOrchestrator(t, gw, weatherRegistry(t))

	result, err := orch.HandleTurn(context.Background(), "", "weather in London?")
	require.NoError(t, err)

	history, err := convs.History(result.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "Let me check the weather.", history[1].Content,
		"prose around a tool request must survive into history")
	assert.Len(t, history[1].ToolCalls, 1)
}

func TestHandleTurn_ContinuesExistingConversation(t *testing.T) {
	gw := &model.MockGateway{}
	orch, _ := newTestOrchestrator(t, gw, tool.NewRegistry())

	first, err := orch.HandleTurn(context.Background(), "", "hello")
	require.NoError(t, err)

	second, err := orch.HandleTurn(context.Background(), first.ConversationID, "again")
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
}

func TestHandleTurn_UnknownConversationFails(t *testing.T) {
	gw := &model.MockGateway{}
	orch, convs := newTestOrchestrator(t, gw, tool.NewRegistry())

	_, err := orch.HandleTurn(context.Background(), "no-such-id", "hello")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, convs.Exists("no-such-id"))
}

func TestHandleTurn_RetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		if attempts.Add(1) < 3 {
			return domain.Decision{}, model.Unavailable("mock", nil, "flaking")
		}
		return domain.FinalAnswer("recovered"), nil
	}}
	orch, _ := newTestOrchestrator(t, gw, tool.NewRegistry())

	result, err := orch.HandleTurn(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Response)
	assert.False(t, result.Degraded)
	assert.EqualValues(t, 3, attempts.Load())
}

func TestHandleTurn_GatewayExhaustionDegrades(t *testing.T) {
	var attempts atomic.Int32
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		attempts.Add(1)
		return domain.Decision{}, model.Unavailable("mock", nil, "hard down")
	}}
	orch, convs := newTestOrchestrator(t, gw, tool.NewRegistry())

	result, err := orch.HandleTurn(context.Background(), "", "hello")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, gatewayDownAnswer, result.Response)
	assert.EqualValues(t, 3, attempts.Load())

	// user message and apologetic answer are both persisted
	history, err := convs.History(result.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, gatewayDownAnswer, history[1].Content)
}

func TestHandleTurn_RoundBudgetDegrades(t *testing.T) {
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		// never stops asking for tools
		return domain.RequestTools(domain.ToolRequest{Tool: "get_weather", Input: map[string]any{"location": "x"}}), nil
	}}
	orch, _ := newTestOrchestrator(t, gw, weatherRegistry(t))

	result, err := orch.HandleTurn(context.Background(), "", "loop forever")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, roundLimitAnswer, result.Response)
	assert.Equal(t, 4, result.Rounds)
	assert.Len(t, result.ToolCalls, 4)
}

func TestHandleTurn_UnknownToolDoesNotAbortTurn(t *testing.T) {
	var round atomic.Int32
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		if round.Add(1) == 1 {
			return domain.RequestTools(domain.ToolRequest{Tool: "time_travel", Input: map[string]any{}}), nil
		}
		return domain.FinalAnswer("I can't do that, sorry."), nil
	}}
	orch, _ := newTestOrchestrator(t, gw, tool.NewRegistry())

	result, err := orch.HandleTurn(context.Background(), "", "go back to 1985")
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	require.Len(t, result.ToolCalls, 1)
	require.True(t, result.ToolCalls[0].Result.Failed())
	assert.Equal(t, domain.FailureToolNotFound, result.ToolCalls[0].Result.Failure.Kind)
	assert.Equal(t, "I can't do that, sorry.", result.Response)
}

func TestHandleTurn_ToolFailureVisibleToModel(t *testing.T) {
	var sawFailure atomic.Bool
	var round atomic.Int32
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		if round.Add(1) == 1 {
			return domain.RequestTools(domain.ToolRequest{Tool: "broken", Input: map[string]any{}}), nil
		}
		for _, msg := range history {
			for _, call := range msg.ToolCalls {
				if call.Result.Failed() {
					sawFailure.Store(true)
				}
			}
		}
		return domain.FinalAnswer("working around it"), nil
	}}

	reg := tool.NewRegistry()
	reg.Register(&tool.Tool{
		Name:    "broken",
		Timeout: time.Second,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			return nil, assert.AnError
		},
	})
	orch, _ := newTestOrchestrator(t, gw, reg)

	result, err := orch.HandleTurn(context.Background(), "", "try the broken tool")
	require.NoError(t, err)
	assert.Equal(t, "working around it", result.Response)
	assert.True(t, sawFailure.Load(), "second round must see the failure in history")
}

func TestHandleTurn_SerializesSameConversation(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return domain.FinalAnswer("ok"), nil
	}}
	orch, convs := newTestOrchestrator(t, gw, tool.NewRegistry())

	id, err := convs.Create()
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := orch.HandleTurn(context.Background(), id, "hi")
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	assert.EqualValues(t, 1, maxInFlight.Load(), "turns on one conversation must not interleave")

	history, err := convs.History(id)
	require.NoError(t, err)
	assert.Len(t, history, 8)
}

func TestHandleTurnStream_EmitsEvents(t *testing.T) {
	var round atomic.Int32
	gw := &model.MockGateway{DecideFunc: func(ctx context.Context, history []domain.Message, tools []tool.Definition) (domain.Decision, error) {
		if round.Add(1) == 1 {
			return domain.RequestTools(domain.ToolRequest{Tool: "get_weather", Input: map[string]any{"location": "London"}}), nil
		}
		return domain.FinalAnswer("sunny"), nil
	}}
	orch, _ := newTestOrchestrator(t, gw, weatherRegistry(t))

	var kinds []string
	_, err := orch.HandleTurnStream(context.Background(), "", "weather?", func(ev TurnEvent) {
		kinds = append(kinds, ev.Kind)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tool_start", "tool_result", "final"}, kinds)
}

func TestDeleteConversation_Idempotent(t *testing.T) {
	gw := &model.MockGateway{}
	orch, convs := newTestOrchestrator(t, gw, tool.NewRegistry())

	result, err := orch.HandleTurn(context.Background(), "", "hello")
	require.NoError(t, err)

	require.NoError(t, orch.DeleteConversation(result.ConversationID))
	assert.False(t, convs.Exists(result.ConversationID))
	assert.NoError(t, orch.DeleteConversation(result.ConversationID))
}
