package agent

import (
	"context"
	"time"

	"github.com/dmaher/parley/internal/config"
	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/logging"
	"github.com/dmaher/parley/internal/model"
	"github.com/dmaher/parley/internal/store"
	"github.com/dmaher/parley/internal/tool"
)

// Degraded answers returned when a turn cannot complete normally. The user
// message is already persisted by then, so the conversation stays replayable.
const (
	roundLimitAnswer  = "I wasn't able to fully answer your question within my tool budget. Please try rephrasing or narrowing the question."
	gatewayDownAnswer = "I'm sorry, I'm having trouble reaching my language model right now. Please try again in a moment."
	turnExpiredAnswer = "I'm sorry, answering took longer than I allow for a single question. Please try again, perhaps with a simpler question."
)

// TurnResult is the outcome of processing one user message.
type TurnResult struct {
	Response       string            `json:"response"`
	ConversationID string            `json:"conversationId"`
	ToolCalls      []domain.ToolCall `json:"toolCalls,omitempty"`
	Degraded       bool              `json:"degraded,omitempty"`
	Rounds         int               `json:"rounds"`
	Duration       time.Duration     `json:"duration"`
}

// Orchestrator runs the bounded decide/dispatch loop for each turn.
type Orchestrator struct {
	gateway    model.Gateway
	store      store.ConversationStore
	registry   *tool.Registry
	dispatcher *Dispatcher
	cfg        config.AgentConfig
	log        *logging.Logger
}

// NewOrchestrator wires the loop over its collaborators.
func NewOrchestrator(
	gateway model.Gateway,
	convs store.ConversationStore,
	registry *tool.Registry,
	dispatcher *Dispatcher,
	cfg config.AgentConfig,
	log *logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		gateway:    gateway,
		store:      convs,
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log.Sub("agent"),
	}
}

// TurnEvent reports loop progress to streaming consumers.
// Kind is one of "tool_start", "tool_result", "final".
type TurnEvent struct {
	Kind  string           `json:"kind"`
	Tool  string           `json:"tool,omitempty"`
	Call  *domain.ToolCall `json:"call,omitempty"`
	Text  string           `json:"text,omitempty"`
	Round int              `json:"round,omitempty"`
}

// TurnObserver receives TurnEvents as a turn progresses. May be nil.
type TurnObserver func(TurnEvent)

// HandleTurn processes one user message against a conversation and returns
// the assistant's answer. An empty conversationID starts a new conversation;
// an unknown one fails with store.ErrNotFound before anything is persisted.
//
// Turns on the same conversation are serialized; the user message is
// persisted before the first model call, so even a degraded turn leaves the
// history consistent.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID, query string) (*TurnResult, error) {
	return o.handleTurn(ctx, conversationID, query, nil)
}

// HandleTurnStream is HandleTurn with per-round progress events.
func (o *Orchestrator) HandleTurnStream(ctx context.Context, conversationID, query string, observe TurnObserver) (*TurnResult, error) {
	return o.handleTurn(ctx, conversationID, query, observe)
}

func (o *Orchestrator) handleTurn(ctx context.Context, conversationID, query string, observe TurnObserver) (*TurnResult, error) {
	start := time.Now()

	var err error
	if conversationID == "" {
		conversationID, err = o.store.Create()
		if err != nil {
			return nil, err
		}
	} else if !o.store.Exists(conversationID) {
		return nil, store.ErrNotFound
	}

	release := o.store.Acquire(conversationID)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.cfg.TurnTimeoutSeconds)*time.Second)
	defer cancel()

	if err := o.store.Append(conversationID, domain.Message{
		Role:    domain.RoleUser,
		Content: query,
	}); err != nil {
		return nil, err
	}

	o.log.Info().
		Str("conversationId", conversationID).
		Int("queryLen", len(query)).
		Msg("processing turn")

	defs := o.registry.Definitions()
	var trace []domain.ToolCall

	finish := func(answer string, degraded bool, rounds int) (*TurnResult, error) {
		if err := o.store.Append(conversationID, domain.Message{
			Role:    domain.RoleAssistant,
			Content: answer,
		}); err != nil {
			return nil, err
		}
		if observe != nil {
			observe(TurnEvent{Kind: "final", Text: answer, Round: rounds})
		}
		o.log.Info().
			Str("conversationId", conversationID).
			Int("rounds", rounds).
			Int("toolCalls", len(trace)).
			Bool("degraded", degraded).
			Dur("duration", time.Since(start)).
			Msg("turn complete")
		return &TurnResult{
			Response:       answer,
			ConversationID: conversationID,
			ToolCalls:      trace,
			Degraded:       degraded,
			Rounds:         rounds,
			Duration:       time.Since(start),
		}, nil
	}

	for round := 1; round <= o.cfg.MaxRounds; round++ {
		history, err := o.store.History(conversationID)
		if err != nil {
			return nil, err
		}

		decision, err := o.decideWithRetry(ctx, history, defs)
		if err != nil {
			if ctx.Err() != nil {
				o.log.Warn().Str("conversationId", conversationID).Msg("turn deadline expired")
				return finish(turnExpiredAnswer, true, round)
			}
			o.log.Error().Err(err).Str("conversationId", conversationID).Msg("model gateway exhausted")
			return finish(gatewayDownAnswer, true, round)
		}

		if decision.Kind == domain.DecisionFinal {
			return finish(decision.Answer, false, round)
		}

		if observe != nil {
			for _, req := range decision.Requests {
				observe(TurnEvent{Kind: "tool_start", Tool: req.Tool, Round: round})
			}
		}

		calls := o.dispatcher.Dispatch(ctx, decision.Requests)
		trace = append(trace, calls...)

		if observe != nil {
			for i := range calls {
				observe(TurnEvent{Kind: "tool_result", Tool: calls[i].Name, Call: &calls[i], Round: round})
			}
		}

		// The assistant message carries the prose around the tool calls plus
		// the resolved calls; history rendering shows their results to the
		// model on the next round.
		if err := o.store.Append(conversationID, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   decision.Answer,
			ToolCalls: calls,
		}); err != nil {
			return nil, err
		}
	}

	o.log.Warn().
		Str("conversationId", conversationID).
		Int("maxRounds", o.cfg.MaxRounds).
		Msg("round budget exhausted")
	return finish(roundLimitAnswer, true, o.cfg.MaxRounds)
}

// decideWithRetry calls the gateway up to GatewayAttempts times, backing off
// linearly between attempts. Only gateway-classified errors are retried.
func (o *Orchestrator) decideWithRetry(ctx context.Context, history []domain.Message, defs []tool.Definition) (domain.Decision, error) {
	backoff := time.Duration(o.cfg.RetryBackoffMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= o.cfg.GatewayAttempts; attempt++ {
		decision, err := o.gateway.Decide(ctx, history, defs)
		if err == nil {
			return decision, nil
		}
		lastErr = err

		if !model.IsRetryable(err) || ctx.Err() != nil {
			return domain.Decision{}, err
		}

		o.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("maxAttempts", o.cfg.GatewayAttempts).
			Msg("model call failed")

		if attempt < o.cfg.GatewayAttempts {
			select {
			case <-time.After(backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return domain.Decision{}, ctx.Err()
			}
		}
	}
	return domain.Decision{}, lastErr
}

// DeleteConversation removes a conversation. Idempotent: deleting an unknown
// id succeeds.
func (o *Orchestrator) DeleteConversation(id string) error {
	return o.store.Delete(id)
}

// Ready reports whether the model gateway has credentials configured.
func (o *Orchestrator) Ready() bool {
	return o.gateway.Ready()
}
