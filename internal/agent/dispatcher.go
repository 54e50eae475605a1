// Package agent contains the orchestration loop and the tool dispatcher:
// the pieces that turn one user message into one assistant answer, calling
// the model gateway and tools as many rounds as the loop budget allows.
package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmaher/parley/internal/cache"
	"github.com/dmaher/parley/internal/config"
	"github.com/dmaher/parley/internal/domain"
	"github.com/dmaher/parley/internal/logging"
	"github.com/dmaher/parley/internal/tool"
)

// Dispatcher executes a batch of tool requests concurrently and returns
// resolved calls in request order. A failing tool never fails the batch;
// its slot carries a failure result instead.
type Dispatcher struct {
	registry       *tool.Registry
	results        *cache.Cache
	defaultTimeout time.Duration
	grace          time.Duration
	log            *logging.Logger
}

// NewDispatcher creates a dispatcher over the given registry and result cache.
func NewDispatcher(registry *tool.Registry, results *cache.Cache, cfg config.ToolsConfig, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		registry:       registry,
		results:        results,
		defaultTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		grace:          time.Duration(cfg.DispatchGraceSecs) * time.Second,
		log:            log.Sub("dispatch"),
	}
}

// Dispatch runs all requests in parallel. The batch deadline is the largest
// per-tool timeout plus a grace margin, so one slow tool cannot hold the
// turn longer than its own budget.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []domain.ToolRequest) []domain.ToolCall {
	calls := make([]domain.ToolCall, len(reqs))

	batchCtx, cancel := context.WithTimeout(ctx, d.batchBudget(reqs))
	defer cancel()

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req domain.ToolRequest) {
			defer wg.Done()
			calls[i] = d.run(batchCtx, req)
		}(i, req)
	}
	wg.Wait()

	return calls
}

func (d *Dispatcher) batchBudget(reqs []domain.ToolRequest) time.Duration {
	budget := d.defaultTimeout
	for _, req := range reqs {
		if t, ok := d.registry.Get(req.Tool); ok && t.Timeout > budget {
			budget = t.Timeout
		}
	}
	return budget + d.grace
}

// run resolves a single request: lookup, validate, cache consult, execute.
func (d *Dispatcher) run(ctx context.Context, req domain.ToolRequest) domain.ToolCall {
	call := domain.ToolCall{Name: req.Tool, Input: req.Input}

	t, ok := d.registry.Get(req.Tool)
	if !ok {
		call.Result = domain.Fail(domain.FailureToolNotFound, "no tool named %q is registered", req.Tool)
		return call
	}

	if t.Validate != nil {
		if err := t.Validate(req.Input); err != nil {
			call.Result = domain.Fail(domain.FailureInvalidInput, "%v", err)
			return call
		}
	}

	var key string
	if t.Cacheable && d.results != nil {
		key = cache.Key(t.Name, req.Input)
		if key != "" {
			if v, hit := d.results.Get(key); hit {
				d.log.Debug().Str("tool", t.Name).Msg("cache hit")
				call.Result = domain.Succeed(v)
				return call
			}
		}
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The executor runs in its own goroutine so a tool that ignores its
	// context cannot hold the dispatch past the deadline; the straggler is
	// abandoned and its slot resolves as a timeout.
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		v, err := t.Execute(execCtx, req.Input)
		done <- outcome{value: v, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-execCtx.Done():
		d.log.Warn().Str("tool", t.Name).Dur("elapsed", time.Since(start)).Msg("tool abandoned at deadline")
		call.Result = domain.Fail(domain.FailureTimeout, "tool %q did not finish within %s", t.Name, timeout)
		return call
	}
	elapsed := time.Since(start)

	if out.err != nil {
		kind := domain.FailureExecution
		if errors.Is(out.err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			kind = domain.FailureTimeout
		}
		d.log.Warn().Str("tool", t.Name).Dur("elapsed", elapsed).Err(out.err).Msg("tool failed")
		call.Result = domain.Fail(kind, "%v", out.err)
		return call
	}

	d.log.Debug().Str("tool", t.Name).Dur("elapsed", elapsed).Msg("tool executed")

	if key != "" {
		d.results.Put(key, out.value, t.CacheTTL)
	}
	call.Result = domain.Succeed(out.value)
	return call
}
