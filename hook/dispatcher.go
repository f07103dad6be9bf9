// Package hook executes ordered hook sets with per-hook execution mode,
// failure policy, and history recording.
package hook

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatehouse-io/gatehouse/model"
	"github.com/gatehouse-io/gatehouse/observability"
)

// Dispatcher executes hook batches. Synchronous hooks are awaited; async
// hooks are handed to the Supervisor and run after the caller returns.
type Dispatcher struct {
	logger     *zap.Logger
	metrics    *observability.Metrics
	supervisor *Supervisor
}

// DispatcherOption adjusts a Dispatcher at construction time.
type DispatcherOption func(*Dispatcher)

// WithMetrics records hook execution counts and durations.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a Dispatcher. The supervisor owns all fire-and-forget
// work; pass the same instance to every dispatcher so a process can drain it
// on shutdown.
func NewDispatcher(logger *zap.Logger, supervisor *Supervisor, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{logger: logger, supervisor: supervisor}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ExecuteAll runs a hook batch against the given context. Synchronous
// sequential hooks run one at a time in declaration order; synchronous
// parallel hooks run concurrently and all of them finish before ExecuteAll
// returns. A failure with ContinueOnFailure=false aborts the remaining
// synchronous hooks and propagates. Fire-and-forget hooks are scheduled on
// the supervisor and merely scheduled, not awaited.
func (d *Dispatcher) ExecuteAll(ctx context.Context, hooks []model.HookDescriptor, hctx *model.HookContext) error {
	if len(hooks) == 0 {
		return nil
	}

	var syncSeq, syncPar, asyncSeq, asyncPar []model.HookDescriptor
	for _, h := range hooks {
		switch {
		case h.IsAsync && h.Mode == model.HookModeParallel:
			asyncPar = append(asyncPar, h)
		case h.IsAsync:
			asyncSeq = append(asyncSeq, h)
		case h.Mode == model.HookModeParallel:
			syncPar = append(syncPar, h)
		default:
			syncSeq = append(syncSeq, h)
		}
	}

	// Schedule background work first so a synchronous failure does not
	// silently drop notification hooks that were declared alongside it.
	d.scheduleAsync(ctx, asyncSeq, asyncPar, hctx)

	for _, h := range syncSeq {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.runOne(ctx, h, hctx); err != nil {
			if h.ContinueOnFailure {
				continue
			}
			return err
		}
	}

	return d.runParallel(ctx, syncPar, hctx)
}

// runParallel scatter/gathers a parallel group. All hooks run to completion
// even when siblings fail; the first fatal failure propagates afterwards.
func (d *Dispatcher) runParallel(ctx context.Context, hooks []model.HookDescriptor, hctx *model.HookContext) error {
	if len(hooks) == 0 {
		return nil
	}

	type parResult struct {
		desc model.HookDescriptor
		err  error
	}

	ch := make(chan parResult, len(hooks))
	var wg sync.WaitGroup

	for _, h := range hooks {
		wg.Add(1)
		go func(desc model.HookDescriptor) {
			defer wg.Done()
			ch <- parResult{desc: desc, err: d.runOne(ctx, desc, hctx)}
		}(h)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	var firstErr error
	for r := range ch {
		if r.err != nil && !r.desc.ContinueOnFailure && firstErr == nil {
			firstErr = r.err
		}
	}
	return firstErr
}

// scheduleAsync hands fire-and-forget hooks to the supervisor. Sequential
// async hooks run as one ordered background chain; parallel async hooks are
// scheduled individually.
func (d *Dispatcher) scheduleAsync(ctx context.Context, seq, par []model.HookDescriptor, hctx *model.HookContext) {
	if d.supervisor == nil || (len(seq) == 0 && len(par) == 0) {
		return
	}

	// Background hooks outlive the call that scheduled them.
	bg := context.WithoutCancel(ctx)

	if len(seq) > 0 {
		chain := append([]model.HookDescriptor(nil), seq...)
		d.supervisor.Schedule(bg, "chain", func(ctx context.Context) error {
			for _, h := range chain {
				if err := d.runOne(ctx, h, hctx); err != nil {
					d.supervisor.reportFault(h.Name, err)
					if !h.ContinueOnFailure {
						return err
					}
				}
			}
			return nil
		})
	}

	for _, h := range par {
		desc := h
		d.supervisor.Schedule(bg, desc.Name, func(ctx context.Context) error {
			if err := d.runOne(ctx, desc, hctx); err != nil {
				d.supervisor.reportFault(desc.Name, err)
				return err
			}
			return nil
		})
	}
}

// runOne executes a single hook, timing it and recording history. A Success
// entry is appended only when LogExecutionHistory is set; a Failed entry is
// always appended.
func (d *Dispatcher) runOne(ctx context.Context, desc model.HookDescriptor, hctx *model.HookContext) error {
	start := time.Now()
	err := desc.Hook.Execute(ctx, hctx)
	elapsed := time.Since(start)

	if d.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		d.metrics.HookExecutionsTotal.WithLabelValues(desc.Name, outcome).Inc()
		d.metrics.HookDuration.WithLabelValues(desc.Name).Observe(elapsed.Seconds())
	}

	if err != nil {
		d.logger.Error("hook failed",
			zap.String("hook", desc.Name),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		hctx.History.Append(d.historyEntry(desc, hctx, model.TransitionStatusFailed, elapsed, err))
		return model.NewHookError(desc.Name, err)
	}

	if desc.LogExecutionHistory {
		hctx.History.Append(d.historyEntry(desc, hctx, model.TransitionStatusSuccess, elapsed, nil))
	}
	return nil
}

// historyEntry builds an Event-type transition record for a hook execution,
// merging the descriptor metadata.
func (d *Dispatcher) historyEntry(desc model.HookDescriptor, hctx *model.HookContext, status string, elapsed time.Duration, err error) model.Transition {
	md := map[string]any{"duration_ms": elapsed.Milliseconds()}
	for k, v := range desc.Metadata {
		md[k] = v
	}
	if err != nil {
		md["error"] = err.Error()
	}

	state := ""
	if hctx.Request != nil {
		state = hctx.Request.CurrentState
	}

	return model.Transition{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		FromState:   state,
		ToState:     state,
		Action:      desc.Name,
		PerformedBy: hctx.PerformedBy,
		Type:        model.TransitionTypeEvent,
		Status:      status,
		Source:      "hook",
		Metadata:    md,
	}
}
