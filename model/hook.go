package model

import "context"

// HookMode controls how a group of hooks at the same lifecycle point is
// scheduled.
type HookMode string

const (
	// HookModeSequential runs hooks one at a time in declaration order.
	HookModeSequential HookMode = "sequential"
	// HookModeParallel runs hooks concurrently and waits for all of them.
	HookModeParallel HookMode = "parallel"
)

// Hook is the capability contract for a unit of side-effecting logic run at
// a lifecycle point.
type Hook interface {
	Execute(ctx context.Context, hctx *HookContext) error
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, hctx *HookContext) error

// Execute implements Hook.
func (f HookFunc) Execute(ctx context.Context, hctx *HookContext) error {
	return f(ctx, hctx)
}

// HookDescriptor is the configuration plus capability for one hook.
type HookDescriptor struct {
	Name string
	Hook Hook
	Mode HookMode

	// ContinueOnFailure swallows a failure and continues with the remaining
	// hooks in the batch; otherwise the failure aborts the batch and
	// propagates.
	ContinueOnFailure bool

	// IsAsync schedules the hook fire-and-forget on the background
	// supervisor; the calling operation returns once it is scheduled.
	IsAsync bool

	// LogExecutionHistory appends a Success history entry after the hook
	// completes. Failed entries are always appended regardless of this flag.
	LogExecutionHistory bool

	Metadata map[string]any
}

// NewHook is the canonical hook registration constructor: a named descriptor
// wrapping a capability, defaulting to sequential, synchronous, abort on
// failure, no history logging. Options adjust the defaults.
func NewHook(name string, h Hook, opts ...HookOption) HookDescriptor {
	d := HookDescriptor{
		Name: name,
		Hook: h,
		Mode: HookModeSequential,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// NewHookFunc registers an inline closure as a hook.
func NewHookFunc(name string, f HookFunc, opts ...HookOption) HookDescriptor {
	return NewHook(name, f, opts...)
}

// HookOption adjusts a HookDescriptor at construction time.
type HookOption func(*HookDescriptor)

// Parallel sets the parallel execution mode.
func Parallel() HookOption {
	return func(d *HookDescriptor) { d.Mode = HookModeParallel }
}

// Async marks the hook fire-and-forget.
func Async() HookOption {
	return func(d *HookDescriptor) { d.IsAsync = true }
}

// ContinueOnFailure makes a failure non-fatal to the rest of the batch.
func ContinueOnFailure() HookOption {
	return func(d *HookDescriptor) { d.ContinueOnFailure = true }
}

// LogHistory appends a Success history entry after each execution.
func LogHistory() HookOption {
	return func(d *HookDescriptor) { d.LogExecutionHistory = true }
}

// WithMetadata merges metadata into the descriptor. Hook history entries
// carry the merged metadata.
func WithMetadata(md map[string]any) HookOption {
	return func(d *HookDescriptor) {
		if d.Metadata == nil {
			d.Metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			d.Metadata[k] = v
		}
	}
}

// HookContext exposes the request, the input payload, the performer, and the
// synchronized history sink to an executing hook.
type HookContext struct {
	Request     *RequestInstance
	Definition  *Definition
	Payload     map[string]any
	PerformedBy string
	Roles       []string
	Groups      []string
	ActionName  string

	// History serializes appends from concurrently finishing hooks.
	History *HistorySink
}
