package hook

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gatehouse-io/gatehouse/model"
)

// recordingHook appends its name to a shared order slice.
type recordingHook struct {
	name  string
	mu    *sync.Mutex
	order *[]string
	err   error
	sleep time.Duration
}

func (h *recordingHook) Execute(_ context.Context, _ *model.HookContext) error {
	if h.sleep > 0 {
		time.Sleep(h.sleep)
	}
	h.mu.Lock()
	*h.order = append(*h.order, h.name)
	h.mu.Unlock()
	return h.err
}

func newHookContext() *model.HookContext {
	req := &model.RequestInstance{ID: "req-1", CurrentState: "Pending"}
	return &model.HookContext{
		Request:     req,
		PerformedBy: "alice",
		History:     model.NewHistorySink(req),
	}
}

func newTestDispatcher() (*Dispatcher, *Supervisor) {
	sup := NewSupervisor(nil)
	return NewDispatcher(nil, sup), sup
}

func TestExecuteAll_sequentialOrder(t *testing.T) {
	d, _ := newTestDispatcher()
	hctx := newHookContext()

	var mu sync.Mutex
	var order []string
	hooks := []model.HookDescriptor{
		model.NewHook("first", &recordingHook{name: "first", mu: &mu, order: &order}),
		model.NewHook("second", &recordingHook{name: "second", mu: &mu, order: &order}),
		model.NewHook("third", &recordingHook{name: "third", mu: &mu, order: &order}),
	}

	if err := d.ExecuteAll(context.Background(), hooks, hctx); err != nil {
		t.Fatalf("ExecuteAll error: %v", err)
	}
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Errorf("order = %v, want [first second third]", order)
	}
}

func TestExecuteAll_parallelAllRun(t *testing.T) {
	d, _ := newTestDispatcher()
	hctx := newHookContext()

	var count atomic.Int32
	mk := func(name string) model.HookDescriptor {
		return model.NewHookFunc(name, func(_ context.Context, _ *model.HookContext) error {
			count.Add(1)
			return nil
		}, model.Parallel())
	}

	hooks := []model.HookDescriptor{mk("a"), mk("b"), mk("c"), mk("d")}
	if err := d.ExecuteAll(context.Background(), hooks, hctx); err != nil {
		t.Fatalf("ExecuteAll error: %v", err)
	}
	if count.Load() != 4 {
		t.Errorf("executed %d parallel hooks, want 4", count.Load())
	}
}

func TestExecuteAll_failureAbortsBatch(t *testing.T) {
	d, _ := newTestDispatcher()
	hctx := newHookContext()

	var mu sync.Mutex
	var order []string
	boom := errors.New("boom")
	hooks := []model.HookDescriptor{
		model.NewHook("ok", &recordingHook{name: "ok", mu: &mu, order: &order}),
		model.NewHook("fails", &recordingHook{name: "fails", mu: &mu, order: &order, err: boom}),
		model.NewHook("never", &recordingHook{name: "never", mu: &mu, order: &order}),
	}

	err := d.ExecuteAll(context.Background(), hooks, hctx)
	if err == nil {
		t.Fatal("expected ExecuteAll to rethrow the hook failure")
	}
	if model.ErrorCode(err) != model.ErrHook {
		t.Errorf("error code = %q, want %q", model.ErrorCode(err), model.ErrHook)
	}
	if len(order) != 2 {
		t.Errorf("order = %v, want the third hook skipped", order)
	}

	// Exactly one Failed history entry for the failing hook, regardless of
	// the logging flag.
	failed := 0
	for _, entry := range hctx.History.Entries() {
		if entry.Action == "fails" && entry.Status == model.TransitionStatusFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("failed history entries = %d, want 1", failed)
	}
}

func TestExecuteAll_continueOnFailure(t *testing.T) {
	d, _ := newTestDispatcher()
	hctx := newHookContext()

	var mu sync.Mutex
	var order []string
	hooks := []model.HookDescriptor{
		model.NewHook("fails", &recordingHook{name: "fails", mu: &mu, order: &order, err: errors.New("boom")},
			model.ContinueOnFailure()),
		model.NewHook("still-runs", &recordingHook{name: "still-runs", mu: &mu, order: &order}),
	}

	if err := d.ExecuteAll(context.Background(), hooks, hctx); err != nil {
		t.Fatalf("ExecuteAll error: %v", err)
	}
	if len(order) != 2 {
		t.Errorf("order = %v, want both hooks to run", order)
	}
}

func TestExecuteAll_historyLogging(t *testing.T) {
	d, _ := newTestDispatcher()
	hctx := newHookContext()

	hooks := []model.HookDescriptor{
		model.NewHookFunc("logged", func(_ context.Context, _ *model.HookContext) error { return nil },
			model.LogHistory(), model.WithMetadata(map[string]any{"channel": "email"})),
		model.NewHookFunc("silent", func(_ context.Context, _ *model.HookContext) error { return nil }),
	}

	if err := d.ExecuteAll(context.Background(), hooks, hctx); err != nil {
		t.Fatalf("ExecuteAll error: %v", err)
	}

	entries := hctx.History.Entries()
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want only the logged hook", len(entries))
	}
	e := entries[0]
	if e.Action != "logged" || e.Type != model.TransitionTypeEvent || e.Status != model.TransitionStatusSuccess {
		t.Errorf("entry = %+v, want a Success Event for %q", e, "logged")
	}
	if e.Metadata["channel"] != "email" {
		t.Errorf("metadata = %v, want the descriptor metadata merged", e.Metadata)
	}
	if _, ok := e.Metadata["duration_ms"]; !ok {
		t.Error("expected duration_ms in metadata")
	}
}

func TestExecuteAll_asyncNotAwaited(t *testing.T) {
	d, sup := newTestDispatcher()
	hctx := newHookContext()

	release := make(chan struct{})
	ran := make(chan struct{})
	hooks := []model.HookDescriptor{
		model.NewHookFunc("bg", func(_ context.Context, _ *model.HookContext) error {
			<-release
			close(ran)
			return nil
		}, model.Async()),
	}

	done := make(chan error, 1)
	go func() { done <- d.ExecuteAll(context.Background(), hooks, hctx) }()

	// ExecuteAll returns while the background hook is still blocked.
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ExecuteAll error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteAll blocked on a fire-and-forget hook")
	}

	close(release)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("background hook never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Drain(ctx); err != nil {
		t.Fatalf("Drain error: %v", err)
	}
}

func TestExecuteAll_asyncSequentialChainOrder(t *testing.T) {
	d, sup := newTestDispatcher()
	hctx := newHookContext()

	var mu sync.Mutex
	var order []string
	hooks := []model.HookDescriptor{
		model.NewHook("bg-1", &recordingHook{name: "bg-1", mu: &mu, order: &order, sleep: 20 * time.Millisecond},
			model.Async()),
		model.NewHook("bg-2", &recordingHook{name: "bg-2", mu: &mu, order: &order}, model.Async()),
	}

	if err := d.ExecuteAll(context.Background(), hooks, hctx); err != nil {
		t.Fatalf("ExecuteAll error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Drain(ctx); err != nil {
		t.Fatalf("Drain error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "bg-1" || order[1] != "bg-2" {
		t.Errorf("order = %v, want the async chain to preserve declaration order", order)
	}
}

func TestSupervisor_faultReporting(t *testing.T) {
	var mu sync.Mutex
	var faults []string
	sup := NewSupervisor(nil, WithFaultReporter(func(hookName string, _ error) {
		mu.Lock()
		faults = append(faults, hookName)
		mu.Unlock()
	}))
	d := NewDispatcher(nil, sup)
	hctx := newHookContext()

	hooks := []model.HookDescriptor{
		model.NewHookFunc("bg-fails", func(_ context.Context, _ *model.HookContext) error {
			return errors.New("boom")
		}, model.Async(), model.Parallel()),
	}

	if err := d.ExecuteAll(context.Background(), hooks, hctx); err != nil {
		t.Fatalf("ExecuteAll error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Drain(ctx); err != nil {
		t.Fatalf("Drain error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(faults) != 1 || faults[0] != "bg-fails" {
		t.Errorf("faults = %v, want [bg-fails]", faults)
	}
}

func TestSupervisor_rejectsAfterDrain(t *testing.T) {
	sup := NewSupervisor(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sup.Drain(ctx); err != nil {
		t.Fatalf("Drain error: %v", err)
	}

	h := sup.Schedule(context.Background(), "late", func(_ context.Context) error { return nil })
	if err := h.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled for work scheduled after Drain", err)
	}
}

func TestExecuteAll_cancelledContext(t *testing.T) {
	d, _ := newTestDispatcher()
	hctx := newHookContext()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	hooks := []model.HookDescriptor{
		model.NewHookFunc("skipped", func(_ context.Context, _ *model.HookContext) error {
			ran = true
			return nil
		}),
	}

	if err := d.ExecuteAll(ctx, hooks, hctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ExecuteAll = %v, want context.Canceled", err)
	}
	if ran {
		t.Error("expected no hook to run under a cancelled context")
	}
}
