package hook

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gatehouse-io/gatehouse/observability"
)

// FaultReporter receives failures from fire-and-forget hooks. Without it,
// background failures would be invisible to the process.
type FaultReporter func(hookName string, err error)

// Handle tracks one scheduled unit of background work.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Wait blocks until the work finishes or the context is done, and returns
// the work's error.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervisor runs fire-and-forget hook work on tracked goroutines so that
// failures are observable and a process can drain pending work at shutdown.
type Supervisor struct {
	logger  *zap.Logger
	metrics *observability.Metrics
	fault   FaultReporter

	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	pending int
}

// SupervisorOption adjusts a Supervisor at construction time.
type SupervisorOption func(*Supervisor)

// WithFaultReporter replaces the default fault reporter (an error log).
func WithFaultReporter(f FaultReporter) SupervisorOption {
	return func(s *Supervisor) { s.fault = f }
}

// WithSupervisorMetrics tracks active background hooks and fault counts.
func WithSupervisorMetrics(m *observability.Metrics) SupervisorOption {
	return func(s *Supervisor) { s.metrics = m }
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(logger *zap.Logger, opts ...SupervisorOption) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Supervisor{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.fault == nil {
		s.fault = func(hookName string, err error) {
			logger.Error("background hook failed",
				zap.String("hook", hookName),
				zap.Error(err),
			)
		}
	}
	return s
}

// Schedule runs fn on a tracked goroutine and returns its handle. After
// Close, work is rejected and the returned handle completes immediately with
// the context error.
func (s *Supervisor) Schedule(ctx context.Context, name string, fn func(ctx context.Context) error) *Handle {
	h := &Handle{name: name, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.err = context.Canceled
		close(h.done)
		return h
	}
	s.wg.Add(1)
	s.pending++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.BackgroundHooksActive.Inc()
	}

	go func() {
		defer func() {
			s.mu.Lock()
			s.pending--
			s.mu.Unlock()
			s.wg.Done()
			if s.metrics != nil {
				s.metrics.BackgroundHooksActive.Dec()
			}
			close(h.done)
		}()
		h.err = fn(ctx)
	}()

	return h
}

// Pending returns the number of scheduled units that have not finished.
func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// reportFault forwards a background failure to the fault reporter.
func (s *Supervisor) reportFault(hookName string, err error) {
	if s.metrics != nil {
		s.metrics.BackgroundHookFaults.WithLabelValues(hookName).Inc()
	}
	s.fault(hookName, err)
}

// Drain stops accepting new work and waits for pending work to finish, or
// for the context to expire.
func (s *Supervisor) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
