package model

import (
	"sync"
	"time"
)

// Request instance status constants. The status mirrors the type of the
// current state.
const (
	RequestStatusActive    = "active"
	RequestStatusCompleted = "completed"
	RequestStatusRejected  = "rejected"
	RequestStatusCancelled = "cancelled"
)

// Transition type constants. State changes use TransitionTypeDefault; hook
// executions are recorded as TransitionTypeEvent.
const (
	TransitionTypeDefault = "Transition"
	TransitionTypeEvent   = "Event"
)

// Transition outcome constants used on Event-type records.
const (
	TransitionStatusSuccess = "Success"
	TransitionStatusFailed  = "Failed"
)

// RequestInstance is one running or completed instance of a Definition. It
// carries the current payload snapshot and the append-only transition
// history. Created by Engine.Create and mutated only by Engine.ExecuteAction;
// the engine never deletes it.
type RequestInstance struct {
	ID           string         `json:"id"`
	DefinitionID string         `json:"definition_id"`
	CurrentState string         `json:"current_state"`
	Status       string         `json:"status"`
	Payload      map[string]any `json:"payload,omitempty"`
	History      []Transition   `json:"history"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Version      int            `json:"version"`

	// historyMu guards History. A background hook scheduled by one engine
	// call may still be appending while a later call against the same
	// instance appends its own records, so the lock lives on the instance,
	// not on any per-call structure.
	historyMu sync.Mutex
}

// AppendHistory adds a transition record to the history. All writers for the
// same instance, orchestrator and background hook goroutines alike,
// serialize on the instance lock.
func (r *RequestInstance) AppendHistory(t Transition) {
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	r.History = append(r.History, t)
}

// HistorySnapshot returns a copy of the history that is safe to read while
// background hooks may still be appending.
func (r *RequestInstance) HistorySnapshot() []Transition {
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	out := make([]Transition, len(r.History))
	copy(out, r.History)
	return out
}

// Transition is an immutable audit record of a state change or a hook
// execution. The history is the full audit trail of a request.
type Transition struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	FromState   string         `json:"from_state"`
	ToState     string         `json:"to_state"`
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"`
	Type        string         `json:"type"`
	Status      string         `json:"status,omitempty"`
	Source      string         `json:"source,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HistorySink is the append handle handed to hook executions. It carries no
// lock of its own: every sink for the same request delegates to the instance
// lock, so sinks built by different calls still serialize their appends.
type HistorySink struct {
	request *RequestInstance
}

// NewHistorySink creates a sink that appends to the given request's history.
func NewHistorySink(request *RequestInstance) *HistorySink {
	return &HistorySink{request: request}
}

// Append adds a transition record to the request history.
func (s *HistorySink) Append(t Transition) {
	s.request.AppendHistory(t)
}

// Entries returns a copy of the request history.
func (s *HistorySink) Entries() []Transition {
	return s.request.HistorySnapshot()
}

// ClonePayload returns a shallow copy of a payload snapshot. Used when a
// transition record captures the payload at the moment of the transition.
func ClonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
