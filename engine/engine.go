// Package engine drives workflow requests through their definition graph:
// create, execute-action, the auto-transition cascade, and the per-definition
// engine registry.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gatehouse-io/gatehouse/definition"
	"github.com/gatehouse-io/gatehouse/hook"
	"github.com/gatehouse-io/gatehouse/model"
	"github.com/gatehouse-io/gatehouse/observability"
	"github.com/gatehouse-io/gatehouse/validation"
)

const defaultCascadeLimit = 10

// Engine executes requests against one immutable Definition. The definition
// is validated at construction and never mutated, so concurrent calls against
// different requests need no synchronization; concurrent calls against the
// same request are the caller's problem and must be serialized by the
// persistence layer's optimistic versioning.
type Engine struct {
	def          *model.Definition
	dispatcher   *hook.Dispatcher
	pipeline     *validation.Pipeline
	logger       *zap.Logger
	metrics      *observability.Metrics
	uploader     model.Uploader
	cascadeLimit int
}

// Option adjusts an Engine at construction time.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithUploader sets the attachment-upload collaborator. Without one, pending
// inline attachments pass through untouched.
func WithUploader(u model.Uploader) Option {
	return func(e *Engine) { e.uploader = u }
}

// WithCascadeLimit overrides the maximum auto-transition cascade depth.
func WithCascadeLimit(limit int) Option {
	return func(e *Engine) { e.cascadeLimit = limit }
}

// New creates an engine for def. The definition is validated here; a
// malformed graph is a fatal wiring error.
func New(def *model.Definition, dispatcher *hook.Dispatcher, opts ...Option) (*Engine, error) {
	if def == nil {
		return nil, model.NewDefinitionError("definition is required")
	}
	if err := definition.NewValidator().Validate(def); err != nil {
		return nil, err
	}

	e := &Engine{
		def:          def,
		dispatcher:   dispatcher,
		pipeline:     validation.NewPipeline(),
		logger:       zap.NewNop(),
		cascadeLimit: defaultCascadeLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Definition returns the engine's immutable definition.
func (e *Engine) Definition() *model.Definition {
	return e.def
}

// Create initializes a request in the definition's start state, dispatches
// the on-create hooks, appends the synthetic creation transition, and runs
// the auto-transition cascade.
func (e *Engine) Create(ctx context.Context, req *model.RequestInstance, user *model.UserContext) error {
	if req == nil {
		return model.NewBadRequestError("request is required")
	}

	start, ok := e.def.StartState()
	if !ok {
		return model.NewDefinitionError(fmt.Sprintf("definition %q has no start state", e.def.ID))
	}

	ctx, span := observability.StartSpan(ctx, "engine.Create",
		observability.AttrDefinitionID.String(e.def.ID),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	now := time.Now().UTC()
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.DefinitionID = e.def.ID
	req.CurrentState = start.Name
	req.Status = model.RequestStatusActive
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Version == 0 {
		req.Version = 1
	}
	if req.Payload == nil {
		req.Payload = e.def.Schema.NewPayload()
	}

	hctx := e.hookContext(req, user, req.Payload, "")
	if err = e.dispatcher.ExecuteAll(ctx, e.def.OnCreateHooks, hctx); err != nil {
		return err
	}

	hctx.History.Append(e.creationRecord(req, now))

	if e.metrics != nil {
		e.metrics.RequestsCreatedTotal.WithLabelValues(e.def.ID).Inc()
	}
	e.logger.Info("request created",
		zap.String("definition", e.def.ID),
		zap.String("request", req.ID),
		zap.String("state", req.CurrentState),
	)

	err = e.cascade(ctx, req, user, 0)
	return err
}

// creationRecord builds the synthetic transition appended on create:
// action "Submitted" performed by "Requester", unless the definition
// overrides either field.
func (e *Engine) creationRecord(req *model.RequestInstance, now time.Time) model.Transition {
	action := "Submitted"
	performer := "Requester"
	if cr := e.def.CreationRecord; cr != nil {
		if cr.Action != "" {
			action = cr.Action
		}
		if cr.PerformedBy != "" {
			performer = cr.PerformedBy
		}
	}
	return model.Transition{
		ID:          uuid.New().String(),
		Timestamp:   now,
		ToState:     req.CurrentState,
		Action:      action,
		PerformedBy: performer,
		Type:        model.TransitionTypeDefault,
		Status:      model.TransitionStatusSuccess,
		Payload:     model.ClonePayload(req.Payload),
	}
}

// ExecuteAction runs one named action against the request: validation, then
// authorization, then the hook phases and the transition record, then the
// auto-transition cascade. Returns the mutated request.
func (e *Engine) ExecuteAction(
	ctx context.Context,
	req *model.RequestInstance,
	actionName string,
	user *model.UserContext,
	payload map[string]any,
) (*model.RequestInstance, error) {
	if req == nil {
		return nil, model.NewBadRequestError("request is required")
	}
	if err := e.execute(ctx, req, actionName, user, payload, 0, false); err != nil {
		return nil, err
	}
	return req, nil
}

// AvailableActions returns the current state's actions the user is
// authorized to perform, in declaration order. Auto actions carry no
// assignments and are therefore never listed.
func (e *Engine) AvailableActions(req *model.RequestInstance, user *model.UserContext) ([]model.Action, error) {
	state, ok := e.def.StateByName(req.CurrentState)
	if !ok {
		return nil, model.NewStateNotFoundError(req.CurrentState)
	}

	var actions []model.Action
	for _, a := range state.Actions {
		if authorized(&a, user) {
			actions = append(actions, a)
		}
	}
	return actions, nil
}

// CurrentState resolves the request's persisted state name against the
// definition. A stale name (the definition changed underneath a persisted
// request) surfaces as a state-not-found error.
func (e *Engine) CurrentState(req *model.RequestInstance) (*model.State, error) {
	state, ok := e.def.StateByName(req.CurrentState)
	if !ok {
		return nil, model.NewStateNotFoundError(req.CurrentState)
	}
	return state, nil
}

// execute is the single transition path. Cascade-fired auto actions enter
// with auto=true: the triggering caller was already authorized, and an auto
// action carries no assignments of its own.
func (e *Engine) execute(
	ctx context.Context,
	req *model.RequestInstance,
	actionName string,
	user *model.UserContext,
	payload map[string]any,
	depth int,
	auto bool,
) error {
	// 1. Resolve the current state and the action within it.
	state, ok := e.def.StateByName(req.CurrentState)
	if !ok {
		return model.NewStateNotFoundError(req.CurrentState)
	}
	action, ok := state.ActionByName(actionName)
	if !ok {
		return model.NewActionError(fmt.Sprintf("action %q not found in state %q", actionName, state.Name))
	}

	performer := ""
	if user != nil {
		performer = user.ID
	}

	ctx, span := observability.StartSpan(ctx, "engine.ExecuteAction",
		observability.AttrDefinitionID.String(e.def.ID),
		observability.AttrRequestID.String(req.ID),
		observability.AttrActionName.String(action.Name),
		observability.AttrStateName.String(state.Name),
		observability.AttrPerformedBy.String(performer),
		observability.AttrCascadeDepth.Int(depth),
	)
	start := time.Now()
	var err error
	defer func() {
		observability.EndSpanWithError(span, err)
		if e.metrics != nil {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			e.metrics.ActionExecutionsTotal.WithLabelValues(e.def.ID, action.Name, outcome).Inc()
			e.metrics.ActionDuration.WithLabelValues(e.def.ID, action.Name).Observe(time.Since(start).Seconds())
		}
	}()

	// 2. Resolve the effective payload: explicit argument, else the request's
	// current payload, else a default-constructed one.
	if payload == nil {
		payload = req.Payload
	}
	if payload == nil {
		payload = e.def.Schema.NewPayload()
	}

	// 3. Validate before any mutation.
	if err = e.pipeline.Validate(ctx, e.def.Schema, action, payload); err != nil {
		if e.metrics != nil {
			e.metrics.ValidationFailures.WithLabelValues(e.def.ID, action.Name).Inc()
		}
		return err
	}

	// 4. Authorize, still with zero mutation.
	if !auto && !authorized(action, user) {
		if e.metrics != nil {
			e.metrics.AuthorizationDenials.WithLabelValues(e.def.ID, action.Name).Inc()
		}
		e.logger.Warn("action denied",
			zap.String("definition", e.def.ID),
			zap.String("request", req.ID),
			zap.String("action", action.Name),
			zap.String("performed_by", performer),
		)
		return model.NewAuthorizationError(performer, action.AssignedRoles, action.AssignedGroups)
	}

	// 5. Resolve pending inline attachments into references through the
	// upload collaborator. Runs only for authorized executions.
	if err = e.uploadAttachments(ctx, payload); err != nil {
		return err
	}

	// 6. Resolve the routing target. Enter-hooks and the transition record
	// both follow the resolved target, not the static default.
	resolved := ResolveNextState(action, payload)
	target, ok := e.def.StateByName(resolved)
	if !ok {
		return model.NewStateNotFoundError(resolved)
	}

	hctx := e.hookContext(req, user, payload, action.Name)

	// 7. Hook phases: exit, action, enter.
	if err = e.dispatcher.ExecuteAll(ctx, state.OnExitHooks, hctx); err != nil {
		return err
	}
	if err = e.dispatcher.ExecuteAll(ctx, action.OnExecuteHooks, hctx); err != nil {
		return err
	}
	if err = e.dispatcher.ExecuteAll(ctx, target.OnEnterHooks, hctx); err != nil {
		return err
	}

	// 8. Append the transition record. Audit-relevant field changes between
	// the request's previous payload and the effective one travel as record
	// metadata.
	var meta map[string]any
	if changes := model.ChangedFields(e.def.Schema, req.Payload, payload); len(changes) > 0 {
		meta = map[string]any{"changed_fields": changes}
	}
	now := time.Now().UTC()
	hctx.History.Append(model.Transition{
		ID:          uuid.New().String(),
		Timestamp:   now,
		FromState:   state.Name,
		ToState:     target.Name,
		Action:      action.Name,
		PerformedBy: performer,
		Type:        model.TransitionTypeDefault,
		Status:      model.TransitionStatusSuccess,
		Payload:     model.ClonePayload(payload),
		Metadata:    meta,
	})
	if e.metrics != nil {
		e.metrics.TransitionsTotal.WithLabelValues(e.def.ID, state.Name, target.Name).Inc()
	}

	// 9. Definition-global transition hooks.
	if err = e.dispatcher.ExecuteAll(ctx, e.def.OnTransitionHooks, hctx); err != nil {
		return err
	}

	// 10. Settle the request into the new state.
	req.CurrentState = target.Name
	req.Status = statusFor(target.Type)
	req.Payload = payload
	req.UpdatedAt = now

	e.logger.Info("action executed",
		zap.String("definition", e.def.ID),
		zap.String("request", req.ID),
		zap.String("action", action.Name),
		zap.String("from", state.Name),
		zap.String("to", target.Name),
		zap.String("performed_by", performer),
	)

	// 11. Cascade into auto actions of the new state.
	err = e.cascade(ctx, req, user, depth)
	return err
}

// uploadAttachments resolves pending inline attachments declared by the
// payload manifest into references. The attachment field name doubles as the
// reference-type tag.
func (e *Engine) uploadAttachments(ctx context.Context, payload map[string]any) error {
	if e.uploader == nil {
		return nil
	}
	for field, att := range model.DetectAttachments(e.def.Schema, payload) {
		ref, err := e.uploader.Upload(ctx, att, field)
		if err != nil {
			return fmt.Errorf("upload attachment %q: %w", field, err)
		}
		att.Reference = ref
		att.Content = nil
	}
	return nil
}

// cascade fires the first auto action of the current state whose condition
// holds against the current payload, then recurses through execute into the
// state it produces. Terminal states stop the cascade; the depth limit guards
// against auto actions routed in a cycle.
func (e *Engine) cascade(ctx context.Context, req *model.RequestInstance, user *model.UserContext, depth int) error {
	state, ok := e.def.StateByName(req.CurrentState)
	if !ok {
		return model.NewStateNotFoundError(req.CurrentState)
	}
	if state.Type.IsTerminal() {
		e.observeCascadeDepth(depth)
		return nil
	}

	for i := range state.Actions {
		a := &state.Actions[i]
		if !a.IsAuto || a.Condition == nil || !a.Condition(req.Payload) {
			continue
		}
		if depth >= e.cascadeLimit {
			if e.metrics != nil {
				e.metrics.CascadeLimitHits.WithLabelValues(e.def.ID).Inc()
			}
			return model.NewCascadeLimitError(e.cascadeLimit)
		}
		// Only the first matching auto action per state fires.
		return e.execute(ctx, req, a.Name, user, req.Payload, depth+1, true)
	}

	e.observeCascadeDepth(depth)
	return nil
}

func (e *Engine) observeCascadeDepth(depth int) {
	if e.metrics != nil && depth > 0 {
		e.metrics.CascadeDepth.WithLabelValues(e.def.ID).Observe(float64(depth))
	}
}

func (e *Engine) hookContext(req *model.RequestInstance, user *model.UserContext, payload map[string]any, actionName string) *model.HookContext {
	hctx := &model.HookContext{
		Request:    req,
		Definition: e.def,
		Payload:    payload,
		ActionName: actionName,
		History:    model.NewHistorySink(req),
	}
	if user != nil {
		hctx.PerformedBy = user.ID
		hctx.Roles = user.Roles
		hctx.Groups = user.Groups
	}
	return hctx
}

// authorized implements the flat-list-or-rule contract: the user id in
// AssignedUsers, any role in AssignedRoles, any group in AssignedGroups, or
// the composite AssignmentRule granting access. All empty means nobody.
func authorized(action *model.Action, user *model.UserContext) bool {
	if user == nil {
		return false
	}
	for _, u := range action.AssignedUsers {
		if u == user.ID {
			return true
		}
	}
	for _, r := range action.AssignedRoles {
		if user.HasRole(r) {
			return true
		}
	}
	for _, g := range action.AssignedGroups {
		if user.HasGroup(g) {
			return true
		}
	}
	if action.AssignmentRule != nil {
		return action.AssignmentRule.IsAuthorized(user)
	}
	return false
}

// statusFor mirrors a state type onto the request status tag.
func statusFor(t model.StateType) string {
	switch t {
	case model.StateTypeCompleted:
		return model.RequestStatusCompleted
	case model.StateTypeRejected:
		return model.RequestStatusRejected
	case model.StateTypeCancelled:
		return model.RequestStatusCancelled
	default:
		return model.RequestStatusActive
	}
}
