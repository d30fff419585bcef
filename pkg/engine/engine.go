// Package engine implements the workflow execution state machine: it advances
// request instances through their definition graph, resolving assignees,
// evaluating edge conditions, synchronizing parallel branches and running
// automated actions with a deterministic retry policy.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/assignee"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/condition"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/graph"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/notify"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for the Engine.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultActionTimeout bounds an automated action call when the node does not
// configure its own timeout.
const DefaultActionTimeout = 30 * time.Second

// DefaultAdminRole receives escalations that bypass the normal ladder.
const DefaultAdminRole = "administrator"

// Engine owns every transition of RequestInstance.status and the lifecycle of
// step and branch rows. Callers are concurrent; per-request operations are
// serialized through a per-request lock, cross-request operations run in
// parallel.
type Engine struct {
	store    storage.Store
	resolver *assignee.Resolver
	branches *Synchronizer
	notifier notify.Notifier
	logger   Logger

	executors map[string]ActionExecutor
	retry     RetryPolicy
	sleep     func(time.Duration)

	escalationChain map[string]string
	adminRole       string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithEscalationChain sets the role-to-role escalation mapping consulted when
// a breached step is reassigned.
func WithEscalationChain(chain map[string]string) Option {
	return func(e *Engine) { e.escalationChain = chain }
}

func WithAdminRole(role string) Option {
	return func(e *Engine) { e.adminRole = role }
}

// WithSleep replaces the backoff sleep, letting tests run retries instantly.
func WithSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

func NewEngine(store storage.Store, dir assignee.Directory, logger Logger, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		resolver:        assignee.NewResolver(dir),
		branches:        NewSynchronizer(),
		logger:          logger,
		executors:       make(map[string]ActionExecutor),
		retry:           DefaultRetryPolicy(),
		sleep:           time.Sleep,
		escalationChain: make(map[string]string),
		adminRole:       DefaultAdminRole,
		locks:           make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterExecutor wires the executor for one automated action type.
func (e *Engine) RegisterExecutor(actionType string, executor ActionExecutor) {
	e.executors[actionType] = executor
}

func (e *Engine) lockFor(requestID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[requestID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[requestID] = mu
	}
	return mu
}

// followup is deferred work for another request (parent resumption, child
// start) that must run outside the current request's lock and transaction.
type followup func() error

// Submit validates the definition, creates a running request and advances it
// past the start node. Returns the new request id.
func (e *Engine) Submit(ctx context.Context, definitionID int64, requesterID string, formData map[string]any) (string, error) {
	return e.submit(ctx, definitionID, requesterID, formData, nil, nil)
}

func (e *Engine) submit(ctx context.Context, definitionID int64, requesterID string, formData map[string]any, parentRequestID, parentNodeID *string) (string, error) {
	requestID, followups, err := e.createRequest(ctx, definitionID, requesterID, formData, parentRequestID, parentNodeID)
	if err != nil {
		return "", err
	}
	return requestID, e.runFollowups(followups)
}

func (e *Engine) createRequest(ctx context.Context, definitionID int64, requesterID string, formData map[string]any, parentRequestID, parentNodeID *string) (id string, followups []followup, err error) {
	txStore, err := e.store.Begin()
	if err != nil {
		return "", nil, errors.Wrap(storage.ErrTransient, err.Error())
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				e.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			e.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	g, err := e.loadGraph(txStore, definitionID)
	if err != nil {
		return "", nil, err
	}
	def := g.Definition()
	if def.Status != models.PublishedDefinitionStatus {
		return "", nil, errors.Errorf("definition %d is not published", definitionID)
	}

	if formData == nil {
		formData = make(map[string]any)
	}
	req := models.RequestInstance{
		ID:                uuid.NewString(),
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		RequesterID:       requesterID,
		Status:            models.RunningRequestStatus,
		FormData:          formData,
		ParentRequestID:   parentRequestID,
		ParentNodeID:      parentNodeID,
	}
	if err := txStore.SaveRequest(req); err != nil {
		return "", nil, errors.Wrapf(err, "save request for definition %d", definitionID)
	}

	now := time.Now()
	startStep := models.StepInstance{
		RequestID:   req.ID,
		NodeID:      g.StartNode(),
		Kind:        models.StartNode,
		Status:      models.CompletedStepStatus,
		StartedAt:   now,
		CompletedAt: &now,
	}
	stepID, err := txStore.SaveStep(startStep)
	if err != nil {
		return "", nil, errors.Wrap(err, "save start step")
	}
	startStep.ID = stepID

	if err := e.route(ctx, txStore, g, &req, startStep, "", &followups); err != nil {
		return "", nil, err
	}

	e.notify(ctx, requesterID, notify.KindRequestSubmitted, "Request submitted",
		fmt.Sprintf("Your request %s is now in progress", req.ID), "/requests/"+req.ID)
	e.logger.Infof("Submitted request %s for definition %d v%d", req.ID, def.ID, def.Version)
	return req.ID, followups, nil
}

// AdvanceStep records the completion of the pending step for completedNodeID
// and moves the request along the graph. Calling it again for an already
// completed step is a no-op.
func (e *Engine) AdvanceStep(ctx context.Context, requestID, completedNodeID, outcome string, formUpdates map[string]any) error {
	followups, err := e.advance(ctx, requestID, completedNodeID, outcome, formUpdates)
	if err != nil {
		return err
	}
	return e.runFollowups(followups)
}

func (e *Engine) advance(ctx context.Context, requestID, completedNodeID, outcome string, formUpdates map[string]any) (followups []followup, err error) {
	mu := e.lockFor(requestID)
	mu.Lock()
	defer mu.Unlock()

	txStore, err := e.store.Begin()
	if err != nil {
		return nil, errors.Wrap(storage.ErrTransient, err.Error())
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				e.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			e.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	req, err := txStore.GetRequest(requestID)
	if err != nil {
		return nil, errors.Wrapf(err, "load request %s", requestID)
	}
	if req.Status.Terminal() {
		e.logger.Infof("Request %s is %s, ignoring advance for node %s", requestID, req.Status, completedNodeID)
		return nil, nil
	}

	step, err := txStore.GetPendingStep(requestID, completedNodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Already completed or never entered: duplicate delivery, not an error.
			e.logger.Infof("No pending step for node %s on request %s, ignoring", completedNodeID, requestID)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load pending step %s/%s", requestID, completedNodeID)
	}

	if len(formUpdates) > 0 {
		if req.FormData == nil {
			req.FormData = make(map[string]any)
		}
		for k, v := range formUpdates {
			req.FormData[k] = v
		}
		if err := txStore.UpdateRequestFormData(req.ID, req.FormData); err != nil {
			return nil, errors.Wrap(err, "update form data")
		}
	}

	if err := txStore.CompleteStep(step.ID, models.CompletedStepStatus, outcome); err != nil {
		return nil, errors.Wrapf(err, "complete step %d", step.ID)
	}
	e.logger.Infof("Request %s completed node %s (outcome %q)", requestID, completedNodeID, outcome)

	g, err := e.loadGraph(txStore, req.DefinitionID)
	if err != nil {
		return nil, err
	}
	if err := e.route(ctx, txStore, g, &req, step, outcome, &followups); err != nil {
		return nil, err
	}
	return followups, nil
}

// Cancel terminates a running request. It shares the per-request lock with
// AdvanceStep, so an in-flight transition either finishes first and the
// cancellation supersedes it, or the cancellation wins and the transition
// sees a terminal status and backs off. A half-applied transition can never
// be observed.
func (e *Engine) Cancel(ctx context.Context, requestID string) (err error) {
	mu := e.lockFor(requestID)
	mu.Lock()
	defer mu.Unlock()

	txStore, err := e.store.Begin()
	if err != nil {
		return errors.Wrap(storage.ErrTransient, err.Error())
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				e.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			e.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	req, err := txStore.GetRequest(requestID)
	if err != nil {
		return errors.Wrapf(err, "load request %s", requestID)
	}
	if req.Status.Terminal() {
		e.logger.Infof("Request %s already %s, cancel is a no-op", requestID, req.Status)
		return nil
	}
	if err := txStore.UpdateRequestStatus(requestID, models.CancelledRequestStatus); err != nil {
		return errors.Wrapf(err, "cancel request %s", requestID)
	}
	if err := e.supersedePendingSteps(txStore, requestID, nil); err != nil {
		return err
	}
	e.notify(ctx, req.RequesterID, notify.KindRequestFinished, "Request cancelled",
		fmt.Sprintf("Request %s was cancelled", requestID), "/requests/"+requestID)
	e.logger.Infof("Cancelled request %s", requestID)
	return nil
}

// loadGraph fetches and validates the definition. Validation failures are a
// configuration problem: fatal for the request, surfaced to administrators,
// never retried.
func (e *Engine) loadGraph(txStore storage.Store, definitionID int64) (*graph.Graph, error) {
	def, err := txStore.GetDefinition(definitionID)
	if err != nil {
		return nil, errors.Wrapf(err, "load definition %d", definitionID)
	}
	g := graph.New(def)
	if errs := g.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, v := range errs {
			msgs[i] = v.Error()
		}
		return nil, errors.Errorf("definition %d is invalid: %s", definitionID, strings.Join(msgs, "; "))
	}
	return g, nil
}

// route decides where the request goes after step completed. The completed
// step carries its branch attribution so paths inside a parallel section can
// report to the right branch row.
func (e *Engine) route(ctx context.Context, txStore storage.Store, g *graph.Graph, req *models.RequestInstance, step models.StepInstance, outcome string, followups *[]followup) error {
	node, ok := g.Node(step.NodeID)
	if !ok {
		return errors.Errorf("request %s references unknown node %s", req.ID, step.NodeID)
	}

	evalCtx := e.evalContext(req, outcome)

	if node.Kind == models.GatewayForkNode {
		return e.routeFork(ctx, txStore, g, req, node, evalCtx, followups)
	}

	edge, found, err := e.firstViableEdge(g.OutgoingEdges(node.ID), evalCtx)
	if err != nil {
		return err
	}
	if !found {
		return &NoViableTransitionError{RequestID: req.ID, NodeID: node.ID}
	}

	target, ok := g.Node(edge.Target)
	if !ok {
		return errors.Errorf("edge from %s targets unknown node %s", node.ID, edge.Target)
	}

	if target.Kind == models.GatewayJoinNode {
		return e.routeIntoJoin(ctx, txStore, g, req, step, target, followups)
	}

	// Branch attribution propagates along the path until a join clears it.
	return e.enterNode(ctx, txStore, g, req, target, step.ForkNodeID, step.BranchNodeID, followups)
}

// routeFork opens one branch per outgoing edge whose condition holds and
// enters every branch head. No viable edge is a workflow-design bug.
func (e *Engine) routeFork(ctx context.Context, txStore storage.Store, g *graph.Graph, req *models.RequestInstance, node models.Node, evalCtx map[string]any, followups *[]followup) error {
	var targets []string
	for _, edge := range g.OutgoingEdges(node.ID) {
		ok, err := condition.Evaluate(edge.Condition, evalCtx)
		if err != nil {
			return errors.Wrapf(err, "request %s, edge %s->%s", req.ID, edge.Source, edge.Target)
		}
		if ok {
			targets = append(targets, edge.Target)
		}
	}
	if len(targets) == 0 {
		return &NoViableTransitionError{RequestID: req.ID, NodeID: node.ID}
	}

	if err := e.branches.OpenBranches(txStore, req.ID, node.ID, targets); err != nil {
		return err
	}
	e.logger.Infof("Request %s forked at %s into %d branches", req.ID, node.ID, len(targets))

	forkID := node.ID
	for _, targetID := range targets {
		target, ok := g.Node(targetID)
		if !ok {
			return errors.Errorf("fork %s targets unknown node %s", node.ID, targetID)
		}
		branchID := targetID
		if err := e.enterNode(ctx, txStore, g, req, target, &forkID, &branchID, followups); err != nil {
			return err
		}
	}
	return nil
}

// routeIntoJoin completes the arriving branch and fires the join exactly once
// per parallel pass. Firing resets the fork's branch rows and supersedes any
// still-pending sibling steps, all inside the advancing transaction; with no
// rows left, a late arrival finds the join not ready and a revision loop back
// through the fork starts a fresh pass.
func (e *Engine) routeIntoJoin(ctx context.Context, txStore storage.Store, g *graph.Graph, req *models.RequestInstance, step models.StepInstance, join models.Node, followups *[]followup) error {
	if step.ForkNodeID == nil || step.BranchNodeID == nil {
		return errors.Errorf("request %s reached join %s outside a parallel section", req.ID, join.ID)
	}
	if err := e.branches.CompleteBranch(txStore, req.ID, *step.ForkNodeID, *step.BranchNodeID); err != nil {
		return err
	}
	ready, err := e.branches.IsJoinReady(txStore, req.ID, *step.ForkNodeID, join.Join.Policy)
	if err != nil {
		return err
	}
	if !ready {
		e.logger.Infof("Request %s: join %s waiting on sibling branches", req.ID, join.ID)
		return nil
	}

	if err := e.supersedePendingSteps(txStore, req.ID, step.ForkNodeID); err != nil {
		return err
	}
	if err := e.branches.Reset(txStore, req.ID, *step.ForkNodeID); err != nil {
		return err
	}
	// Attribution ends at the join.
	return e.enterNode(ctx, txStore, g, req, join, nil, nil, followups)
}

// supersedePendingSteps closes pending steps that can no longer be acted on.
// With forkNodeID set only that fork's branches are touched (an OR join
// fired); with nil every pending step of the request is closed (terminal
// transition).
func (e *Engine) supersedePendingSteps(txStore storage.Store, requestID string, forkNodeID *string) error {
	steps, err := txStore.ListSteps(requestID)
	if err != nil {
		return errors.Wrapf(err, "list steps of request %s", requestID)
	}
	for _, s := range steps {
		if s.Status != models.PendingStepStatus {
			continue
		}
		if forkNodeID != nil && (s.ForkNodeID == nil || *s.ForkNodeID != *forkNodeID) {
			continue
		}
		if err := txStore.CompleteStep(s.ID, models.SupersededStepStatus, ""); err != nil {
			return errors.Wrapf(err, "supersede step %d", s.ID)
		}
		e.logger.Infof("Request %s: superseded pending step %s", requestID, s.NodeID)
	}
	return nil
}

// enterNode creates the step instance for the target node and performs its
// kind-specific entry behavior.
func (e *Engine) enterNode(ctx context.Context, txStore storage.Store, g *graph.Graph, req *models.RequestInstance, node models.Node, forkNodeID, branchNodeID *string, followups *[]followup) error {
	now := time.Now()
	step := models.StepInstance{
		RequestID:    req.ID,
		NodeID:       node.ID,
		Kind:         node.Kind,
		Status:       models.PendingStepStatus,
		ForkNodeID:   forkNodeID,
		BranchNodeID: branchNodeID,
		StartedAt:    now,
	}

	switch node.Kind {
	case models.EndNode:
		step.Status = models.CompletedStepStatus
		step.CompletedAt = &now
		if _, err := txStore.SaveStep(step); err != nil {
			return errors.Wrapf(err, "save end step %s", node.ID)
		}
		return e.finishRequest(ctx, txStore, req, node.End.Outcome, followups)

	case models.ApprovalNode:
		assigneeID, assigneeRole, err := e.resolver.Resolve(ctx, node.Approval.AssigneeRule, req.RequesterID)
		if err != nil {
			return errors.Wrapf(err, "request %s, node %s", req.ID, node.ID)
		}
		step.AssigneeID = assigneeID
		step.AssigneeRole = assigneeRole
		step.SLAHours = node.Approval.SLAHours
		step.BusinessHours = node.Approval.BusinessHours
		if node.Approval.SLAHours > 0 {
			due := now.Add(time.Duration(node.Approval.SLAHours * float64(time.Hour)))
			step.SLADueAt = &due
		}
		if _, err := txStore.SaveStep(step); err != nil {
			return errors.Wrapf(err, "save approval step %s", node.ID)
		}
		e.notify(ctx, assigneeRef(step), notify.KindStepAssigned, "Approval required",
			fmt.Sprintf("Request %s is waiting on step %s", req.ID, nodeTitle(node)), "/requests/"+req.ID)
		e.logger.Infof("Request %s entered approval %s (assignee %s)", req.ID, node.ID, assigneeRef(step))
		return nil

	case models.ActionNode:
		if _, ok := e.executors[node.Action.ActionType]; !ok {
			return errors.Errorf("no executor registered for action type %q (node %s)", node.Action.ActionType, node.ID)
		}
		if _, err := txStore.SaveStep(step); err != nil {
			return errors.Wrapf(err, "save action step %s", node.ID)
		}
		// Executed as a follow-up so attempts and backoff run after this
		// transaction committed and the per-request lock was released.
		requestID, nodeID := req.ID, node.ID
		*followups = append(*followups, func() error {
			return e.executeAction(ctx, requestID, nodeID)
		})
		return nil

	case models.GatewayForkNode, models.GatewayJoinNode:
		// Gateways hold no work: record the visit and route on immediately.
		step.Status = models.CompletedStepStatus
		step.CompletedAt = &now
		stepID, err := txStore.SaveStep(step)
		if err != nil {
			return errors.Wrapf(err, "save gateway step %s", node.ID)
		}
		step.ID = stepID
		return e.route(ctx, txStore, g, req, step, "", followups)

	case models.SubworkflowNode:
		if _, err := txStore.SaveStep(step); err != nil {
			return errors.Wrapf(err, "save subworkflow step %s", node.ID)
		}
		childDefID := node.Sub.DefinitionID
		parentID, nodeID := req.ID, node.ID
		requester := req.RequesterID
		formData := req.FormData
		*followups = append(*followups, func() error {
			childID, err := e.submit(ctx, childDefID, requester, formData, &parentID, &nodeID)
			if err != nil {
				return errors.Wrapf(err, "start subworkflow for request %s node %s", parentID, nodeID)
			}
			e.logger.Infof("Request %s spawned child request %s at node %s", parentID, childID, nodeID)
			return nil
		})
		return nil

	default:
		return errors.Errorf("cannot enter node %s of kind %s", node.ID, node.Kind)
	}
}

// finishRequest applies the end node's outcome and, for child requests,
// schedules the parent's resumption.
func (e *Engine) finishRequest(ctx context.Context, txStore storage.Store, req *models.RequestInstance, outcome models.RequestStatus, followups *[]followup) error {
	if err := txStore.UpdateRequestStatus(req.ID, outcome); err != nil {
		return errors.Wrapf(err, "finish request %s", req.ID)
	}
	req.Status = outcome
	if err := e.supersedePendingSteps(txStore, req.ID, nil); err != nil {
		return err
	}
	e.notify(ctx, req.RequesterID, notify.KindRequestFinished, "Request "+strings.ToLower(string(outcome)),
		fmt.Sprintf("Request %s finished with outcome %s", req.ID, outcome), "/requests/"+req.ID)
	e.logger.Infof("Request %s finished: %s", req.ID, outcome)

	if req.ParentRequestID != nil && req.ParentNodeID != nil {
		parentID, parentNode := *req.ParentRequestID, *req.ParentNodeID
		childOutcome := strings.ToLower(string(outcome))
		*followups = append(*followups, func() error {
			return e.AdvanceStep(ctx, parentID, parentNode, childOutcome, nil)
		})
	}
	return nil
}

// executeAction drives an automated node under the retry policy. It runs
// without the per-request lock and outside any transaction: attempts and
// backoff sleeps never pin a database connection, and a cancellation issued
// between attempts wins. Each state change goes through the regular locked
// advance path in its own short transaction.
func (e *Engine) executeAction(ctx context.Context, requestID, nodeID string) error {
	req, err := e.store.GetRequest(requestID)
	if err != nil {
		return errors.Wrapf(err, "load request %s", requestID)
	}
	g, err := e.loadGraph(e.store, req.DefinitionID)
	if err != nil {
		return err
	}
	node, ok := g.Node(nodeID)
	if !ok || node.Action == nil {
		return errors.Errorf("request %s: node %s is not an action", requestID, nodeID)
	}
	executor := e.executors[node.Action.ActionType]

	timeout := DefaultActionTimeout
	if node.Action.TimeoutSeconds > 0 {
		timeout = time.Duration(node.Action.TimeoutSeconds) * time.Second
	}
	maxAttempts := e.retry.MaxAttempts
	if node.Action.MaxRetries > 0 {
		maxAttempts = node.Action.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if req.Status.Terminal() {
			e.logger.Infof("Request %s is %s, abandoning action %s", requestID, req.Status, nodeID)
			return nil
		}
		result, err := e.executeOnce(ctx, executor, node, timeout, req.FormData)
		if err == nil {
			e.logger.Infof("Request %s action %s succeeded on attempt %d", requestID, nodeID, attempt)
			return e.AdvanceStep(ctx, requestID, nodeID, "ok", result)
		}

		lastErr = &ActionExecutionError{NodeID: nodeID, ActionType: node.Action.ActionType, Attempt: attempt, Err: err}
		e.logger.Errorf("Request %s: %v", requestID, lastErr)
		if attempt < maxAttempts {
			e.sleep(e.retry.Backoff(attempt))
			// the request may have been cancelled or altered during the backoff
			if req, err = e.store.GetRequest(requestID); err != nil {
				return errors.Wrapf(err, "reload request %s", requestID)
			}
		}
	}
	return e.failAction(ctx, requestID, node, maxAttempts, lastErr)
}

// failAction records the exhausted action: the step is marked failed and the
// request either moves to the configured fallback node or the administrator
// role is alerted immediately, bypassing the SLA ladder.
func (e *Engine) failAction(ctx context.Context, requestID string, node models.Node, attempts int, lastErr error) error {
	followups, err := e.failActionTx(ctx, requestID, node, attempts, lastErr)
	if err != nil {
		return err
	}
	return e.runFollowups(followups)
}

func (e *Engine) failActionTx(ctx context.Context, requestID string, node models.Node, attempts int, lastErr error) (followups []followup, err error) {
	mu := e.lockFor(requestID)
	mu.Lock()
	defer mu.Unlock()

	txStore, err := e.store.Begin()
	if err != nil {
		return nil, errors.Wrap(storage.ErrTransient, err.Error())
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				e.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			e.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	req, err := txStore.GetRequest(requestID)
	if err != nil {
		return nil, errors.Wrapf(err, "load request %s", requestID)
	}
	if req.Status.Terminal() {
		e.logger.Infof("Request %s is %s, dropping failed action %s", requestID, req.Status, node.ID)
		return nil, nil
	}
	step, err := txStore.GetPendingStep(requestID, node.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "load pending step %s/%s", requestID, node.ID)
	}
	if err := txStore.CompleteStep(step.ID, models.FailedStepStatus, "failed"); err != nil {
		return nil, errors.Wrapf(err, "fail action step %d", step.ID)
	}

	if node.Action.FallbackNode != "" {
		g, err := e.loadGraph(txStore, req.DefinitionID)
		if err != nil {
			return nil, err
		}
		fallback, ok := g.Node(node.Action.FallbackNode)
		if !ok {
			return nil, errors.Errorf("action %s configures unknown fallback node %s", node.ID, node.Action.FallbackNode)
		}
		e.logger.Infof("Request %s action %s exhausted retries, routing to fallback %s", requestID, node.ID, fallback.ID)
		if err := e.enterNode(ctx, txStore, g, &req, fallback, step.ForkNodeID, step.BranchNodeID, &followups); err != nil {
			return nil, err
		}
		return followups, nil
	}

	rec := models.EscalationRecord{
		RequestID: requestID,
		StepID:    step.ID,
		Level:     1,
		Reason:    fmt.Sprintf("action %s failed after %d attempts: %v", node.Action.ActionType, attempts, lastErr),
	}
	if err := txStore.SaveEscalation(rec); err != nil {
		return nil, errors.Wrap(err, "record action failure escalation")
	}
	e.notify(ctx, e.adminRole, notify.KindEscalation, "Automated step failed",
		fmt.Sprintf("Request %s step %s needs manual intervention", requestID, node.ID), "/requests/"+requestID)
	return followups, nil
}

func (e *Engine) executeOnce(ctx context.Context, executor ActionExecutor, node models.Node, timeout time.Duration, formData map[string]any) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := executor.Execute(callCtx, node.Action.Params, formData)
	if err != nil {
		return nil, err
	}
	if callCtx.Err() != nil {
		return nil, callCtx.Err()
	}
	return result, nil
}

// Escalate reassigns a breached step up the role escalation chain (or only
// notifies when the node opted out of reassignment) and appends the audit
// record. Called by the SLA monitor; also usable by administrators directly.
func (e *Engine) Escalate(ctx context.Context, stepID int64) (err error) {
	step, err := e.store.GetStep(stepID)
	if err != nil {
		return errors.Wrapf(err, "load step %d", stepID)
	}

	mu := e.lockFor(step.RequestID)
	mu.Lock()
	defer mu.Unlock()

	txStore, err := e.store.Begin()
	if err != nil {
		return errors.Wrap(storage.ErrTransient, err.Error())
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				e.logger.Errorf("Failed to rollback after error: %v (original error: %v)", rollbackErr, err)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			e.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	step, err = txStore.GetStep(stepID)
	if err != nil {
		return errors.Wrapf(err, "load step %d", stepID)
	}
	if step.Status != models.PendingStepStatus {
		e.logger.Infof("Step %d is %s, escalation is a no-op", stepID, step.Status)
		return nil
	}

	req, err := txStore.GetRequest(step.RequestID)
	if err != nil {
		return errors.Wrapf(err, "load request %s", step.RequestID)
	}
	if req.Status.Terminal() {
		e.logger.Infof("Request %s is %s, escalation of step %d is a no-op", req.ID, req.Status, stepID)
		return nil
	}
	g, err := e.loadGraph(txStore, req.DefinitionID)
	if err != nil {
		return err
	}
	node, ok := g.Node(step.NodeID)
	if !ok || node.Approval == nil {
		return errors.Errorf("step %d does not belong to an approval node", stepID)
	}

	level := step.EscalationLevel + 1
	if err := txStore.UpdateStepEscalation(stepID, level, time.Now()); err != nil {
		return errors.Wrapf(err, "bump escalation level of step %d", stepID)
	}
	rec := models.EscalationRecord{
		RequestID: step.RequestID,
		StepID:    stepID,
		Level:     level,
		Reason:    fmt.Sprintf("SLA of %.1fh breached on node %s", step.SLAHours, step.NodeID),
	}
	if err := txStore.SaveEscalation(rec); err != nil {
		return errors.Wrap(err, "record escalation")
	}

	if node.Approval.AutoReassign {
		next := e.nextEscalationRole(node, step)
		if err := txStore.UpdateStepAssignee(stepID, nil, &next); err != nil {
			return errors.Wrapf(err, "reassign step %d", stepID)
		}
		e.notify(ctx, next, notify.KindEscalation, "Step escalated to you",
			fmt.Sprintf("Request %s step %s breached its SLA (level %d)", step.RequestID, step.NodeID, level), "/requests/"+step.RequestID)
		e.logger.Infof("Escalated step %d to role %s (level %d)", stepID, next, level)
		return nil
	}

	e.notify(ctx, assigneeRef(step), notify.KindEscalation, "Step overdue",
		fmt.Sprintf("Request %s step %s breached its SLA (level %d)", step.RequestID, step.NodeID, level), "/requests/"+step.RequestID)
	e.logger.Infof("Recorded escalation level %d for step %d (no reassignment)", level, stepID)
	return nil
}

// RecordWarning notifies the step's assignee that the SLA warning threshold
// was crossed and persists the timestamp the monitor dedupes on.
func (e *Engine) RecordWarning(ctx context.Context, stepID int64) error {
	step, err := e.store.GetStep(stepID)
	if err != nil {
		return errors.Wrapf(err, "load step %d", stepID)
	}
	if step.Status != models.PendingStepStatus {
		return nil
	}
	req, err := e.store.GetRequest(step.RequestID)
	if err != nil {
		return errors.Wrapf(err, "load request %s", step.RequestID)
	}
	if req.Status.Terminal() {
		return nil
	}
	if err := e.store.UpdateStepWarning(stepID, time.Now()); err != nil {
		return errors.Wrapf(err, "record warning on step %d", stepID)
	}
	e.notify(ctx, assigneeRef(step), notify.KindSLAWarning, "Step approaching SLA",
		fmt.Sprintf("Request %s step %s is close to its %.1fh SLA", step.RequestID, step.NodeID, step.SLAHours), "/requests/"+step.RequestID)
	return nil
}

func (e *Engine) nextEscalationRole(node models.Node, step models.StepInstance) string {
	if node.Approval.EscalateTo != "" {
		return node.Approval.EscalateTo
	}
	if step.AssigneeRole != nil {
		if next, ok := e.escalationChain[*step.AssigneeRole]; ok {
			return next
		}
	}
	return e.adminRole
}

func (e *Engine) evalContext(req *models.RequestInstance, outcome string) map[string]any {
	evalCtx := make(map[string]any, len(req.FormData)+1)
	for k, v := range req.FormData {
		evalCtx[k] = v
	}
	if outcome != "" {
		evalCtx["outcome"] = outcome
	}
	return evalCtx
}

// firstViableEdge returns the first edge whose condition holds, in
// declaration order. First match wins to keep branching deterministic.
func (e *Engine) firstViableEdge(edges []models.Edge, evalCtx map[string]any) (models.Edge, bool, error) {
	for _, edge := range edges {
		ok, err := condition.Evaluate(edge.Condition, evalCtx)
		if err != nil {
			return models.Edge{}, false, errors.Wrapf(err, "edge %s->%s", edge.Source, edge.Target)
		}
		if ok {
			return edge, true, nil
		}
	}
	return models.Edge{}, false, nil
}

func (e *Engine) runFollowups(followups []followup) error {
	for _, f := range followups {
		if err := f(); err != nil {
			e.logger.Errorf("Follow-up transition failed: %v", err)
			return err
		}
	}
	return nil
}

// notify is fire-and-forget: delivery failures are logged, never propagated.
func (e *Engine) notify(ctx context.Context, target, kind, title, message, link string) {
	if e.notifier == nil || target == "" {
		return
	}
	if err := e.notifier.Notify(ctx, target, kind, title, message, link); err != nil {
		e.logger.Errorf("Notification %s to %s failed: %v", kind, target, err)
	}
}

func assigneeRef(step models.StepInstance) string {
	if step.AssigneeID != nil {
		return *step.AssigneeID
	}
	if step.AssigneeRole != nil {
		return *step.AssigneeRole
	}
	return ""
}

func nodeTitle(node models.Node) string {
	if node.Name != "" {
		return node.Name
	}
	return node.ID
}
