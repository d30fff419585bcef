package engine

import "fmt"

// NoViableTransitionError reports a node whose outgoing edges all evaluated
// false. It is fatal for the request: a silent dead-end would be worse than a
// loud failure, and the fix is a workflow-design change.
type NoViableTransitionError struct {
	RequestID string
	NodeID    string
}

func (e *NoViableTransitionError) Error() string {
	return fmt.Sprintf("request %s: no outgoing edge of node %s evaluated true", e.RequestID, e.NodeID)
}

// ActionExecutionError wraps a failed automated-action attempt. It is
// retryable under the engine's retry policy.
type ActionExecutionError struct {
	NodeID     string
	ActionType string
	Attempt    int
	Err        error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s (node %s) attempt %d: %v", e.ActionType, e.NodeID, e.Attempt, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}
