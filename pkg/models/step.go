package models

import "time"

type StepStatus string

const (
	PendingStepStatus   StepStatus = "PENDING"
	CompletedStepStatus StepStatus = "COMPLETED"
	FailedStepStatus    StepStatus = "FAILED"
	// SupersededStepStatus marks pending work that can no longer be acted on:
	// the request reached a terminal status, or an OR join fired and closed
	// the sibling branches.
	SupersededStepStatus StepStatus = "SUPERSEDED"
)

// StepInstance is one activation of a node within a request. A node revisited
// later (e.g. returned for revision) gets a fresh instance; rows are never
// deleted so the table doubles as the audit trail.
type StepInstance struct {
	ID        int64      `json:"id" db:"id"`
	RequestID string     `json:"request_id" db:"request_id"`
	NodeID    string     `json:"node_id" db:"node_id"`
	Kind      NodeKind   `json:"kind" db:"kind"`
	Status    StepStatus `json:"status" db:"status"`

	// Exactly one of AssigneeID/AssigneeRole is set for approval steps.
	AssigneeID   *string `json:"assignee_id,omitempty" db:"assignee_id"`
	AssigneeRole *string `json:"assignee_role,omitempty" db:"assignee_role"`

	// Outcome recorded by the completing caller (e.g. "approved", "rejected").
	Outcome string `json:"outcome,omitempty" db:"outcome"`

	// Branch attribution while inside a parallel section: the fork that opened
	// the branch and the branch's head node. Inherited from the predecessor
	// step, cleared once the join fires.
	ForkNodeID   *string `json:"fork_node_id,omitempty" db:"fork_node_id"`
	BranchNodeID *string `json:"branch_node_id,omitempty" db:"branch_node_id"`

	SLAHours        float64    `json:"sla_hours,omitempty" db:"sla_hours"`
	BusinessHours   bool       `json:"business_hours" db:"business_hours"`
	SLADueAt        *time.Time `json:"sla_due_at,omitempty" db:"sla_due_at"`
	EscalationLevel int        `json:"escalation_level" db:"escalation_level"`
	LastWarningAt   *time.Time `json:"last_warning_at,omitempty" db:"last_warning_at"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty" db:"last_escalated_at"`

	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
