package models

import "time"

type DefinitionStatus string

const (
	DraftDefinitionStatus     DefinitionStatus = "DRAFT"
	PublishedDefinitionStatus DefinitionStatus = "PUBLISHED"
)

type NodeKind string

const (
	StartNode       NodeKind = "start"
	EndNode         NodeKind = "end"
	ApprovalNode    NodeKind = "approval"
	ActionNode      NodeKind = "action"
	GatewayForkNode NodeKind = "gateway_fork"
	GatewayJoinNode NodeKind = "gateway_join"
	SubworkflowNode NodeKind = "subworkflow"
)

type JoinPolicy string

const (
	JoinAll JoinPolicy = "AND" // every branch must complete
	JoinAny JoinPolicy = "OR"  // a single branch suffices
)

// WorkflowDefinition is the versioned graph a request executes against.
// Once published it is never mutated; running requests keep referencing the
// id/version pair they started under.
type WorkflowDefinition struct {
	ID        int64            `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	Version   int              `json:"version" db:"version"`
	Status    DefinitionStatus `json:"status" db:"status"`
	Nodes     []Node           `json:"nodes"`
	Edges     []Edge           `json:"edges"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// Node is one step of the workflow graph. Kind selects which of the typed
// config payloads applies; graph validation rejects mismatched payloads.
type Node struct {
	ID   string   `json:"id"`
	Kind NodeKind `json:"kind"`
	Name string   `json:"name,omitempty"`

	Approval *ApprovalConfig    `json:"approval,omitempty"`
	Action   *ActionConfig      `json:"action,omitempty"`
	Join     *JoinConfig        `json:"join,omitempty"`
	End      *EndConfig         `json:"end,omitempty"`
	Sub      *SubworkflowConfig `json:"subworkflow,omitempty"`
}

// ApprovalConfig configures a human step.
type ApprovalConfig struct {
	// AssigneeRule is a static role name or a hierarchy rule such as
	// DIRECT_MANAGER or MANAGER_LEVEL_3.
	AssigneeRule  string  `json:"assignee_rule"`
	SLAHours      float64 `json:"sla_hours,omitempty"`
	BusinessHours bool    `json:"business_hours,omitempty"`
	AutoReassign  bool    `json:"auto_reassign,omitempty"`
	// EscalateTo overrides the engine's role escalation chain for this node.
	EscalateTo string `json:"escalate_to,omitempty"`
}

// ActionConfig configures an automated step executed via a registered
// ActionExecutor.
type ActionConfig struct {
	ActionType     string            `json:"action_type"`
	Params         map[string]string `json:"params,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	MaxRetries     int               `json:"max_retries,omitempty"`
	// FallbackNode receives the request when retries are exhausted.
	FallbackNode string `json:"fallback_node,omitempty"`
}

type JoinConfig struct {
	Policy JoinPolicy `json:"policy"`
}

type EndConfig struct {
	Outcome RequestStatus `json:"outcome"`
}

type SubworkflowConfig struct {
	DefinitionID int64 `json:"definition_id"`
}

// Edge is a directed transition. A nil Condition always fires; otherwise the
// edge fires when the condition evaluates true against the request's form data.
type Edge struct {
	Source    string     `json:"source"`
	Target    string     `json:"target"`
	Label     string     `json:"label,omitempty"`
	Condition *Condition `json:"condition,omitempty"`
}
