package models

import "time"

type BranchStatus string

const (
	PendingBranchStatus   BranchStatus = "PENDING"
	CompletedBranchStatus BranchStatus = "COMPLETED"
)

// Branch tracks one parallel path opened by a gateway fork. The only mutation
// after creation is the pending -> completed status flip.
type Branch struct {
	ID           int64        `json:"id" db:"id"`
	RequestID    string       `json:"request_id" db:"request_id"`
	ForkNodeID   string       `json:"fork_node_id" db:"fork_node_id"`
	BranchNodeID string       `json:"branch_node_id" db:"branch_node_id"`
	Status       BranchStatus `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
}
