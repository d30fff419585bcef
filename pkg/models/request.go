package models

import "time"

type RequestStatus string

const (
	RunningRequestStatus   RequestStatus = "RUNNING"
	CompletedRequestStatus RequestStatus = "COMPLETED"
	RejectedRequestStatus  RequestStatus = "REJECTED"
	CancelledRequestStatus RequestStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s RequestStatus) Terminal() bool {
	return s == CompletedRequestStatus || s == RejectedRequestStatus || s == CancelledRequestStatus
}

// RequestInstance is a single run of a workflow definition. Only the engine
// transitions its status; once terminal it never changes again.
type RequestInstance struct {
	ID                string         `json:"id" db:"id"`
	DefinitionID      int64          `json:"definition_id" db:"definition_id"`
	DefinitionVersion int            `json:"definition_version" db:"definition_version"`
	RequesterID       string         `json:"requester_id" db:"requester_id"`
	Status            RequestStatus  `json:"status" db:"status"`
	FormData          map[string]any `json:"form_data,omitempty"`

	// Set when this request was spawned by a subworkflow node of another
	// request; the engine resumes the parent once this one terminates.
	ParentRequestID *string `json:"parent_request_id,omitempty" db:"parent_request_id"`
	ParentNodeID    *string `json:"parent_node_id,omitempty" db:"parent_node_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
