// Package storage defines the persistence contract the workflow core runs
// against, plus an in-memory implementation for tests and examples.
package storage

import (
	"time"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrTransient marks a recoverable I/O failure (connection loss, timeout).
// Callers may retry operations wrapping it; everything else is permanent.
var ErrTransient = errors.New("transient storage error")

// Store is the transactional persistence collaborator. Begin returns a
// tx-scoped Store; read-modify-write sequences for one request must run
// inside a single transaction.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Workflow definitions (immutable once published)
	SaveDefinition(def models.WorkflowDefinition) (int64, error)
	GetDefinition(id int64) (models.WorkflowDefinition, error)
	ListDefinitions() ([]models.WorkflowDefinition, error)
	UpdateDefinitionStatus(id int64, status models.DefinitionStatus) error

	// Request instances
	SaveRequest(r models.RequestInstance) error
	GetRequest(id string) (models.RequestInstance, error)
	ListRequests() ([]models.RequestInstance, error)
	UpdateRequestStatus(id string, status models.RequestStatus) error
	UpdateRequestFormData(id string, formData map[string]any) error

	// Step instances (append-only audit trail; completion flips status)
	SaveStep(s models.StepInstance) (int64, error)
	GetStep(id int64) (models.StepInstance, error)
	GetPendingStep(requestID, nodeID string) (models.StepInstance, error)
	ListSteps(requestID string) ([]models.StepInstance, error)
	// ListPendingSLASteps returns pending steps with an SLA whose request is
	// still running; steps of finished requests are never monitored.
	ListPendingSLASteps() ([]models.StepInstance, error)
	CompleteStep(id int64, status models.StepStatus, outcome string) error
	UpdateStepAssignee(id int64, assigneeID, assigneeRole *string) error
	UpdateStepEscalation(id int64, level int, at time.Time) error
	UpdateStepWarning(id int64, at time.Time) error

	// Parallel branches. Rows exist only while a parallel pass is in flight;
	// the engine deletes them when the join fires so a later pass through the
	// same fork starts clean.
	SaveBranch(b models.Branch) error
	GetBranches(requestID, forkNodeID string) ([]models.Branch, error)
	CompleteBranch(requestID, forkNodeID, branchNodeID string) error
	DeleteBranches(requestID, forkNodeID string) error

	// Escalation audit log (append-only)
	SaveEscalation(rec models.EscalationRecord) error
	ListEscalations(requestID string) ([]models.EscalationRecord, error)

	// Directory rows (read-only from the core's perspective; writes belong
	// to the user-management collaborator and test fixtures)
	GetUser(id string) (models.User, error)
	SaveUser(u models.User) error
}
