package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/storage"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	_ "github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type PostgresStore struct {
	db DBInterface
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &PostgresStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// definitionRow maps a workflow_definitions row; the graph lives in two JSONB
// columns.
type definitionRow struct {
	ID        int64                   `db:"id"`
	Name      string                  `db:"name"`
	Version   int                     `db:"version"`
	Status    models.DefinitionStatus `db:"status"`
	Nodes     types.JSONText          `db:"nodes"`
	Edges     types.JSONText          `db:"edges"`
	CreatedAt time.Time               `db:"created_at"`
}

func (r definitionRow) toModel() (models.WorkflowDefinition, error) {
	def := models.WorkflowDefinition{
		ID:        r.ID,
		Name:      r.Name,
		Version:   r.Version,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if err := json.Unmarshal(r.Nodes, &def.Nodes); err != nil {
		return def, fmt.Errorf("decode nodes of definition %d: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.Edges, &def.Edges); err != nil {
		return def, fmt.Errorf("decode edges of definition %d: %w", r.ID, err)
	}
	return def, nil
}

// SaveDefinition inserts a new definition revision and returns its ID.
func (s *PostgresStore) SaveDefinition(def models.WorkflowDefinition) (int64, error) {
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return 0, fmt.Errorf("encode nodes: %w", err)
	}
	edges, err := json.Marshal(def.Edges)
	if err != nil {
		return 0, fmt.Errorf("encode edges: %w", err)
	}
	var id int64
	err = s.db.QueryRowx(
		"INSERT INTO workflow_definitions (name, version, status, nodes, edges) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		def.Name, def.Version, def.Status, nodes, edges).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save definition: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetDefinition(id int64) (models.WorkflowDefinition, error) {
	var row definitionRow
	err := s.db.Get(&row, "SELECT * FROM workflow_definitions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.WorkflowDefinition{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowDefinition{}, err
	}
	return row.toModel()
}

func (s *PostgresStore) ListDefinitions() ([]models.WorkflowDefinition, error) {
	var rows []definitionRow
	err := s.db.Select(&rows, "SELECT * FROM workflow_definitions ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defs := make([]models.WorkflowDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := row.toModel()
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *PostgresStore) UpdateDefinitionStatus(id int64, status models.DefinitionStatus) error {
	res, err := s.db.Exec("UPDATE workflow_definitions SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	return requireRow(res, storage.ErrNotFound)
}

type requestRow struct {
	ID                string               `db:"id"`
	DefinitionID      int64                `db:"definition_id"`
	DefinitionVersion int                  `db:"definition_version"`
	RequesterID       string               `db:"requester_id"`
	Status            models.RequestStatus `db:"status"`
	FormData          types.JSONText       `db:"form_data"`
	ParentRequestID   *string              `db:"parent_request_id"`
	ParentNodeID      *string              `db:"parent_node_id"`
	CreatedAt         time.Time            `db:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at"`
}

func (r requestRow) toModel() (models.RequestInstance, error) {
	req := models.RequestInstance{
		ID:                r.ID,
		DefinitionID:      r.DefinitionID,
		DefinitionVersion: r.DefinitionVersion,
		RequesterID:       r.RequesterID,
		Status:            r.Status,
		ParentRequestID:   r.ParentRequestID,
		ParentNodeID:      r.ParentNodeID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if len(r.FormData) > 0 {
		if err := json.Unmarshal(r.FormData, &req.FormData); err != nil {
			return req, fmt.Errorf("decode form data of request %s: %w", r.ID, err)
		}
	}
	return req, nil
}

func (s *PostgresStore) SaveRequest(r models.RequestInstance) error {
	formData, err := json.Marshal(r.FormData)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO requests (id, definition_id, definition_version, requester_id, status, form_data, parent_request_id, parent_node_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.DefinitionID, r.DefinitionVersion, r.RequesterID, r.Status, formData, r.ParentRequestID, r.ParentNodeID)
	return err
}

func (s *PostgresStore) GetRequest(id string) (models.RequestInstance, error) {
	var row requestRow
	err := s.db.Get(&row, "SELECT * FROM requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.RequestInstance{}, storage.ErrNotFound
	}
	if err != nil {
		return models.RequestInstance{}, err
	}
	return row.toModel()
}

func (s *PostgresStore) ListRequests() ([]models.RequestInstance, error) {
	var rows []requestRow
	err := s.db.Select(&rows, "SELECT * FROM requests ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	reqs := make([]models.RequestInstance, 0, len(rows))
	for _, row := range rows {
		req, err := row.toModel()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (s *PostgresStore) UpdateRequestStatus(id string, status models.RequestStatus) error {
	res, err := s.db.Exec("UPDATE requests SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	return requireRow(res, storage.ErrNotFound)
}

func (s *PostgresStore) UpdateRequestFormData(id string, formData map[string]any) error {
	encoded, err := json.Marshal(formData)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	res, err := s.db.Exec("UPDATE requests SET form_data = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2", encoded, id)
	if err != nil {
		return err
	}
	return requireRow(res, storage.ErrNotFound)
}

// SaveStep inserts a new step activation and returns its ID.
func (s *PostgresStore) SaveStep(step models.StepInstance) (int64, error) {
	var id int64
	err := s.db.QueryRowx(
		`INSERT INTO steps (request_id, node_id, kind, status, assignee_id, assignee_role, outcome,
		                    fork_node_id, branch_node_id, sla_hours, business_hours, sla_due_at,
		                    escalation_level, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`,
		step.RequestID, step.NodeID, step.Kind, step.Status, step.AssigneeID, step.AssigneeRole, step.Outcome,
		step.ForkNodeID, step.BranchNodeID, step.SLAHours, step.BusinessHours, step.SLADueAt,
		step.EscalationLevel, step.StartedAt, step.CompletedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("save step: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetStep(id int64) (models.StepInstance, error) {
	var step models.StepInstance
	err := s.db.Get(&step, "SELECT * FROM steps WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.StepInstance{}, storage.ErrNotFound
	}
	return step, err
}

func (s *PostgresStore) GetPendingStep(requestID, nodeID string) (models.StepInstance, error) {
	var step models.StepInstance
	err := s.db.Get(&step,
		"SELECT * FROM steps WHERE request_id = $1 AND node_id = $2 AND status = $3 ORDER BY started_at LIMIT 1",
		requestID, nodeID, models.PendingStepStatus)
	if err == sql.ErrNoRows {
		return models.StepInstance{}, storage.ErrNotFound
	}
	return step, err
}

func (s *PostgresStore) ListSteps(requestID string) ([]models.StepInstance, error) {
	var steps []models.StepInstance
	err := s.db.Select(&steps, "SELECT * FROM steps WHERE request_id = $1 ORDER BY id", requestID)
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// ListPendingSLASteps only considers steps of running requests: finished
// requests leave the monitor's view immediately.
func (s *PostgresStore) ListPendingSLASteps() ([]models.StepInstance, error) {
	var steps []models.StepInstance
	err := s.db.Select(&steps,
		`SELECT s.* FROM steps s
		 JOIN requests r ON r.id = s.request_id
		 WHERE s.status = $1 AND s.sla_hours > 0 AND r.status = $2
		 ORDER BY s.started_at`,
		models.PendingStepStatus, models.RunningRequestStatus)
	if err != nil {
		return nil, err
	}
	return steps, nil
}

func (s *PostgresStore) CompleteStep(id int64, status models.StepStatus, outcome string) error {
	res, err := s.db.Exec(
		"UPDATE steps SET status = $1, outcome = $2, completed_at = CURRENT_TIMESTAMP WHERE id = $3",
		status, outcome, id)
	if err != nil {
		return err
	}
	return requireRow(res, storage.ErrNotFound)
}

func (s *PostgresStore) UpdateStepAssignee(id int64, assigneeID, assigneeRole *string) error {
	res, err := s.db.Exec(
		"UPDATE steps SET assignee_id = $1, assignee_role = $2 WHERE id = $3", assigneeID, assigneeRole, id)
	if err != nil {
		return err
	}
	return requireRow(res, storage.ErrNotFound)
}

func (s *PostgresStore) UpdateStepEscalation(id int64, level int, at time.Time) error {
	res, err := s.db.Exec(
		"UPDATE steps SET escalation_level = $1, last_escalated_at = $2 WHERE id = $3", level, at, id)
	if err != nil {
		return err
	}
	return requireRow(res, storage.ErrNotFound)
}

func (s *PostgresStore) UpdateStepWarning(id int64, at time.Time) error {
	res, err := s.db.Exec("UPDATE steps SET last_warning_at = $1 WHERE id = $2", at, id)
	if err != nil {
		return err
	}
	return requireRow(res, storage.ErrNotFound)
}

func (s *PostgresStore) SaveBranch(b models.Branch) error {
	_, err := s.db.Exec(
		"INSERT INTO branches (request_id, fork_node_id, branch_node_id, status) VALUES ($1, $2, $3, $4)",
		b.RequestID, b.ForkNodeID, b.BranchNodeID, b.Status)
	return err
}

func (s *PostgresStore) GetBranches(requestID, forkNodeID string) ([]models.Branch, error) {
	var branches []models.Branch
	err := s.db.Select(&branches,
		"SELECT * FROM branches WHERE request_id = $1 AND fork_node_id = $2 ORDER BY id", requestID, forkNodeID)
	if err != nil {
		return nil, err
	}
	return branches, nil
}

// CompleteBranch flips a branch to completed. Re-delivered completions are a
// no-op thanks to the status guard in the WHERE clause, but a branch that was
// never opened is an error.
func (s *PostgresStore) CompleteBranch(requestID, forkNodeID, branchNodeID string) error {
	res, err := s.db.Exec(
		`UPDATE branches SET status = $1, completed_at = CURRENT_TIMESTAMP
		 WHERE request_id = $2 AND fork_node_id = $3 AND branch_node_id = $4 AND status = $5`,
		models.CompletedBranchStatus, requestID, forkNodeID, branchNodeID, models.PendingBranchStatus)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.Get(&exists,
			"SELECT EXISTS (SELECT 1 FROM branches WHERE request_id = $1 AND fork_node_id = $2 AND branch_node_id = $3)",
			requestID, forkNodeID, branchNodeID); err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
	}
	return nil
}

func (s *PostgresStore) DeleteBranches(requestID, forkNodeID string) error {
	_, err := s.db.Exec(
		"DELETE FROM branches WHERE request_id = $1 AND fork_node_id = $2", requestID, forkNodeID)
	return err
}

func (s *PostgresStore) SaveEscalation(rec models.EscalationRecord) error {
	_, err := s.db.Exec(
		"INSERT INTO escalations (request_id, step_id, level, reason) VALUES ($1, $2, $3, $4)",
		rec.RequestID, rec.StepID, rec.Level, rec.Reason)
	return err
}

func (s *PostgresStore) ListEscalations(requestID string) ([]models.EscalationRecord, error) {
	var recs []models.EscalationRecord
	err := s.db.Select(&recs, "SELECT * FROM escalations WHERE request_id = $1 ORDER BY id", requestID)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *PostgresStore) GetUser(id string) (models.User, error) {
	var u models.User
	err := s.db.Get(&u, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.User{}, storage.ErrNotFound
	}
	return u, err
}

func (s *PostgresStore) SaveUser(u models.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, name, email, role, manager_id) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET name = $2, email = $3, role = $4, manager_id = $5`,
		u.ID, u.Name, u.Email, u.Role, u.ManagerID)
	return err
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
