package storage

import (
	"sync"
	"time"

	"github.com/alhafibarefoot/HelpDesk-sub001/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements Store with in-memory slices. Transactions are a
// pass-through: every write is immediately visible, which is enough for unit
// tests that exercise engine semantics rather than isolation.
type mockStore struct {
	mu          sync.Mutex
	definitions []models.WorkflowDefinition
	requests    []models.RequestInstance
	steps       []models.StepInstance
	branches    []models.Branch
	escalations []models.EscalationRecord
	users       map[string]models.User
	nextDefID   int64
	nextStepID  int64
	nextRowID   int64
}

// NewMockStore returns an empty in-memory store.
func NewMockStore() Store {
	return &mockStore{users: make(map[string]models.User)}
}

func (m *mockStore) Begin() (Store, error) { return m, nil }
func (m *mockStore) Commit() error         { return nil }
func (m *mockStore) Rollback() error       { return nil }
func (m *mockStore) Close() error          { return nil }

func (m *mockStore) SaveDefinition(def models.WorkflowDefinition) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if def.ID == 0 {
		m.nextDefID++
		def.ID = m.nextDefID
	} else if def.ID > m.nextDefID {
		m.nextDefID = def.ID
	}
	def.CreatedAt = time.Now()
	m.definitions = append(m.definitions, def)
	return def.ID, nil
}

func (m *mockStore) GetDefinition(id int64) (models.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.definitions {
		if d.ID == id {
			return d, nil
		}
	}
	return models.WorkflowDefinition{}, errors.Wrapf(ErrNotFound, "definition %d", id)
}

func (m *mockStore) ListDefinitions() ([]models.WorkflowDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.WorkflowDefinition, len(m.definitions))
	copy(out, m.definitions)
	return out, nil
}

func (m *mockStore) UpdateDefinitionStatus(id int64, status models.DefinitionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.definitions {
		if m.definitions[i].ID == id {
			m.definitions[i].Status = status
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "definition %d", id)
}

func (m *mockStore) SaveRequest(r models.RequestInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.requests = append(m.requests, r)
	return nil
}

func (m *mockStore) GetRequest(id string) (models.RequestInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return models.RequestInstance{}, errors.Wrapf(ErrNotFound, "request %s", id)
}

func (m *mockStore) ListRequests() ([]models.RequestInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RequestInstance, len(m.requests))
	copy(out, m.requests)
	return out, nil
}

func (m *mockStore) UpdateRequestStatus(id string, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.requests {
		if m.requests[i].ID == id {
			m.requests[i].Status = status
			m.requests[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "request %s", id)
}

func (m *mockStore) UpdateRequestFormData(id string, formData map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.requests {
		if m.requests[i].ID == id {
			m.requests[i].FormData = formData
			m.requests[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "request %s", id)
}

func (m *mockStore) SaveStep(s models.StepInstance) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextStepID++
	s.ID = m.nextStepID
	m.steps = append(m.steps, s)
	return s.ID, nil
}

func (m *mockStore) GetStep(id int64) (models.StepInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.ID == id {
			return s, nil
		}
	}
	return models.StepInstance{}, errors.Wrapf(ErrNotFound, "step %d", id)
}

func (m *mockStore) GetPendingStep(requestID, nodeID string) (models.StepInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.steps {
		if s.RequestID == requestID && s.NodeID == nodeID && s.Status == models.PendingStepStatus {
			return s, nil
		}
	}
	return models.StepInstance{}, errors.Wrapf(ErrNotFound, "pending step %s/%s", requestID, nodeID)
}

func (m *mockStore) ListSteps(requestID string) ([]models.StepInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StepInstance
	for _, s := range m.steps {
		if s.RequestID == requestID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) ListPendingSLASteps() ([]models.StepInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	running := make(map[string]bool, len(m.requests))
	for _, r := range m.requests {
		running[r.ID] = r.Status == models.RunningRequestStatus
	}
	var out []models.StepInstance
	for _, s := range m.steps {
		if s.Status == models.PendingStepStatus && s.SLAHours > 0 && running[s.RequestID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStore) CompleteStep(id int64, status models.StepStatus, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.steps {
		if m.steps[i].ID == id {
			now := time.Now()
			m.steps[i].Status = status
			m.steps[i].Outcome = outcome
			m.steps[i].CompletedAt = &now
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "step %d", id)
}

func (m *mockStore) UpdateStepAssignee(id int64, assigneeID, assigneeRole *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.steps {
		if m.steps[i].ID == id {
			m.steps[i].AssigneeID = assigneeID
			m.steps[i].AssigneeRole = assigneeRole
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "step %d", id)
}

func (m *mockStore) UpdateStepEscalation(id int64, level int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.steps {
		if m.steps[i].ID == id {
			m.steps[i].EscalationLevel = level
			m.steps[i].LastEscalatedAt = &at
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "step %d", id)
}

func (m *mockStore) UpdateStepWarning(id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.steps {
		if m.steps[i].ID == id {
			m.steps[i].LastWarningAt = &at
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "step %d", id)
}

func (m *mockStore) SaveBranch(b models.Branch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.branches {
		if existing.RequestID == b.RequestID && existing.ForkNodeID == b.ForkNodeID && existing.BranchNodeID == b.BranchNodeID {
			return errors.New("branch already exists")
		}
	}
	m.nextRowID++
	b.ID = m.nextRowID
	b.CreatedAt = time.Now()
	m.branches = append(m.branches, b)
	return nil
}

func (m *mockStore) GetBranches(requestID, forkNodeID string) ([]models.Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Branch
	for _, b := range m.branches {
		if b.RequestID == requestID && b.ForkNodeID == forkNodeID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockStore) CompleteBranch(requestID, forkNodeID, branchNodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.branches {
		b := &m.branches[i]
		if b.RequestID == requestID && b.ForkNodeID == forkNodeID && b.BranchNodeID == branchNodeID {
			if b.Status == models.CompletedBranchStatus {
				return nil // idempotent
			}
			now := time.Now()
			b.Status = models.CompletedBranchStatus
			b.CompletedAt = &now
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "branch %s/%s/%s", requestID, forkNodeID, branchNodeID)
}

func (m *mockStore) DeleteBranches(requestID, forkNodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.branches[:0]
	for _, b := range m.branches {
		if b.RequestID != requestID || b.ForkNodeID != forkNodeID {
			kept = append(kept, b)
		}
	}
	m.branches = kept
	return nil
}

func (m *mockStore) SaveEscalation(rec models.EscalationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRowID++
	rec.ID = m.nextRowID
	rec.CreatedAt = time.Now()
	m.escalations = append(m.escalations, rec)
	return nil
}

func (m *mockStore) ListEscalations(requestID string) ([]models.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EscalationRecord
	for _, e := range m.escalations {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) GetUser(id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, errors.Wrapf(ErrNotFound, "user %s", id)
	}
	return u, nil
}

func (m *mockStore) SaveUser(u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}
