package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/ignatij/approvalflow/pkg/models"
)

// MockStore implements Store with in-memory state. It is safe for concurrent
// use so tests can exercise the batch worker pool, and role lookups follow the
// same lowest-user-id tie-break as the Postgres store.
type MockStore struct {
	mu sync.Mutex

	Steps         []models.WorkflowStep
	Actions       []models.WorkflowAction
	Executions    []models.WorkflowExecution
	Approvals     []models.WorkflowApproval
	Logs          []models.ExecutionLogEntry
	Notifications []models.Notification
	Activities    []models.Activity

	Roles    map[string]map[string][]string // orgID -> roleName -> userIDs
	Managers map[string]string              // userID -> managerID
	Entities map[string]map[string]models.EntityOwner
	Fields   map[string]map[string]map[string]interface{} // entityType -> entityID -> field -> value
}

func NewMockStore() *MockStore {
	return &MockStore{
		Roles:    make(map[string]map[string][]string),
		Managers: make(map[string]string),
		Entities: make(map[string]map[string]models.EntityOwner),
		Fields:   make(map[string]map[string]map[string]interface{}),
	}
}

func (m *MockStore) Begin() (Store, error) { return m, nil }
func (m *MockStore) Commit() error         { return nil }
func (m *MockStore) Rollback() error       { return nil }
func (m *MockStore) Close() error          { return nil }

// Seed helpers

func (m *MockStore) SeedRole(orgID, roleName string, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Roles[orgID] == nil {
		m.Roles[orgID] = make(map[string][]string)
	}
	m.Roles[orgID][roleName] = append(m.Roles[orgID][roleName], userIDs...)
}

func (m *MockStore) SeedManager(userID, managerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Managers[userID] = managerID
}

func (m *MockStore) SeedEntity(entityType, entityID string, owner models.EntityOwner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Entities[entityType] == nil {
		m.Entities[entityType] = make(map[string]models.EntityOwner)
	}
	m.Entities[entityType][entityID] = owner
}

// Approval operations

func (m *MockStore) GetOverdueApprovals(now time.Time) ([]models.WorkflowApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkflowApproval
	for _, a := range m.Approvals {
		if a.Status == models.PendingApprovalStatus && a.DueAt != nil && !a.DueAt.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockStore) GetApprovalsAwaitingReminder() ([]models.WorkflowApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkflowApproval
	for _, a := range m.Approvals {
		if a.Status == models.PendingApprovalStatus && a.DueAt != nil && a.ReminderSentAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockStore) SaveApproval(a models.WorkflowApproval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Approvals = append(m.Approvals, a)
	return nil
}

func (m *MockStore) ResolveApproval(id string, status models.ApprovalStatus, notes string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.Approvals {
		if a.ID == id && a.Status == models.PendingApprovalStatus {
			respondedAt := now
			m.Approvals[i].Status = status
			m.Approvals[i].RespondedAt = &respondedAt
			m.Approvals[i].ResponseNotes = notes
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) MarkApprovalEscalated(id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.Approvals {
		if a.ID == id && a.Status == models.PendingApprovalStatus {
			escalatedAt := now
			m.Approvals[i].Status = models.EscalatedApprovalStatus
			m.Approvals[i].EscalatedAt = &escalatedAt
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) MarkReminderSent(id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.Approvals {
		if a.ID == id && a.Status == models.PendingApprovalStatus && a.ReminderSentAt == nil {
			sentAt := now
			m.Approvals[i].ReminderSentAt = &sentAt
			return true, nil
		}
	}
	return false, nil
}

// Step and definition operations

func (m *MockStore) GetStepsByIDs(ids []string) ([]models.WorkflowStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.WorkflowStep
	for _, s := range m.Steps {
		if wanted[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockStore) GetNextStep(workflowID string, afterOrder int) (models.WorkflowStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *models.WorkflowStep
	for i, s := range m.Steps {
		if s.WorkflowID != workflowID || s.StepOrder <= afterOrder {
			continue
		}
		if next == nil || s.StepOrder < next.StepOrder {
			next = &m.Steps[i]
		}
	}
	if next == nil {
		return models.WorkflowStep{}, ErrNotFound
	}
	return *next, nil
}

func (m *MockStore) GetCompletionActions(workflowID string) ([]models.WorkflowAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkflowAction
	for _, a := range m.Actions {
		if a.WorkflowID == workflowID && a.ActionTrigger == models.OnCompletionTrigger {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionOrder < out[j].ActionOrder })
	return out, nil
}

// Execution operations

func (m *MockStore) GetExecutionsByIDs(ids []string) ([]models.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []models.WorkflowExecution
	for _, e := range m.Executions {
		if wanted[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockStore) GetExecution(id string) (models.WorkflowExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Executions {
		if e.ID == id {
			return e, nil
		}
	}
	return models.WorkflowExecution{}, ErrNotFound
}

func (m *MockStore) SetExecutionStep(id string, stepOrder int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.Executions {
		if e.ID == id && e.Status == models.InProgressExecutionStatus {
			order := stepOrder
			m.Executions[i].CurrentStep = &order
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) CompleteExecution(id string, status models.ExecutionStatus, notes string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.Executions {
		if e.ID == id && e.Status == models.InProgressExecutionStatus {
			completedAt := now
			m.Executions[i].Status = status
			m.Executions[i].CompletedAt = &completedAt
			m.Executions[i].CompletionNotes = notes
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) EscalateExecution(id string, metadata models.Metadata) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.Executions {
		if e.ID == id && e.Status == models.InProgressExecutionStatus {
			m.Executions[i].Status = models.EscalatedExecutionStatus
			m.Executions[i].Metadata = metadata
			return true, nil
		}
	}
	return false, nil
}

// Audit trail and side effects

func (m *MockStore) AppendExecutionLog(entry models.ExecutionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, entry)
	return nil
}

func (m *MockStore) SaveNotification(n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, n)
	return nil
}

func (m *MockStore) SaveActivity(a models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Activities = append(m.Activities, a)
	return nil
}

// Directory lookups

func (m *MockStore) GetRoleUserID(orgID, roleName string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := m.Roles[orgID][roleName]
	if len(users) == 0 {
		return "", ErrNotFound
	}
	sorted := append([]string(nil), users...)
	sort.Strings(sorted)
	return sorted[0], nil
}

func (m *MockStore) GetManagerID(userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	managerID, ok := m.Managers[userID]
	if !ok || managerID == "" {
		return "", ErrNotFound
	}
	return managerID, nil
}

func (m *MockStore) GetEntityOwner(entityType, entityID string) (models.EntityOwner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.Entities[entityType][entityID]
	if !ok {
		return models.EntityOwner{}, ErrNotFound
	}
	return owner, nil
}

func (m *MockStore) UpdateEntityField(entityType, entityID, field string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Entities[entityType][entityID]; !ok {
		return ErrNotFound
	}
	if m.Fields[entityType] == nil {
		m.Fields[entityType] = make(map[string]map[string]interface{})
	}
	if m.Fields[entityType][entityID] == nil {
		m.Fields[entityType][entityID] = make(map[string]interface{})
	}
	m.Fields[entityType][entityID][field] = value
	return nil
}

// PendingCount returns the number of pending approvals for an execution,
// which the invariant tests assert stays at most one.
func (m *MockStore) PendingCount(executionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.Approvals {
		if a.ExecutionID == executionID && a.Status == models.PendingApprovalStatus {
			count++
		}
	}
	return count
}
