package storage

import (
	"time"

	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations the engine needs. Mutations on
// approvals and executions are conditional: they only apply while the row is
// still in the expected state and report whether they did, which is what keeps
// overlapping scheduler runs safe.
type Store interface {
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Approval operations
	GetOverdueApprovals(now time.Time) ([]models.WorkflowApproval, error)
	GetApprovalsAwaitingReminder() ([]models.WorkflowApproval, error)
	SaveApproval(a models.WorkflowApproval) error
	// ResolveApproval moves a pending approval to a terminal status and
	// records the response. Returns false if the approval is no longer pending.
	ResolveApproval(id string, status models.ApprovalStatus, notes string, now time.Time) (bool, error)
	// MarkApprovalEscalated stamps escalated_at on a still-pending approval.
	MarkApprovalEscalated(id string, now time.Time) (bool, error)
	// MarkReminderSent stamps reminder_sent_at, once, on a pending approval.
	MarkReminderSent(id string, now time.Time) (bool, error)

	// Step and definition operations (read-only to the engine)
	GetStepsByIDs(ids []string) ([]models.WorkflowStep, error)
	// GetNextStep returns the step with the smallest step_order strictly
	// greater than afterOrder, or ErrNotFound when the workflow has no more steps.
	GetNextStep(workflowID string, afterOrder int) (models.WorkflowStep, error)
	GetCompletionActions(workflowID string) ([]models.WorkflowAction, error)

	// Execution operations
	GetExecutionsByIDs(ids []string) ([]models.WorkflowExecution, error)
	GetExecution(id string) (models.WorkflowExecution, error)
	// SetExecutionStep advances current_step on an in-progress execution.
	SetExecutionStep(id string, stepOrder int) (bool, error)
	// CompleteExecution moves an in-progress execution to a terminal status.
	CompleteExecution(id string, status models.ExecutionStatus, notes string, now time.Time) (bool, error)
	// EscalateExecution marks an in-progress execution escalated and replaces
	// its metadata with the merged map recording escalation provenance.
	EscalateExecution(id string, metadata models.Metadata) (bool, error)

	// Audit trail and side effects
	AppendExecutionLog(entry models.ExecutionLogEntry) error
	SaveNotification(n models.Notification) error
	SaveActivity(a models.Activity) error

	// Directory lookups
	// GetRoleUserID returns the member of the role with the lowest user id so
	// role resolution is deterministic.
	GetRoleUserID(orgID, roleName string) (string, error)
	GetManagerID(userID string) (string, error)
	GetEntityOwner(entityType, entityID string) (models.EntityOwner, error)
	UpdateEntityField(entityType, entityID, field string, value interface{}) error
}
