package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/ignatij/approvalflow/pkg/storage"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// entity_type values name the table a workflow binds to; anything that is not
// a plain lowercase identifier is rejected before it reaches a query.
var entityTablePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

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

// GetOverdueApprovals returns pending approvals whose deadline has passed.
func (s *PostgresStore) GetOverdueApprovals(now time.Time) ([]models.WorkflowApproval, error) {
	approvals := []models.WorkflowApproval{}
	err := s.db.Select(&approvals, `
		SELECT * FROM workflow_approvals
		WHERE status = 'pending' AND due_at IS NOT NULL AND due_at <= $1
		ORDER BY due_at`, now)
	if err != nil {
		return nil, fmt.Errorf("get overdue approvals: %w", err)
	}
	return approvals, nil
}

// GetApprovalsAwaitingReminder returns pending approvals with a deadline that
// have not been reminded yet.
func (s *PostgresStore) GetApprovalsAwaitingReminder() ([]models.WorkflowApproval, error) {
	approvals := []models.WorkflowApproval{}
	err := s.db.Select(&approvals, `
		SELECT * FROM workflow_approvals
		WHERE status = 'pending' AND due_at IS NOT NULL AND reminder_sent_at IS NULL
		ORDER BY due_at`)
	if err != nil {
		return nil, fmt.Errorf("get approvals awaiting reminder: %w", err)
	}
	return approvals, nil
}

func (s *PostgresStore) SaveApproval(a models.WorkflowApproval) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_approvals
			(id, execution_id, step_id, step_order, approver_id, status, requested_at, due_at, reminder_sent_at, responded_at, response_notes, escalated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.ExecutionID, a.StepID, a.StepOrder, a.ApproverID, a.Status,
		a.RequestedAt, a.DueAt, a.ReminderSentAt, a.RespondedAt, a.ResponseNotes, a.EscalatedAt)
	if err != nil {
		return fmt.Errorf("save approval %s: %w", a.ID, err)
	}
	return nil
}

func (s *PostgresStore) ResolveApproval(id string, status models.ApprovalStatus, notes string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE workflow_approvals
		SET status = $1, responded_at = $2, response_notes = $3
		WHERE id = $4 AND status = 'pending'`,
		status, now, notes, id)
	if err != nil {
		return false, fmt.Errorf("resolve approval %s: %w", id, err)
	}
	return affected(res)
}

func (s *PostgresStore) MarkApprovalEscalated(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE workflow_approvals
		SET status = 'escalated', escalated_at = $1
		WHERE id = $2 AND status = 'pending'`,
		now, id)
	if err != nil {
		return false, fmt.Errorf("escalate approval %s: %w", id, err)
	}
	return affected(res)
}

func (s *PostgresStore) MarkReminderSent(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE workflow_approvals
		SET reminder_sent_at = $1
		WHERE id = $2 AND status = 'pending' AND reminder_sent_at IS NULL`,
		now, id)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent %s: %w", id, err)
	}
	return affected(res)
}

func (s *PostgresStore) GetStepsByIDs(ids []string) ([]models.WorkflowStep, error) {
	steps := []models.WorkflowStep{}
	if len(ids) == 0 {
		return steps, nil
	}
	err := s.db.Select(&steps, `SELECT * FROM workflow_steps WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get steps: %w", err)
	}
	return steps, nil
}

func (s *PostgresStore) GetNextStep(workflowID string, afterOrder int) (models.WorkflowStep, error) {
	var step models.WorkflowStep
	err := s.db.Get(&step, `
		SELECT * FROM workflow_steps
		WHERE workflow_id = $1 AND step_order > $2
		ORDER BY step_order
		LIMIT 1`, workflowID, afterOrder)
	if err == sql.ErrNoRows {
		return models.WorkflowStep{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowStep{}, fmt.Errorf("get next step for workflow %s: %w", workflowID, err)
	}
	return step, nil
}

func (s *PostgresStore) GetCompletionActions(workflowID string) ([]models.WorkflowAction, error) {
	actions := []models.WorkflowAction{}
	err := s.db.Select(&actions, `
		SELECT * FROM workflow_actions
		WHERE workflow_id = $1 AND action_trigger = 'on_completion'
		ORDER BY action_order`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("get completion actions for workflow %s: %w", workflowID, err)
	}
	return actions, nil
}

func (s *PostgresStore) GetExecutionsByIDs(ids []string) ([]models.WorkflowExecution, error) {
	executions := []models.WorkflowExecution{}
	if len(ids) == 0 {
		return executions, nil
	}
	err := s.db.Select(&executions, `SELECT * FROM workflow_executions WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get executions: %w", err)
	}
	return executions, nil
}

func (s *PostgresStore) GetExecution(id string) (models.WorkflowExecution, error) {
	var execution models.WorkflowExecution
	err := s.db.Get(&execution, `SELECT * FROM workflow_executions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return models.WorkflowExecution{}, storage.ErrNotFound
	}
	if err != nil {
		return models.WorkflowExecution{}, fmt.Errorf("get execution %s: %w", id, err)
	}
	return execution, nil
}

func (s *PostgresStore) SetExecutionStep(id string, stepOrder int) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE workflow_executions
		SET current_step = $1
		WHERE id = $2 AND status = 'in_progress'`,
		stepOrder, id)
	if err != nil {
		return false, fmt.Errorf("set execution step %s: %w", id, err)
	}
	return affected(res)
}

func (s *PostgresStore) CompleteExecution(id string, status models.ExecutionStatus, notes string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE workflow_executions
		SET status = $1, completed_at = $2, completion_notes = $3
		WHERE id = $4 AND status = 'in_progress'`,
		status, now, notes, id)
	if err != nil {
		return false, fmt.Errorf("complete execution %s: %w", id, err)
	}
	return affected(res)
}

func (s *PostgresStore) EscalateExecution(id string, metadata models.Metadata) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE workflow_executions
		SET status = 'escalated', metadata = $1
		WHERE id = $2 AND status = 'in_progress'`,
		metadata, id)
	if err != nil {
		return false, fmt.Errorf("escalate execution %s: %w", id, err)
	}
	return affected(res)
}

func (s *PostgresStore) AppendExecutionLog(entry models.ExecutionLogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_execution_logs (id, execution_id, log_type, step_order, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ExecutionID, entry.LogType, entry.StepOrder, entry.Message, entry.Metadata, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveNotification(n models.Notification) error {
	_, err := s.db.Exec(`
		INSERT INTO notifications (id, org_id, user_id, title, message, notification_type, entity_type, entity_id, action_url, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.OrgID, n.UserID, n.Title, n.Message, n.Type, n.EntityType, n.EntityID, n.ActionURL, n.Metadata, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("save notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveActivity(a models.Activity) error {
	_, err := s.db.Exec(`
		INSERT INTO activities (id, org_id, entity_type, entity_id, activity_type, subject, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.OrgID, a.EntityType, a.EntityID, a.ActivityType, a.Subject, a.Description, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save activity: %w", err)
	}
	return nil
}

// GetRoleUserID picks the role member with the lowest user id so repeated
// lookups resolve the same person.
func (s *PostgresStore) GetRoleUserID(orgID, roleName string) (string, error) {
	var userID string
	err := s.db.Get(&userID, `
		SELECT user_id FROM user_roles
		WHERE org_id = $1 AND role_name = $2
		ORDER BY user_id
		LIMIT 1`, orgID, roleName)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get role user for %s/%s: %w", orgID, roleName, err)
	}
	return userID, nil
}

func (s *PostgresStore) GetManagerID(userID string) (string, error) {
	var managerID sql.NullString
	err := s.db.Get(&managerID, `SELECT manager_id FROM employees WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get manager for %s: %w", userID, err)
	}
	if !managerID.Valid || managerID.String == "" {
		return "", storage.ErrNotFound
	}
	return managerID.String, nil
}

func (s *PostgresStore) GetEntityOwner(entityType, entityID string) (models.EntityOwner, error) {
	if !entityTablePattern.MatchString(entityType) {
		return models.EntityOwner{}, fmt.Errorf("invalid entity type %q", entityType)
	}
	var row struct {
		OwnerID   sql.NullString `db:"owner_id"`
		CreatedBy sql.NullString `db:"created_by"`
	}
	query := fmt.Sprintf(`SELECT owner_id, created_by FROM %s WHERE id = $1`, pq.QuoteIdentifier(entityType))
	err := s.db.Get(&row, query, entityID)
	if err == sql.ErrNoRows {
		return models.EntityOwner{}, storage.ErrNotFound
	}
	if err != nil {
		return models.EntityOwner{}, fmt.Errorf("get entity owner %s/%s: %w", entityType, entityID, err)
	}
	return models.EntityOwner{OwnerID: row.OwnerID.String, CreatedBy: row.CreatedBy.String}, nil
}

func (s *PostgresStore) UpdateEntityField(entityType, entityID, field string, value interface{}) error {
	if !entityTablePattern.MatchString(entityType) {
		return fmt.Errorf("invalid entity type %q", entityType)
	}
	if !entityTablePattern.MatchString(field) {
		return fmt.Errorf("invalid field name %q", field)
	}
	query := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE id = $2`,
		pq.QuoteIdentifier(entityType), pq.QuoteIdentifier(field))
	if _, err := s.db.Exec(query, value, entityID); err != nil {
		return fmt.Errorf("update %s.%s: %w", entityType, field, err)
	}
	return nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
