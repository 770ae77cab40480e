package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/pkg/errors"
)

// processOverdue applies the step's timeout action to one overdue approval and
// reports the outcome. The approval was pending at load time; every write
// below re-checks that precondition, so a row resolved by a concurrent human
// action (or an overlapping tick) comes back as skipped.
func (s *TimeoutService) processOverdue(
	approval models.WorkflowApproval,
	stepsByID map[string]models.WorkflowStep,
	executionsByID map[string]models.WorkflowExecution,
	now time.Time,
) Result {
	result := Result{
		ApprovalID:  approval.ID,
		ExecutionID: approval.ExecutionID,
		Action:      models.NothingAction,
	}

	step, stepOK := stepsByID[approval.StepID]
	execution, executionOK := executionsByID[approval.ExecutionID]
	if !stepOK || !executionOK {
		result.Status = SkippedResult
		result.Error = ErrMissingReference.Error()
		return result
	}

	// A workflow already finalized elsewhere must not be clobbered.
	if execution.Status != models.InProgressExecutionStatus {
		result.Status = SkippedResult
		result.Error = fmt.Sprintf("execution status is %s", execution.Status)
		return result
	}

	action := step.TimeoutAction
	if action == "" {
		action = models.NothingAction
	}
	result.Action = action

	err := s.applyTimeoutAction(approval, step, execution, action, now)
	result.Status = classify(err)
	if err != nil {
		result.Error = err.Error()
		if result.Status == ErrorResult {
			s.logger.Errorf("Failed to process approval %s: %v", approval.ID, err)
		}
	}
	return result
}

func (s *TimeoutService) applyTimeoutAction(
	approval models.WorkflowApproval,
	step models.WorkflowStep,
	execution models.WorkflowExecution,
	action models.TimeoutAction,
	now time.Time,
) error {
	switch action {
	case models.AutoApproveAction:
		return s.handleAutoApprove(approval, execution, now)
	case models.AutoRejectAction:
		return s.handleAutoReject(approval, execution, now)
	case models.EscalateAction:
		return s.handleEscalation(approval, step, execution, now)
	case models.ReminderAction:
		// One final reminder, then the approval expires: without a corrective
		// policy it must not stay pending forever.
		s.sendReminderNotification(approval, step, execution, now)
		return s.markExpired(approval, now)
	default:
		return s.markExpired(approval, now)
	}
}

func (s *TimeoutService) handleAutoApprove(approval models.WorkflowApproval, execution models.WorkflowExecution, now time.Time) error {
	ok, err := s.store.ResolveApproval(approval.ID, models.ApprovedApprovalStatus, "Auto-approved due to timeout", now)
	if err != nil {
		return errors.Wrap(err, "approve approval")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "approval %s no longer pending", approval.ID)
	}

	if err := s.logEvent(approval.ExecutionID, models.ApprovalAutoLog, approval.StepOrder,
		fmt.Sprintf("Step %d auto-approved due to timeout", approval.StepOrder),
		models.Metadata{
			"approval_id":  approval.ID,
			"action":       string(models.AutoApproveAction),
			"due_at":       approval.DueAt,
			"processed_at": now,
		}, now); err != nil {
		return err
	}

	return s.advanceWorkflow(execution, approval.StepOrder, models.ApprovedApprovalStatus, now)
}

func (s *TimeoutService) handleAutoReject(approval models.WorkflowApproval, execution models.WorkflowExecution, now time.Time) error {
	ok, err := s.store.ResolveApproval(approval.ID, models.RejectedApprovalStatus, "Auto-rejected due to timeout", now)
	if err != nil {
		return errors.Wrap(err, "reject approval")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "approval %s no longer pending", approval.ID)
	}

	ok, err = s.store.CompleteExecution(execution.ID, models.RejectedExecutionStatus, "Auto-rejected due to approval timeout", now)
	if err != nil {
		return errors.Wrap(err, "reject execution")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "execution %s no longer in progress", execution.ID)
	}

	return s.logEvent(approval.ExecutionID, models.ApprovalAutoLog, approval.StepOrder,
		fmt.Sprintf("Step %d auto-rejected due to timeout", approval.StepOrder),
		models.Metadata{
			"approval_id":  approval.ID,
			"action":       string(models.AutoRejectAction),
			"due_at":       approval.DueAt,
			"processed_at": now,
		}, now)
}

// markExpired is the terminal outcome for the reminder and nothing actions.
func (s *TimeoutService) markExpired(approval models.WorkflowApproval, now time.Time) error {
	ok, err := s.store.ResolveApproval(approval.ID, models.ExpiredApprovalStatus, "Expired due to timeout", now)
	if err != nil {
		return errors.Wrap(err, "expire approval")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "approval %s no longer pending", approval.ID)
	}

	ok, err = s.store.CompleteExecution(approval.ExecutionID, models.ExpiredExecutionStatus, "Expired due to approval timeout", now)
	if err != nil {
		return errors.Wrap(err, "expire execution")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "execution %s no longer in progress", approval.ExecutionID)
	}

	return s.logEvent(approval.ExecutionID, models.TimeoutLog, approval.StepOrder,
		fmt.Sprintf("Step %d expired due to timeout", approval.StepOrder),
		models.Metadata{
			"approval_id":  approval.ID,
			"due_at":       approval.DueAt,
			"processed_at": now,
		}, now)
}

func (s *TimeoutService) logEvent(executionID string, logType models.LogType, stepOrder int, message string, metadata models.Metadata, now time.Time) error {
	entry := models.ExecutionLogEntry{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		LogType:     logType,
		StepOrder:   stepOrder,
		Message:     message,
		Metadata:    metadata,
		CreatedAt:   now,
	}
	return errors.Wrap(s.store.AppendExecutionLog(entry), "append execution log")
}
