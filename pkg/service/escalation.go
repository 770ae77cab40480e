package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/ignatij/approvalflow/pkg/storage"
	"github.com/pkg/errors"
)

// handleEscalation reassigns an overdue approval without changing the step:
// the old approval is marked escalated and a fresh pending approval is created
// for the resolved target with a new deadline. When no target resolves, the
// approval is still escalated and the execution metadata records a null
// target so the stall is visible, but no dangling approval row is created.
func (s *TimeoutService) handleEscalation(approval models.WorkflowApproval, step models.WorkflowStep, execution models.WorkflowExecution, now time.Time) error {
	ok, err := s.store.MarkApprovalEscalated(approval.ID, now)
	if err != nil {
		return errors.Wrap(err, "escalate approval")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "approval %s no longer pending", approval.ID)
	}

	targetID := s.resolveEscalationTarget(step, execution, approval)

	if targetID != "" {
		var dueAt *time.Time
		if window, hasTimeout := step.TimeoutWindow(); hasTimeout {
			due := now.Add(window)
			dueAt = &due
		}
		replacement := models.WorkflowApproval{
			ID:          uuid.NewString(),
			ExecutionID: approval.ExecutionID,
			StepID:      approval.StepID,
			StepOrder:   approval.StepOrder,
			ApproverID:  targetID,
			Status:      models.PendingApprovalStatus,
			RequestedAt: now,
			DueAt:       dueAt,
		}
		if err := s.store.SaveApproval(replacement); err != nil {
			return errors.Wrap(err, "create escalation approval")
		}
		s.sendEscalationNotification(execution, step, targetID, approval.ApproverID, now)
	}

	metadata := models.Metadata{}
	for k, v := range execution.Metadata {
		metadata[k] = v
	}
	metadata["escalated_at"] = now.Format(time.RFC3339)
	metadata["escalated_from"] = approval.ApproverID
	if targetID != "" {
		metadata["escalated_to"] = targetID
	} else {
		// Recorded as null, not empty string, so readers can tell "no target
		// resolved" apart from a target with an empty id.
		metadata["escalated_to"] = nil
	}

	ok, err = s.store.EscalateExecution(execution.ID, metadata)
	if err != nil {
		return errors.Wrap(err, "escalate execution")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "execution %s no longer in progress", execution.ID)
	}

	escalatedTo := targetID
	if escalatedTo == "" {
		escalatedTo = "N/A"
	}
	return s.logEvent(approval.ExecutionID, models.EscalationLog, approval.StepOrder,
		fmt.Sprintf("Step %d escalated from %s to %s", approval.StepOrder, approval.ApproverID, escalatedTo),
		models.Metadata{
			"approval_id":       approval.ID,
			"original_approver": approval.ApproverID,
			"escalated_to":      targetID,
			"due_at":            approval.DueAt,
			"processed_at":      now,
		}, now)
}

// resolveEscalationTarget walks the fallback chain: the step's escalation_to
// config (a direct user or a role), then the current approver's manager, then
// any org admin. Returns "" when every tier comes up empty.
func (s *TimeoutService) resolveEscalationTarget(step models.WorkflowStep, execution models.WorkflowExecution, approval models.WorkflowApproval) string {
	if target := step.ApproverConfig.EscalationTo; !target.IsZero() {
		if target.UserID != "" {
			return target.UserID
		}
		if target.RoleName != "" {
			userID, err := s.store.GetRoleUserID(execution.OrgID, target.RoleName)
			if err == nil {
				return userID
			}
			if !errors.Is(err, storage.ErrNotFound) {
				s.logger.Errorf("Escalation role lookup failed for role %s: %v", target.RoleName, err)
			}
		}
	}

	managerID, err := s.store.GetManagerID(approval.ApproverID)
	if err == nil {
		return managerID
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Errorf("Escalation manager lookup failed for user %s: %v", approval.ApproverID, err)
	}

	adminID, err := s.store.GetRoleUserID(execution.OrgID, "admin")
	if err == nil {
		return adminID
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Errorf("Escalation admin lookup failed for org %s: %v", execution.OrgID, err)
	}
	return ""
}
