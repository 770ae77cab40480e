package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/ignatij/approvalflow/pkg/storage"
	"github.com/pkg/errors"
)

// createApprovalForStep resolves the step's approver and inserts the pending
// approval for it. Resolution failures surface as ErrUnresolvedApprover; no
// approval row is ever created with an empty approver.
func (s *TimeoutService) createApprovalForStep(execution models.WorkflowExecution, step models.WorkflowStep, now time.Time) error {
	approverID, err := s.resolveApprover(execution, step)
	if err != nil {
		return err
	}

	var dueAt *time.Time
	if window, hasTimeout := step.TimeoutWindow(); hasTimeout {
		due := now.Add(window)
		dueAt = &due
	}

	approval := models.WorkflowApproval{
		ID:          uuid.NewString(),
		ExecutionID: execution.ID,
		StepID:      step.ID,
		StepOrder:   step.StepOrder,
		ApproverID:  approverID,
		Status:      models.PendingApprovalStatus,
		RequestedAt: now,
		DueAt:       dueAt,
	}
	return errors.Wrap(s.store.SaveApproval(approval), "save approval")
}

// resolveApprover determines who a newly created approval goes to, based on
// the step's approver type.
func (s *TimeoutService) resolveApprover(execution models.WorkflowExecution, step models.WorkflowStep) (string, error) {
	switch step.ApproverType {
	case models.SpecificUserApprover:
		if step.ApproverConfig.UserID == "" {
			return "", errors.Wrapf(ErrUnresolvedApprover, "step %d has no user_id configured", step.StepOrder)
		}
		return step.ApproverConfig.UserID, nil

	case models.RecordOwnerApprover:
		owner, err := s.store.GetEntityOwner(execution.EntityType, execution.EntityID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "", errors.Wrapf(ErrUnresolvedApprover, "entity %s/%s not found", execution.EntityType, execution.EntityID)
			}
			return "", errors.Wrap(err, "lookup entity owner")
		}
		if owner.OwnerID != "" {
			return owner.OwnerID, nil
		}
		if owner.CreatedBy != "" {
			return owner.CreatedBy, nil
		}
		return "", errors.Wrapf(ErrUnresolvedApprover, "entity %s/%s has no owner", execution.EntityType, execution.EntityID)

	case models.RoleBasedApprover:
		return s.roleApprover(execution.OrgID, step.ApproverConfig.RoleName, step.StepOrder)

	default:
		return s.roleApprover(execution.OrgID, "admin", step.StepOrder)
	}
}

func (s *TimeoutService) roleApprover(orgID, roleName string, stepOrder int) (string, error) {
	if roleName == "" {
		return "", errors.Wrapf(ErrUnresolvedApprover, "step %d has no role configured", stepOrder)
	}
	userID, err := s.store.GetRoleUserID(orgID, roleName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", errors.Wrapf(ErrUnresolvedApprover, "no user holds role %s in org %s", roleName, orgID)
		}
		return "", errors.Wrap(err, "lookup role member")
	}
	return userID, nil
}
