package service

import (
	"time"

	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/ignatij/approvalflow/pkg/storage"
	"github.com/pkg/errors"
)

// advanceWorkflow moves an execution forward once a step resolved. A rejection
// terminates the execution. An approval either opens the next step's approval
// or, when no step remains, completes the execution and fires its completion
// actions.
func (s *TimeoutService) advanceWorkflow(execution models.WorkflowExecution, resolvedStepOrder int, result models.ApprovalStatus, now time.Time) error {
	if result == models.RejectedApprovalStatus {
		ok, err := s.store.CompleteExecution(execution.ID, models.RejectedExecutionStatus, "", now)
		if err != nil {
			return errors.Wrap(err, "reject execution")
		}
		if !ok {
			return errors.Wrapf(ErrInconsistentState, "execution %s no longer in progress", execution.ID)
		}
		return nil
	}

	next, err := s.store.GetNextStep(execution.WorkflowID, resolvedStepOrder)
	if errors.Is(err, storage.ErrNotFound) {
		ok, err := s.store.CompleteExecution(execution.ID, models.CompletedExecutionStatus, "All approval steps completed", now)
		if err != nil {
			return errors.Wrap(err, "complete execution")
		}
		if !ok {
			return errors.Wrapf(ErrInconsistentState, "execution %s no longer in progress", execution.ID)
		}
		s.runCompletionActions(execution, now)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "lookup next step")
	}

	// A concurrent human action may have finalized the execution since the
	// load phase; in that case no fresh approval must be created.
	ok, err := s.store.SetExecutionStep(execution.ID, next.StepOrder)
	if err != nil {
		return errors.Wrap(err, "advance execution step")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "execution %s no longer in progress", execution.ID)
	}
	return s.createApprovalForStep(execution, next, now)
}
