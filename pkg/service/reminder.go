package service

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/pkg/errors"
)

// processReminders scans pending approvals that have a deadline but no
// reminder yet, and fires the reminder once the configured fraction of the
// response window has elapsed. It runs after the overdue scan on every tick;
// the reminder_sent_at stamp is what keeps a reminder from firing twice.
func (s *TimeoutService) processReminders(now time.Time) ([]Result, error) {
	approvals, err := s.store.GetApprovalsAwaitingReminder()
	if err != nil {
		return nil, errors.Wrap(err, "load approvals awaiting reminder")
	}
	if len(approvals) == 0 {
		return nil, nil
	}

	stepIDs := uniqueStrings(approvals, func(a models.WorkflowApproval) string { return a.StepID })
	steps, err := s.store.GetStepsByIDs(stepIDs)
	if err != nil {
		return nil, errors.Wrap(err, "load reminder steps")
	}
	stepsByID := make(map[string]models.WorkflowStep, len(steps))
	for _, step := range steps {
		stepsByID[step.ID] = step
	}

	var results []Result
	for _, approval := range approvals {
		step, ok := stepsByID[approval.StepID]
		if !ok || !step.ReminderEnabled || step.ReminderPercent == nil || *step.ReminderPercent <= 0 {
			continue
		}

		window := approval.DueAt.Sub(approval.RequestedAt)
		remindAt := approval.RequestedAt.Add(window * time.Duration(*step.ReminderPercent) / 100)
		if now.Before(remindAt) {
			continue
		}

		result := Result{
			ApprovalID:  approval.ID,
			ExecutionID: approval.ExecutionID,
			Action:      models.ReminderAction,
		}
		if err := s.sendReminder(approval, step, now); err != nil {
			result.Status = classify(err)
			result.Error = err.Error()
		} else {
			result.Status = ProcessedResult
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *TimeoutService) sendReminder(approval models.WorkflowApproval, step models.WorkflowStep, now time.Time) error {
	execution, err := s.store.GetExecution(approval.ExecutionID)
	if err != nil {
		return errors.Wrapf(ErrMissingReference, "execution %s: %v", approval.ExecutionID, err)
	}

	s.sendReminderNotification(approval, step, execution, now)

	ok, err := s.store.MarkReminderSent(approval.ID, now)
	if err != nil {
		return errors.Wrap(err, "mark reminder sent")
	}
	if !ok {
		return errors.Wrapf(ErrInconsistentState, "approval %s reminder already handled", approval.ID)
	}
	return nil
}

// sendReminderNotification is fire and forget: a failed insert must never
// block the state transition it describes.
func (s *TimeoutService) sendReminderNotification(approval models.WorkflowApproval, step models.WorkflowStep, execution models.WorkflowExecution, now time.Time) {
	message := fmt.Sprintf("You have a pending approval for %q that requires your attention.", step.StepName)
	if approval.DueAt != nil {
		hoursRemaining := int(math.Round(approval.DueAt.Sub(now).Hours()))
		plural := "s"
		if hoursRemaining == 1 {
			plural = ""
		}
		message = fmt.Sprintf("You have a pending approval for %q that is due in %d hour%s.", step.StepName, hoursRemaining, plural)
	}

	notification := models.Notification{
		ID:         uuid.NewString(),
		OrgID:      execution.OrgID,
		UserID:     approval.ApproverID,
		Title:      "Approval Reminder",
		Message:    message,
		Type:       models.ApprovalReminderNotification,
		EntityType: execution.EntityType,
		EntityID:   execution.EntityID,
		ActionURL:  fmt.Sprintf("/employee/admin/workflows/approvals?execution=%s", execution.ID),
		CreatedAt:  now,
	}
	if err := s.store.SaveNotification(notification); err != nil {
		s.logger.Errorf("Failed to send reminder notification for approval %s: %v", approval.ID, err)
	}
}

func (s *TimeoutService) sendEscalationNotification(execution models.WorkflowExecution, step models.WorkflowStep, escalatedTo, escalatedFrom string, now time.Time) {
	notification := models.Notification{
		ID:         uuid.NewString(),
		OrgID:      execution.OrgID,
		UserID:     escalatedTo,
		Title:      "Escalated Approval Request",
		Message:    fmt.Sprintf("An approval for %q has been escalated to you because the previous approver did not respond in time.", step.StepName),
		Type:       models.ApprovalEscalationNotification,
		EntityType: execution.EntityType,
		EntityID:   execution.EntityID,
		ActionURL:  fmt.Sprintf("/employee/admin/workflows/approvals?execution=%s", execution.ID),
		Metadata: models.Metadata{
			"escalated_from": escalatedFrom,
			"step_name":      step.StepName,
		},
		CreatedAt: now,
	}
	if err := s.store.SaveNotification(notification); err != nil {
		s.logger.Errorf("Failed to send escalation notification for execution %s: %v", execution.ID, err)
	}
}
