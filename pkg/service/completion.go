package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/pkg/errors"
)

// runCompletionActions executes the definition's on_completion actions in
// order. Side effects are best-effort: a failing action is logged and the rest
// still run, and nothing here can undo the execution's completed status.
func (s *TimeoutService) runCompletionActions(execution models.WorkflowExecution, now time.Time) {
	actions, err := s.store.GetCompletionActions(execution.WorkflowID)
	if err != nil {
		s.logger.Errorf("Failed to load completion actions for workflow %s: %v", execution.WorkflowID, err)
		return
	}
	for _, action := range actions {
		if err := s.executeAction(execution, action, now); err != nil {
			s.logger.Errorf("Error executing action %s: %v", action.ID, err)
		}
	}
}

func (s *TimeoutService) executeAction(execution models.WorkflowExecution, action models.WorkflowAction, now time.Time) error {
	config := action.ActionConfig

	switch action.ActionType {
	case models.UpdateFieldAction:
		if config.Field == "" {
			return errors.New("update_field action has no field configured")
		}
		return s.store.UpdateEntityField(execution.EntityType, execution.EntityID, config.Field, config.FieldValue)

	case models.CreateActivityAction:
		activityType := config.ActivityType
		if activityType == "" {
			activityType = "workflow_completed"
		}
		subject := config.Subject
		if subject == "" {
			subject = "Workflow completed"
		}
		description := config.Description
		if description == "" {
			description = fmt.Sprintf("Workflow execution %s completed", execution.ID)
		}
		return s.store.SaveActivity(models.Activity{
			ID:           uuid.NewString(),
			OrgID:        execution.OrgID,
			EntityType:   execution.EntityType,
			EntityID:     execution.EntityID,
			ActivityType: activityType,
			Subject:      subject,
			Description:  description,
			CreatedAt:    now,
		})

	case models.SendNotificationAction:
		title := config.Subject
		if title == "" {
			title = "Workflow Notification"
		}
		message := config.Template
		if message == "" {
			message = "A workflow has been completed."
		}
		return s.store.SaveNotification(models.Notification{
			ID:         uuid.NewString(),
			OrgID:      execution.OrgID,
			UserID:     config.Recipient,
			Title:      title,
			Message:    message,
			Type:       models.WorkflowNotification,
			EntityType: execution.EntityType,
			EntityID:   execution.EntityID,
			CreatedAt:  now,
		})

	default:
		s.logger.Infof("Skipping unsupported completion action type %s", action.ActionType)
		return nil
	}
}
