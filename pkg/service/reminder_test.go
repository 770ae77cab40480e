package service_test

import (
	"testing"
	"time"

	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/ignatij/approvalflow/pkg/service"
	"github.com/ignatij/approvalflow/pkg/storage"
	"github.com/stretchr/testify/assert"
)

// seedPending wires an in-progress execution with a pending approval that is
// not overdue: requested at the given time with the step's full window ahead.
func seedPending(store *storage.MockStore, step models.WorkflowStep, requestedAt time.Time) models.WorkflowApproval {
	execution := models.WorkflowExecution{
		ID:         "exec-1",
		OrgID:      "org-1",
		WorkflowID: step.WorkflowID,
		EntityType: "invoices",
		EntityID:   "inv-1",
		Status:     models.InProgressExecutionStatus,
	}
	window, _ := step.TimeoutWindow()
	dueAt := requestedAt.Add(window)
	approval := models.WorkflowApproval{
		ID:          "appr-1",
		ExecutionID: execution.ID,
		StepID:      step.ID,
		StepOrder:   step.StepOrder,
		ApproverID:  "u-1",
		Status:      models.PendingApprovalStatus,
		RequestedAt: requestedAt,
		DueAt:       &dueAt,
	}
	store.Steps = append(store.Steps, step)
	store.Executions = append(store.Executions, execution)
	store.Approvals = append(store.Approvals, approval)
	return approval
}

func reminderStep(percent *int, enabled bool) models.WorkflowStep {
	return models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		StepName:        "Manager review",
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
		TimeoutDuration: f64(10),
		TimeoutUnit:     models.HoursUnit,
		TimeoutAction:   models.AutoApproveAction,
		ReminderEnabled: enabled,
		ReminderPercent: percent,
	}
}

func TestReminders_FireOnceAtThreshold(t *testing.T) {
	store := storage.NewMockStore()
	requestedAt := now.Add(-5 * time.Hour)
	approval := seedPending(store, reminderStep(intp(50), true), requestedAt)

	svc := service.NewTimeoutService(store, logger{})

	t.Run("before the threshold nothing fires", func(t *testing.T) {
		report, err := svc.ProcessTimeouts(requestedAt.Add(4 * time.Hour))
		assert.NoError(t, err)
		assert.Equal(t, 0, report.Total)
		assert.Empty(t, store.Notifications)
	})

	t.Run("at half the window the reminder fires", func(t *testing.T) {
		at := requestedAt.Add(5 * time.Hour)
		report, err := svc.ProcessTimeouts(at)
		assert.NoError(t, err)
		assert.Equal(t, 1, report.Total)
		assert.Equal(t, 1, report.Processed)
		assert.Equal(t, models.ReminderAction, report.Results[0].Action)

		reminded := findApproval(t, store, approval.ID)
		assert.Equal(t, models.PendingApprovalStatus, reminded.Status)
		assert.NotNil(t, reminded.ReminderSentAt)
		assert.Equal(t, at, *reminded.ReminderSentAt)

		assert.Len(t, store.Notifications, 1)
		notification := store.Notifications[0]
		assert.Equal(t, models.ApprovalReminderNotification, notification.Type)
		assert.Equal(t, "u-1", notification.UserID)
		assert.Equal(t, "Approval Reminder", notification.Title)
		assert.Contains(t, notification.Message, `"Manager review"`)
		assert.Contains(t, notification.Message, "due in 5 hours")
		assert.Equal(t, "/employee/admin/workflows/approvals?execution=exec-1", notification.ActionURL)
	})

	t.Run("a later tick does not fire again", func(t *testing.T) {
		report, err := svc.ProcessTimeouts(requestedAt.Add(9 * time.Hour))
		assert.NoError(t, err)
		assert.Equal(t, 0, report.Total)
		assert.Len(t, store.Notifications, 1)
	})
}

func TestReminders_SingularHourMessage(t *testing.T) {
	store := storage.NewMockStore()
	step := reminderStep(intp(50), true)
	step.TimeoutDuration = f64(2)
	requestedAt := now.Add(-time.Hour)
	seedPending(store, step, requestedAt)

	svc := service.NewTimeoutService(store, logger{})
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Len(t, store.Notifications, 1)
	assert.Contains(t, store.Notifications[0].Message, "due in 1 hour.")
}

func TestReminders_SkipWhenNotConfigured(t *testing.T) {
	tests := []struct {
		name string
		step models.WorkflowStep
	}{
		{name: "disabled", step: reminderStep(intp(50), false)},
		{name: "no percent", step: reminderStep(nil, true)},
		{name: "zero percent", step: reminderStep(intp(0), true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStore()
			seedPending(store, tt.step, now.Add(-9*time.Hour))

			svc := service.NewTimeoutService(store, logger{})
			report, err := svc.ProcessTimeouts(now)
			assert.NoError(t, err)
			assert.Equal(t, 0, report.Total)
			assert.Empty(t, store.Notifications)
		})
	}
}
