package service_test

import (
	"testing"
	"time"

	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/ignatij/approvalflow/pkg/service"
	"github.com/ignatij/approvalflow/pkg/storage"
	"github.com/stretchr/testify/assert"
)

type logger struct{}

func (logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (logger) Errorf(format string, args ...interface{}) {
	// no-op
}

func f64(v float64) *float64 {
	return &v
}

func intp(v int) *int {
	return &v
}

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// seedOverdue wires a minimal scenario: one in-progress execution on the given
// step with a pending approval whose deadline passed an hour ago.
func seedOverdue(store *storage.MockStore, step models.WorkflowStep, approverID string) (models.WorkflowExecution, models.WorkflowApproval) {
	execution := models.WorkflowExecution{
		ID:          "exec-1",
		OrgID:       "org-1",
		WorkflowID:  step.WorkflowID,
		EntityType:  "invoices",
		EntityID:    "inv-1",
		Status:      models.InProgressExecutionStatus,
		CurrentStep: intp(step.StepOrder),
		CreatedAt:   now.Add(-24 * time.Hour),
	}
	dueAt := now.Add(-time.Hour)
	approval := models.WorkflowApproval{
		ID:          "appr-1",
		ExecutionID: execution.ID,
		StepID:      step.ID,
		StepOrder:   step.StepOrder,
		ApproverID:  approverID,
		Status:      models.PendingApprovalStatus,
		RequestedAt: now.Add(-5 * time.Hour),
		DueAt:       &dueAt,
	}
	store.Steps = append(store.Steps, step)
	store.Executions = append(store.Executions, execution)
	store.Approvals = append(store.Approvals, approval)
	return execution, approval
}

func findApproval(t *testing.T, store *storage.MockStore, id string) models.WorkflowApproval {
	t.Helper()
	for _, a := range store.Approvals {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("approval %s not found", id)
	return models.WorkflowApproval{}
}

func findExecution(t *testing.T, store *storage.MockStore, id string) models.WorkflowExecution {
	t.Helper()
	for _, e := range store.Executions {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("execution %s not found", id)
	return models.WorkflowExecution{}
}

func logsOfType(store *storage.MockStore, logType models.LogType) []models.ExecutionLogEntry {
	var out []models.ExecutionLogEntry
	for _, entry := range store.Logs {
		if entry.LogType == logType {
			out = append(out, entry)
		}
	}
	return out
}

func TestProcessTimeouts_EmptyBatch(t *testing.T) {
	svc := service.NewTimeoutService(storage.NewMockStore(), logger{})

	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 0, report.Processed)
	assert.Empty(t, report.Results)
	assert.Equal(t, now, report.Timestamp)
}

func TestProcessTimeouts_AutoApprove_CompletesLastStep(t *testing.T) {
	store := storage.NewMockStore()
	step := models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		StepName:        "Manager review",
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
		TimeoutDuration: f64(4),
		TimeoutUnit:     models.HoursUnit,
		TimeoutAction:   models.AutoApproveAction,
	}
	execution, approval := seedOverdue(store, step, "u-1")
	store.Actions = append(store.Actions, models.WorkflowAction{
		ID:            "act-1",
		WorkflowID:    "wf-1",
		ActionTrigger: models.OnCompletionTrigger,
		ActionOrder:   1,
		ActionType:    models.CreateActivityAction,
	})

	svc := service.NewTimeoutService(store, logger{})
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, models.AutoApproveAction, report.Results[0].Action)
	assert.Equal(t, service.ProcessedResult, report.Results[0].Status)

	resolved := findApproval(t, store, approval.ID)
	assert.Equal(t, models.ApprovedApprovalStatus, resolved.Status)
	assert.Equal(t, "Auto-approved due to timeout", resolved.ResponseNotes)
	assert.NotNil(t, resolved.RespondedAt)

	finished := findExecution(t, store, execution.ID)
	assert.Equal(t, models.CompletedExecutionStatus, finished.Status)
	assert.Equal(t, "All approval steps completed", finished.CompletionNotes)
	assert.NotNil(t, finished.CompletedAt)

	assert.Equal(t, 0, store.PendingCount(execution.ID))

	// The single completion action produced exactly one activity with defaults.
	assert.Len(t, store.Activities, 1)
	assert.Equal(t, "workflow_completed", store.Activities[0].ActivityType)
	assert.Equal(t, "Workflow completed", store.Activities[0].Subject)
	assert.Equal(t, "invoices", store.Activities[0].EntityType)

	autoLogs := logsOfType(store, models.ApprovalAutoLog)
	assert.Len(t, autoLogs, 1)
	assert.Equal(t, "Step 1 auto-approved due to timeout", autoLogs[0].Message)
}

func TestProcessTimeouts_AutoApprove_AdvancesToNextStep(t *testing.T) {
	store := storage.NewMockStore()
	step1 := models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		StepName:        "Manager review",
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
		TimeoutDuration: f64(4),
		TimeoutUnit:     models.HoursUnit,
		TimeoutAction:   models.AutoApproveAction,
	}
	step2 := models.WorkflowStep{
		ID:              "step-2",
		WorkflowID:      "wf-1",
		StepOrder:       2,
		StepName:        "Finance review",
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-2"},
		TimeoutDuration: f64(2),
		TimeoutUnit:     models.DaysUnit,
		TimeoutAction:   models.EscalateAction,
	}
	execution, _ := seedOverdue(store, step1, "u-1")
	store.Steps = append(store.Steps, step2)

	svc := service.NewTimeoutService(store, logger{})
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	advanced := findExecution(t, store, execution.ID)
	assert.Equal(t, models.InProgressExecutionStatus, advanced.Status)
	assert.NotNil(t, advanced.CurrentStep)
	assert.Equal(t, 2, *advanced.CurrentStep)

	// Exactly one pending approval remains, for the next step's approver with
	// a deadline derived from that step's own window.
	assert.Equal(t, 1, store.PendingCount(execution.ID))
	var next models.WorkflowApproval
	for _, a := range store.Approvals {
		if a.Status == models.PendingApprovalStatus {
			next = a
		}
	}
	assert.Equal(t, "step-2", next.StepID)
	assert.Equal(t, 2, next.StepOrder)
	assert.Equal(t, "u-2", next.ApproverID)
	assert.Equal(t, now, next.RequestedAt)
	assert.NotNil(t, next.DueAt)
	assert.Equal(t, now.Add(48*time.Hour), *next.DueAt)
}

func TestProcessTimeouts_AutoReject(t *testing.T) {
	store := storage.NewMockStore()
	step := models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		StepName:        "Manager review",
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
		TimeoutDuration: f64(4),
		TimeoutUnit:     models.HoursUnit,
		TimeoutAction:   models.AutoRejectAction,
	}
	execution, approval := seedOverdue(store, step, "u-1")

	svc := service.NewTimeoutService(store, logger{})
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, models.AutoRejectAction, report.Results[0].Action)

	rejected := findApproval(t, store, approval.ID)
	assert.Equal(t, models.RejectedApprovalStatus, rejected.Status)
	assert.Equal(t, "Auto-rejected due to timeout", rejected.ResponseNotes)

	finished := findExecution(t, store, execution.ID)
	assert.Equal(t, models.RejectedExecutionStatus, finished.Status)
	assert.Equal(t, "Auto-rejected due to approval timeout", finished.CompletionNotes)

	autoLogs := logsOfType(store, models.ApprovalAutoLog)
	assert.Len(t, autoLogs, 1)
	assert.Equal(t, "Step 1 auto-rejected due to timeout", autoLogs[0].Message)
}

func TestProcessTimeouts_UnsetAction_Expires(t *testing.T) {
	store := storage.NewMockStore()
	step := models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		StepName:        "Manager review",
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
		TimeoutDuration: f64(4),
		TimeoutUnit:     models.HoursUnit,
	}
	execution, approval := seedOverdue(store, step, "u-1")

	svc := service.NewTimeoutService(store, logger{})
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, models.NothingAction, report.Results[0].Action)

	expired := findApproval(t, store, approval.ID)
	assert.Equal(t, models.ExpiredApprovalStatus, expired.Status)
	assert.Equal(t, "Expired due to timeout", expired.ResponseNotes)

	finished := findExecution(t, store, execution.ID)
	assert.Equal(t, models.ExpiredExecutionStatus, finished.Status)
	assert.Equal(t, "Expired due to approval timeout", finished.CompletionNotes)

	timeoutLogs := logsOfType(store, models.TimeoutLog)
	assert.Len(t, timeoutLogs, 1)
	assert.Equal(t, "Step 1 expired due to timeout", timeoutLogs[0].Message)
}

func TestProcessTimeouts_ReminderAction_FinalNoticeThenExpires(t *testing.T) {
	store := storage.NewMockStore()
	step := models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		StepName:        "Manager review",
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
		TimeoutDuration: f64(4),
		TimeoutUnit:     models.HoursUnit,
		TimeoutAction:   models.ReminderAction,
	}
	execution, approval := seedOverdue(store, step, "u-1")

	svc := service.NewTimeoutService(store, logger{})
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	assert.Len(t, store.Notifications, 1)
	assert.Equal(t, models.ApprovalReminderNotification, store.Notifications[0].Type)
	assert.Equal(t, "u-1", store.Notifications[0].UserID)

	expired := findApproval(t, store, approval.ID)
	assert.Equal(t, models.ExpiredApprovalStatus, expired.Status)
	assert.Equal(t, models.ExpiredExecutionStatus, findExecution(t, store, execution.ID).Status)
}

func TestProcessTimeouts_SkipsFinalizedExecution(t *testing.T) {
	store := storage.NewMockStore()
	step := models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
		TimeoutDuration: f64(4),
		TimeoutUnit:     models.HoursUnit,
		TimeoutAction:   models.AutoApproveAction,
	}
	_, approval := seedOverdue(store, step, "u-1")
	store.Executions[0].Status = models.CompletedExecutionStatus

	svc := service.NewTimeoutService(store, logger{})
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, service.SkippedResult, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "execution status is completed")

	// The stale approval is left untouched for a later reconciliation.
	assert.Equal(t, models.PendingApprovalStatus, findApproval(t, store, approval.ID).Status)
	assert.Empty(t, store.Logs)
}

func TestProcessTimeouts_SkipsMissingStep(t *testing.T) {
	store := storage.NewMockStore()
	step := models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		ApproverType:    models.SpecificUserApprover,
		TimeoutDuration: f64(4),
		TimeoutUnit:     models.HoursUnit,
	}
	seedOverdue(store, step, "u-1")
	store.Steps = nil // step row vanished between scheduling and this tick

	svc := service.NewTimeoutService(store, logger{})
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, service.SkippedResult, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "step or execution not found")
}

func TestProcessTimeouts_SecondRunIsNoOp(t *testing.T) {
	store := storage.NewMockStore()
	step := models.WorkflowStep{
		ID:              "step-1",
		WorkflowID:      "wf-1",
		StepOrder:       1,
		ApproverType:    models.SpecificUserApprover,
		ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
		TimeoutDuration: f64(4),
		TimeoutUnit:     models.HoursUnit,
		TimeoutAction:   models.AutoApproveAction,
	}
	execution, _ := seedOverdue(store, step, "u-1")

	svc := service.NewTimeoutService(store, logger{})
	first, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := svc.ProcessTimeouts(now.Add(time.Minute))
	assert.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Total)

	assert.Equal(t, models.CompletedExecutionStatus, findExecution(t, store, execution.ID).Status)
	assert.Len(t, logsOfType(store, models.ApprovalAutoLog), 1)
}

func TestProcessTimeouts_ParallelBatch(t *testing.T) {
	store := storage.NewMockStore()
	dueAt := now.Add(-time.Hour)
	for i := 0; i < 20; i++ {
		stepID := "step-" + string(rune('a'+i))
		execID := "exec-" + string(rune('a'+i))
		store.Steps = append(store.Steps, models.WorkflowStep{
			ID:              stepID,
			WorkflowID:      "wf-" + string(rune('a'+i)),
			StepOrder:       1,
			ApproverType:    models.SpecificUserApprover,
			ApproverConfig:  models.ApproverConfig{UserID: "u-1"},
			TimeoutDuration: f64(4),
			TimeoutUnit:     models.HoursUnit,
			TimeoutAction:   models.AutoApproveAction,
		})
		store.Executions = append(store.Executions, models.WorkflowExecution{
			ID:         execID,
			OrgID:      "org-1",
			WorkflowID: "wf-" + string(rune('a'+i)),
			EntityType: "invoices",
			EntityID:   "inv-1",
			Status:     models.InProgressExecutionStatus,
		})
		store.Approvals = append(store.Approvals, models.WorkflowApproval{
			ID:          "appr-" + string(rune('a'+i)),
			ExecutionID: execID,
			StepID:      stepID,
			StepOrder:   1,
			ApproverID:  "u-1",
			Status:      models.PendingApprovalStatus,
			RequestedAt: now.Add(-5 * time.Hour),
			DueAt:       &dueAt,
		})
	}

	svc := service.NewTimeoutService(store, logger{})
	svc.SetWorkers(4)
	report, err := svc.ProcessTimeouts(now)
	assert.NoError(t, err)
	assert.Equal(t, 20, report.Total)
	assert.Equal(t, 20, report.Processed)
	for _, e := range store.Executions {
		assert.Equal(t, models.CompletedExecutionStatus, e.Status)
	}
}
