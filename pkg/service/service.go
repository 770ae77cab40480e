package service

import (
	"time"

	"github.com/ignatij/approvalflow/pkg/models"
	"github.com/ignatij/approvalflow/pkg/storage"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for TimeoutService
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// TimeoutService scans in-flight approval workflows for overdue approvals,
// applies the configured timeout action for each, and sends pre-deadline
// reminders. It is invoked once per scheduler tick and holds no state between
// invocations; every decision is re-derived from the store, so a tick can be
// re-run or overlap a previous one safely.
type TimeoutService struct {
	store   storage.Store
	logger  Logger
	workers int
}

func NewTimeoutService(store storage.Store, logger Logger) *TimeoutService {
	return &TimeoutService{
		store:  store,
		logger: logger,
	}
}

// SetWorkers bounds the pool that processes overdue approvals in parallel.
// Zero or negative keeps the default (number of CPUs).
func (s *TimeoutService) SetWorkers(workers int) {
	s.workers = workers
}

// ProcessTimeouts runs one batch tick: resolve every overdue pending approval,
// then scan for due reminders. Per-approval failures are recorded in the
// report; only store failures during the load phase abort the invocation.
func (s *TimeoutService) ProcessTimeouts(now time.Time) (Report, error) {
	overdue, err := s.store.GetOverdueApprovals(now)
	if err != nil {
		return Report{}, errors.Wrap(ErrStoreUnavailable, err.Error())
	}

	var results []Result
	if len(overdue) > 0 {
		stepIDs := uniqueStrings(overdue, func(a models.WorkflowApproval) string { return a.StepID })
		executionIDs := uniqueStrings(overdue, func(a models.WorkflowApproval) string { return a.ExecutionID })

		steps, err := s.store.GetStepsByIDs(stepIDs)
		if err != nil {
			return Report{}, errors.Wrap(ErrStoreUnavailable, err.Error())
		}
		executions, err := s.store.GetExecutionsByIDs(executionIDs)
		if err != nil {
			return Report{}, errors.Wrap(ErrStoreUnavailable, err.Error())
		}

		stepsByID := make(map[string]models.WorkflowStep, len(steps))
		for _, step := range steps {
			stepsByID[step.ID] = step
		}
		executionsByID := make(map[string]models.WorkflowExecution, len(executions))
		for _, execution := range executions {
			executionsByID[execution.ID] = execution
		}

		// Overdue approvals are independent units of work: an execution has at
		// most one pending approval, so no two jobs touch the same rows.
		pool := NewWorkerPool(s.workers)
		results = pool.Process(overdue, func(approval models.WorkflowApproval) Result {
			return s.processOverdue(approval, stepsByID, executionsByID, now)
		})
	}

	reminderResults, err := s.processReminders(now)
	if err != nil {
		return Report{}, errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	results = append(results, reminderResults...)

	processed := 0
	for _, r := range results {
		if r.Status == ProcessedResult {
			processed++
		}
	}
	s.logger.Infof("Processed %d of %d approval timeout/reminder items", processed, len(results))

	return Report{
		Success:   true,
		Processed: processed,
		Total:     len(results),
		Results:   results,
		Timestamp: now,
	}, nil
}

func uniqueStrings(approvals []models.WorkflowApproval, key func(models.WorkflowApproval) string) []string {
	seen := make(map[string]bool, len(approvals))
	var out []string
	for _, a := range approvals {
		k := key(a)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
