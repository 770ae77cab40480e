package service

import "github.com/pkg/errors"

var (
	// ErrMissingReference marks an approval whose step or execution row is gone.
	ErrMissingReference = errors.New("step or execution not found")
	// ErrInconsistentState marks an approval whose execution already left
	// in_progress, typically finalized by a concurrent human action.
	ErrInconsistentState = errors.New("execution is not in progress")
	// ErrUnresolvedApprover means no candidate approver or escalation target exists.
	ErrUnresolvedApprover = errors.New("no approver could be resolved")
	// ErrStoreUnavailable is fatal to the whole invocation; the scheduler retries.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// classify maps a per-approval error to its report outcome. Missing references
// and stale state are expected between load and write and are skipped, not
// failed; everything else is an error on that item only.
func classify(err error) ResultStatus {
	switch {
	case err == nil:
		return ProcessedResult
	case errors.Is(err, ErrMissingReference), errors.Is(err, ErrInconsistentState):
		return SkippedResult
	default:
		return ErrorResult
	}
}
