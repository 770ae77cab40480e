package models

import "time"

type LogType string

const (
	ApprovalAutoLog LogType = "approval_auto"
	EscalationLog   LogType = "escalation"
	TimeoutLog      LogType = "timeout"
)

// ExecutionLogEntry is the append-only audit trail; one entry per state
// transition the engine performs. Never mutated or deleted.
type ExecutionLogEntry struct {
	ID          string    `json:"id" db:"id"`
	ExecutionID string    `json:"execution_id" db:"execution_id"`
	LogType     LogType   `json:"log_type" db:"log_type"`
	StepOrder   int       `json:"step_order" db:"step_order"`
	Message     string    `json:"message" db:"message"`
	Metadata    Metadata  `json:"metadata" db:"metadata"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
