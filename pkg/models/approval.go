package models

import "time"

type ApprovalStatus string

const (
	PendingApprovalStatus   ApprovalStatus = "pending"
	ApprovedApprovalStatus  ApprovalStatus = "approved"
	RejectedApprovalStatus  ApprovalStatus = "rejected"
	EscalatedApprovalStatus ApprovalStatus = "escalated"
	ExpiredApprovalStatus   ApprovalStatus = "expired"
)

// WorkflowApproval is one pending-or-resolved decision for one step of one
// execution. An execution can accumulate several approvals per step over time
// (original plus escalated replacements) but holds at most one pending one.
type WorkflowApproval struct {
	ID             string         `json:"id" db:"id"`
	ExecutionID    string         `json:"execution_id" db:"execution_id"`
	StepID         string         `json:"step_id" db:"step_id"`
	StepOrder      int            `json:"step_order" db:"step_order"`
	ApproverID     string         `json:"approver_id" db:"approver_id"`
	Status         ApprovalStatus `json:"status" db:"status"`
	RequestedAt    time.Time      `json:"requested_at" db:"requested_at"`
	DueAt          *time.Time     `json:"due_at,omitempty" db:"due_at"` // nil means no deadline
	ReminderSentAt *time.Time     `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	RespondedAt    *time.Time     `json:"responded_at,omitempty" db:"responded_at"`
	ResponseNotes  string         `json:"response_notes,omitempty" db:"response_notes"`
	EscalatedAt    *time.Time     `json:"escalated_at,omitempty" db:"escalated_at"`
}
