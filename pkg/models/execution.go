package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type ExecutionStatus string

const (
	InProgressExecutionStatus ExecutionStatus = "in_progress"
	CompletedExecutionStatus  ExecutionStatus = "completed"
	RejectedExecutionStatus   ExecutionStatus = "rejected"
	EscalatedExecutionStatus  ExecutionStatus = "escalated"
	ExpiredExecutionStatus    ExecutionStatus = "expired"
)

// Metadata is the execution's free-form jsonb column, used to record
// escalation provenance (escalated_from, escalated_to, escalated_at).
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		m = Metadata{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encode metadata")
	}
	return b, nil
}

func (m *Metadata) Scan(src interface{}) error {
	return scanJSON(src, m, "metadata")
}

// WorkflowExecution is one in-flight instance of a workflow definition bound
// to a business record. Created by the triggering system, owned by the engine
// afterwards, never deleted.
type WorkflowExecution struct {
	ID              string          `json:"id" db:"id"`
	OrgID           string          `json:"org_id" db:"org_id"`
	WorkflowID      string          `json:"workflow_id" db:"workflow_id"`
	EntityType      string          `json:"entity_type" db:"entity_type"`
	EntityID        string          `json:"entity_id" db:"entity_id"`
	Status          ExecutionStatus `json:"status" db:"status"`
	CurrentStep     *int            `json:"current_step,omitempty" db:"current_step"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	CompletionNotes string          `json:"completion_notes,omitempty" db:"completion_notes"`
	Metadata        Metadata        `json:"metadata" db:"metadata"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
