package service

import (
	"time"

	"github.com/ignatij/approvalflow/pkg/models"
)

type ResultStatus string

const (
	ProcessedResult ResultStatus = "processed"
	SkippedResult   ResultStatus = "skipped"
	ErrorResult     ResultStatus = "error"
)

// Result is the outcome of one processed approval or reminder.
type Result struct {
	ApprovalID  string               `json:"approvalId"`
	ExecutionID string               `json:"executionId"`
	Action      models.TimeoutAction `json:"action"`
	Status      ResultStatus         `json:"status"`
	Error       string               `json:"error,omitempty"`
}

// Report is what one invocation of the engine returns to its scheduler.
type Report struct {
	Success   bool      `json:"success"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Results   []Result  `json:"results"`
	Timestamp time.Time `json:"timestamp"`
}
