package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type ApproverType string

const (
	SpecificUserApprover ApproverType = "specific_user"
	RecordOwnerApprover  ApproverType = "record_owner"
	RoleBasedApprover    ApproverType = "role_based"
	DefaultApprover      ApproverType = "default"
)

type TimeoutAction string

const (
	EscalateAction    TimeoutAction = "escalate"
	AutoApproveAction TimeoutAction = "auto_approve"
	AutoRejectAction  TimeoutAction = "auto_reject"
	ReminderAction    TimeoutAction = "reminder"
	NothingAction     TimeoutAction = "nothing"
)

type TimeoutUnit string

const (
	MinutesUnit       TimeoutUnit = "minutes"
	HoursUnit         TimeoutUnit = "hours"
	BusinessHoursUnit TimeoutUnit = "business_hours"
	DaysUnit          TimeoutUnit = "days"
	BusinessDaysUnit  TimeoutUnit = "business_days"
)

// WorkflowDefinition is an authored approval workflow. The engine never writes
// definitions; they are owned by the authoring UI.
type WorkflowDefinition struct {
	ID         string    `json:"id" db:"id"`
	OrgID      string    `json:"org_id" db:"org_id"`
	Name       string    `json:"name" db:"name"`
	EntityType string    `json:"entity_type" db:"entity_type"` // business entity the workflow binds to (e.g. "invoices")
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// WorkflowStep is one ordered stage of a workflow with its approver and
// timeout policy. Steps of a definition are totally ordered by StepOrder.
type WorkflowStep struct {
	ID              string         `json:"id" db:"id"`
	WorkflowID      string         `json:"workflow_id" db:"workflow_id"`
	StepOrder       int            `json:"step_order" db:"step_order"`
	StepName        string         `json:"step_name" db:"step_name"`
	ApproverType    ApproverType   `json:"approver_type" db:"approver_type"`
	ApproverConfig  ApproverConfig `json:"approver_config" db:"approver_config"`
	TimeoutDuration *float64       `json:"timeout_duration,omitempty" db:"timeout_duration"` // nil means no deadline
	TimeoutUnit     TimeoutUnit    `json:"timeout_unit" db:"timeout_unit"`
	TimeoutAction   TimeoutAction  `json:"timeout_action,omitempty" db:"timeout_action"` // empty means unset
	ReminderEnabled bool           `json:"reminder_enabled" db:"reminder_enabled"`
	ReminderPercent *int           `json:"reminder_percent,omitempty" db:"reminder_percent"` // 0-100, fraction of the window before the reminder fires
}

// TimeoutWindow converts the step's timeout configuration into a duration.
// Business units are stretched onto the calendar: 8 business hours span a
// 24h day, 5 business days span a 7-day week. An unknown unit is read as hours.
func (s WorkflowStep) TimeoutWindow() (time.Duration, bool) {
	if s.TimeoutDuration == nil || *s.TimeoutDuration <= 0 {
		return 0, false
	}
	hours := *s.TimeoutDuration
	switch s.TimeoutUnit {
	case MinutesUnit:
		hours = hours / 60
	case HoursUnit:
	case BusinessHoursUnit:
		hours = hours * (24.0 / 8.0)
	case DaysUnit:
		hours = hours * 24
	case BusinessDaysUnit:
		hours = hours * 24 * (7.0 / 5.0)
	}
	return time.Duration(hours * float64(time.Hour)), true
}

// EscalationTarget names who an overdue approval escalates to, either a user
// directly or any holder of a role. Stored configs exist in two shapes: a bare
// user-id string and a structured {"user_id": ...} / {"role_name": ...} object.
type EscalationTarget struct {
	UserID   string `json:"user_id,omitempty"`
	RoleName string `json:"role_name,omitempty"`
}

func (t *EscalationTarget) UnmarshalJSON(data []byte) error {
	var userID string
	if err := json.Unmarshal(data, &userID); err == nil {
		t.UserID = userID
		t.RoleName = ""
		return nil
	}
	type target EscalationTarget
	var structured target
	if err := json.Unmarshal(data, &structured); err != nil {
		return errors.Wrap(err, "decode escalation target")
	}
	*t = EscalationTarget(structured)
	return nil
}

func (t *EscalationTarget) IsZero() bool {
	return t == nil || (t.UserID == "" && t.RoleName == "")
}

// ApproverConfig is the decoded approver_config column. It is a closed set of
// fields rather than a free-form map so the resolvers can match exhaustively.
type ApproverConfig struct {
	UserID       string            `json:"user_id,omitempty"`   // specific_user
	RoleName     string            `json:"role_name,omitempty"` // role_based
	EscalationTo *EscalationTarget `json:"escalation_to,omitempty"`
}

func (c ApproverConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode approver config")
	}
	return b, nil
}

func (c *ApproverConfig) Scan(src interface{}) error {
	return scanJSON(src, c, "approver config")
}

type ActionTrigger string

const (
	OnCompletionTrigger ActionTrigger = "on_completion"
)

type ActionType string

const (
	UpdateFieldAction      ActionType = "update_field"
	CreateActivityAction   ActionType = "create_activity"
	SendNotificationAction ActionType = "send_notification"
)

// ActionConfig is the decoded action_config column, covering the parameters of
// every supported action type.
type ActionConfig struct {
	Field        string      `json:"field,omitempty"` // update_field
	FieldValue   interface{} `json:"value,omitempty"`
	ActivityType string      `json:"activity_type,omitempty"` // create_activity
	Subject      string      `json:"subject,omitempty"`
	Description  string      `json:"description,omitempty"`
	Recipient    string      `json:"recipient,omitempty"` // send_notification
	Template     string      `json:"template,omitempty"`
}

func (c ActionConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode action config")
	}
	return b, nil
}

func (c *ActionConfig) Scan(src interface{}) error {
	return scanJSON(src, c, "action config")
}

// WorkflowAction is a side effect attached to a workflow definition, keyed by
// trigger and ordered by ActionOrder.
type WorkflowAction struct {
	ID            string        `json:"id" db:"id"`
	WorkflowID    string        `json:"workflow_id" db:"workflow_id"`
	ActionTrigger ActionTrigger `json:"action_trigger" db:"action_trigger"`
	ActionOrder   int           `json:"action_order" db:"action_order"`
	ActionType    ActionType    `json:"action_type" db:"action_type"`
	ActionConfig  ActionConfig  `json:"action_config" db:"action_config"`
}

func scanJSON(src interface{}, dest interface{}, what string) error {
	if src == nil {
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("decode %s: unsupported type %T", what, src)
	}
	if len(b) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(b, dest), "decode %s", what)
}
