package models

import "time"

type NotificationType string

const (
	ApprovalReminderNotification   NotificationType = "approval_reminder"
	ApprovalEscalationNotification NotificationType = "approval_escalation"
	WorkflowNotification           NotificationType = "workflow"
)

// Notification is a row handed to the delivery system. The engine only
// inserts these; delivery is out of scope.
type Notification struct {
	ID         string           `json:"id" db:"id"`
	OrgID      string           `json:"org_id" db:"org_id"`
	UserID     string           `json:"user_id" db:"user_id"`
	Title      string           `json:"title" db:"title"`
	Message    string           `json:"message" db:"message"`
	Type       NotificationType `json:"notification_type" db:"notification_type"`
	EntityType string           `json:"entity_type" db:"entity_type"`
	EntityID   string           `json:"entity_id" db:"entity_id"`
	ActionURL  string           `json:"action_url,omitempty" db:"action_url"`
	Metadata   Metadata         `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}

// Activity is an audit/activity record appended against a business entity by
// a create_activity completion action.
type Activity struct {
	ID           string    `json:"id" db:"id"`
	OrgID        string    `json:"org_id" db:"org_id"`
	EntityType   string    `json:"entity_type" db:"entity_type"`
	EntityID     string    `json:"entity_id" db:"entity_id"`
	ActivityType string    `json:"activity_type" db:"activity_type"`
	Subject      string    `json:"subject" db:"subject"`
	Description  string    `json:"description" db:"description"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// EntityOwner holds the ownership columns of a bound business record, used by
// the record_owner approver type.
type EntityOwner struct {
	OwnerID   string `db:"owner_id"`
	CreatedBy string `db:"created_by"`
}
