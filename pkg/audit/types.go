package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeTenantCreate EventType = "tenant.create"
	EventTypeTenantDelete EventType = "tenant.delete"

	EventTypeMemberInvite     EventType = "member.invite"
	EventTypeMemberAdd        EventType = "member.add"
	EventTypeMemberAccept     EventType = "member.accept"
	EventTypeMemberRoleChange EventType = "member.role_change"
	EventTypeMemberRemove     EventType = "member.remove"

	EventTypePermissionGrant  EventType = "permission.grant"
	EventTypePermissionRevoke EventType = "permission.revoke"

	EventTypeAccessDenied EventType = "authz.access_denied"

	// EventTypeIdentityCompensate records deletion of an identity created
	// by an invitation whose membership write failed.
	EventTypeIdentityCompensate EventType = "identity.compensate"

	EventTypeBulkProvision EventType = "member.bulk_provision"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// AuditEvent is a single audit log entry. Ids are opaque strings as
// issued by the identity provider and the tenant store.
type AuditEvent struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID      string `json:"actor_id,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
	TargetUserID string `json:"target_user_id,omitempty"`
	RequestID    string `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter narrows Search results. Zero values match everything.
type SearchFilter struct {
	TenantID     string
	ActorID      string
	TargetUserID string
	EventTypes   []EventType
	Status       *EventStatus
	StartTime    *time.Time
	EndTime      *time.Time

	Limit  int
	Offset int
}
