package audit

import (
	"time"
)

// EventType names the write that was audited
type EventType string

const (
	EventTypeOrganizationCreated    EventType = "organization.created"
	EventTypeSubscriptionUpdated    EventType = "organization.subscription_updated"
	EventTypeMemberAdded            EventType = "member.added"
	EventTypeMemberStatusChanged    EventType = "member.status_changed"
	EventTypeInvitationCreated      EventType = "invitation.created"
	EventTypeInvitationAccepted     EventType = "invitation.accepted"
	EventTypeInvitationRevoked      EventType = "invitation.revoked"
	EventTypeTeamPropertiesAssigned EventType = "team.properties_assigned"
	EventTypePermissionGranted      EventType = "permission.granted"
	EventTypePermissionRevoked      EventType = "permission.revoked"
)

// Event is a single audit log entry
type Event struct {
	ID             string                 `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	ActorID        string                 `json:"actor_id,omitempty"`
	Type           EventType              `json:"type"`
	ResourceType   string                 `json:"resource_type,omitempty"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
