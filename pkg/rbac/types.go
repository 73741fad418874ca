package rbac

import (
	"time"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceProperty      Resource = "property"
	ResourceUnit          Resource = "unit"
	ResourceLease         Resource = "lease"
	ResourceTenant        Resource = "tenant"
	ResourceMaintenance   Resource = "maintenance"
	ResourcePayment       Resource = "payment"
	ResourceDocument      Resource = "document"
	ResourceCommunication Resource = "communication"
	ResourceReport        Resource = "report"
	ResourceTeam          Resource = "team"
	ResourceMember        Resource = "member"
	ResourceInvitation    Resource = "invitation"
	ResourceOrganization  Resource = "organization"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Role is the global role carried by a user account.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleAgentOwner    Role = "agent_owner"
	RoleAgentStaff    Role = "agent_staff"
	RolePropertyOwner Role = "property_owner"
	RoleCaretaker     Role = "caretaker"
	RoleTenantUser    Role = "tenant_user"
)

// OrgRole is the role a member holds inside one organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

// MemberStatus is the lifecycle state of a membership row.
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusInactive MemberStatus = "inactive"
)

// Member is a user's membership in an organization, joined with the user's
// global role.
type Member struct {
	ID             string       `json:"id"`
	OrganizationID string       `json:"organization_id"`
	UserID         string       `json:"user_id"`
	Role           OrgRole      `json:"role"`
	UserRole       Role         `json:"user_role"`
	TeamID         *string      `json:"team_id,omitempty"`
	Status         MemberStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
}

// HasTeam reports whether the member is scoped to a team.
func (m *Member) HasTeam() bool {
	return m.TeamID != nil && *m.TeamID != ""
}

// Team represents a team of staff inside one organization
type Team struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResourceGrant lets a team perform one action on one resource instance.
type ResourceGrant struct {
	TeamID       string    `json:"team_id"`
	ResourceType Resource  `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Action       Action    `json:"action"`
	GrantedAt    time.Time `json:"granted_at"`
}

// TeamGrant is a ResourceGrant listed together with the owning team.
type TeamGrant struct {
	ResourceGrant
	TeamName       string `json:"team_name"`
	OrganizationID string `json:"organization_id"`
}

// PermissionCheck represents a permission check request
type PermissionCheck struct {
	UserID         string   `json:"user_id"`
	OrganizationID string   `json:"organization_id"`
	Resource       Resource `json:"resource"`
	Action         Action   `json:"action"`
	ResourceID     string   `json:"resource_id,omitempty"`
}

// Permission returns the resource/action pair being checked.
func (c PermissionCheck) Permission() Permission {
	return Permission{Resource: c.Resource, Action: c.Action}
}

// Reason records which rule produced a decision. It is meant for logs,
// metrics and traces and must not be returned to end users.
type Reason string

const (
	ReasonNoMembership   Reason = "no_membership"
	ReasonInactiveMember Reason = "inactive_member"
	ReasonOwnerBypass    Reason = "owner_bypass"
	ReasonAdminBypass    Reason = "admin_bypass"
	ReasonRoleDenied     Reason = "role_denied"
	ReasonRoleAllowed    Reason = "role_allowed"
	ReasonTeamProperty   Reason = "team_property"
	ReasonResourceGrant  Reason = "resource_grant"
	ReasonOutOfTeamScope Reason = "out_of_team_scope"
	ReasonNoTeam         Reason = "no_team"
	ReasonLookupFailed   Reason = "lookup_failed"
	ReasonCached         Reason = "cached"
)

// Decision is the outcome of a permission check
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    Reason    `json:"-"`
	CheckedAt time.Time `json:"checked_at"`
}
