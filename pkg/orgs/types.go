package orgs

import (
	"time"

	"github.com/leasehold/leasehold/pkg/rbac"
)

// PlanTier represents subscription plan tiers
type PlanTier string

const (
	PlanStarter    PlanTier = "starter"
	PlanGrowth     PlanTier = "growth"
	PlanEnterprise PlanTier = "enterprise"
)

// SubscriptionStatus represents the billing state of an organization
type SubscriptionStatus string

const (
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// InvitationStatus is the lifecycle state of an invitation
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRevoked  InvitationStatus = "revoked"
	InvitationExpired  InvitationStatus = "expired"
)

// Organization is a tenant with its subscription limits
type Organization struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	AgentOwnerID       string             `json:"agent_owner_id"`
	PlanTier           PlanTier           `json:"plan_tier"`
	MaxProperties      int                `json:"max_properties"`
	MaxUsers           int                `json:"max_users"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Limits are the plan caps of an organization
type Limits struct {
	MaxProperties int `json:"max_properties"`
	MaxUsers      int `json:"max_users"`
}

// Usage is the current consumption counted against Limits. Pending
// invitations only count while they have not expired.
type Usage struct {
	ActiveMembers      int `json:"active_members"`
	PendingInvitations int `json:"pending_invitations"`
	Properties         int `json:"properties"`
}

// Seats returns the seats in use: active members plus pending invitations
func (u Usage) Seats() int {
	return u.ActiveMembers + u.PendingInvitations
}

// LimitsReport combines limits, usage and both gates
type LimitsReport struct {
	OrganizationID     string             `json:"organization_id"`
	PlanTier           PlanTier           `json:"plan_tier"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	Limits             Limits             `json:"limits"`
	Usage              Usage              `json:"usage"`
	CanInviteUsers     bool               `json:"can_invite_users"`
	CanAddProperty     bool               `json:"can_add_property"`
}

// Invitation is a pending offer to join an organization
type Invitation struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	Email          string           `json:"email"`
	Role           rbac.OrgRole     `json:"role"`
	TeamID         *string          `json:"team_id,omitempty"`
	Token          string           `json:"token,omitempty"`
	Status         InvitationStatus `json:"status"`
	InvitedBy      string           `json:"invited_by"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// IsExpired reports whether the invitation can no longer be accepted
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// CreateOrgRequest represents request to create an organization
type CreateOrgRequest struct {
	Name         string   `json:"name"`
	AgentOwnerID string   `json:"agent_owner_id"`
	PlanTier     PlanTier `json:"plan_tier,omitempty"`
}

// UpdateSubscriptionRequest changes plan, status or explicit limits. Zero
// limits fall back to the tier defaults.
type UpdateSubscriptionRequest struct {
	PlanTier           PlanTier           `json:"plan_tier,omitempty"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status,omitempty"`
	MaxProperties      int                `json:"max_properties,omitempty"`
	MaxUsers           int                `json:"max_users,omitempty"`
}

// AddMemberRequest adds an existing user to an organization
type AddMemberRequest struct {
	UserID string       `json:"user_id"`
	Role   rbac.OrgRole `json:"role"`
	TeamID *string      `json:"team_id,omitempty"`
}

// InviteMemberRequest represents request to invite a member
type InviteMemberRequest struct {
	Email  string       `json:"email"`
	Role   rbac.OrgRole `json:"role"`
	TeamID *string      `json:"team_id,omitempty"`
}

// DefaultLimits returns the plan defaults for a tier. Unknown tiers get the
// starter limits.
func DefaultLimits(tier PlanTier) Limits {
	switch tier {
	case PlanGrowth:
		return Limits{MaxProperties: 50, MaxUsers: 15}
	case PlanEnterprise:
		return Limits{MaxProperties: 500, MaxUsers: 100}
	default:
		return Limits{MaxProperties: 10, MaxUsers: 3}
	}
}

// IsValidPlanTier reports whether tier is a known plan
func IsValidPlanTier(tier PlanTier) bool {
	switch tier {
	case PlanStarter, PlanGrowth, PlanEnterprise:
		return true
	}
	return false
}

// IsValidSubscriptionStatus reports whether status is a known state
func IsValidSubscriptionStatus(status SubscriptionStatus) bool {
	switch status {
	case SubscriptionTrialing, SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled:
		return true
	}
	return false
}

func isValidOrgRole(role rbac.OrgRole) bool {
	switch role {
	case rbac.OrgRoleOwner, rbac.OrgRoleAdmin, rbac.OrgRoleMember:
		return true
	}
	return false
}
