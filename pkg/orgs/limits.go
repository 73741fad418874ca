package orgs

import (
	"context"
	"fmt"

	"github.com/leasehold/leasehold/pkg/rbac"
)

// GetUsage counts what an organization currently consumes. Pending
// invitations count only while unexpired.
func (s *Service) GetUsage(ctx context.Context, orgID string) (*Usage, error) {
	usage := &Usage{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE organization_id = $1 AND status = $2`,
		orgID, string(rbac.MemberStatusActive),
	).Scan(&usage.ActiveMembers)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invitations WHERE organization_id = $1 AND status = $2 AND expires_at > $3`,
		orgID, string(InvitationPending), s.now().UTC(),
	).Scan(&usage.PendingInvitations)
	if err != nil {
		return nil, fmt.Errorf("failed to count invitations: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM properties WHERE organization_id = $1`,
		orgID,
	).Scan(&usage.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to count properties: %w", err)
	}

	return usage, nil
}

// CanInviteUsers reports whether one more seat fits the plan:
// active members plus pending invitations must stay below maxUsers
func (s *Service) CanInviteUsers(ctx context.Context, orgID string) (bool, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return false, err
	}
	usage, err := s.GetUsage(ctx, orgID)
	if err != nil {
		return false, err
	}
	return usage.Seats() < org.MaxUsers, nil
}

// CanAddProperty reports whether one more property fits the plan
func (s *Service) CanAddProperty(ctx context.Context, orgID string) (bool, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return false, err
	}
	usage, err := s.GetUsage(ctx, orgID)
	if err != nil {
		return false, err
	}
	return usage.Properties < org.MaxProperties, nil
}

// CheckUserLimit returns a *LimitExceededError when no seat is left
func (s *Service) CheckUserLimit(ctx context.Context, orgID string) error {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	usage, err := s.GetUsage(ctx, orgID)
	if err != nil {
		return err
	}
	if usage.Seats() >= org.MaxUsers {
		s.metrics.RecordLimitRejection(string(LimitUsers))
		return &LimitExceededError{Limit: LimitUsers, Current: usage.Seats(), Max: org.MaxUsers}
	}
	return nil
}

// CheckPropertyLimit returns a *LimitExceededError when the property cap is
// reached. Property creation flows call it before inserting.
func (s *Service) CheckPropertyLimit(ctx context.Context, orgID string) error {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	usage, err := s.GetUsage(ctx, orgID)
	if err != nil {
		return err
	}
	if usage.Properties >= org.MaxProperties {
		s.metrics.RecordLimitRejection(string(LimitProperties))
		return &LimitExceededError{Limit: LimitProperties, Current: usage.Properties, Max: org.MaxProperties}
	}
	return nil
}

// GetLimits reports limits, usage and both gates in one read
func (s *Service) GetLimits(ctx context.Context, orgID string) (*LimitsReport, error) {
	org, err := s.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	usage, err := s.GetUsage(ctx, orgID)
	if err != nil {
		return nil, err
	}

	return &LimitsReport{
		OrganizationID:     org.ID,
		PlanTier:           org.PlanTier,
		SubscriptionStatus: org.SubscriptionStatus,
		Limits:             Limits{MaxProperties: org.MaxProperties, MaxUsers: org.MaxUsers},
		Usage:              *usage,
		CanInviteUsers:     usage.Seats() < org.MaxUsers,
		CanAddProperty:     usage.Properties < org.MaxProperties,
	}, nil
}
