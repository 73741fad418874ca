package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leasehold/leasehold/pkg/audit"
	"github.com/leasehold/leasehold/pkg/rbac"
)

const memberColumns = `m.id, m.organization_id, m.user_id, m.role, u.role, m.team_id, m.status, m.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*rbac.Member, error) {
	member := &rbac.Member{}
	var teamID sql.NullString
	if err := row.Scan(
		&member.ID, &member.OrganizationID, &member.UserID, &member.Role,
		&member.UserRole, &teamID, &member.Status, &member.CreatedAt,
	); err != nil {
		return nil, err
	}
	if teamID.Valid && teamID.String != "" {
		id := teamID.String
		member.TeamID = &id
	}
	return member, nil
}

// ListMembers retrieves all members of an organization
func (s *Service) ListMembers(ctx context.Context, orgID string) ([]*rbac.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []*rbac.Member{}
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// GetMember retrieves a specific member
func (s *Service) GetMember(ctx context.Context, orgID, userID string) (*rbac.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.user_id = $2
	`
	member, err := scanMember(s.db.QueryRowContext(ctx, query, orgID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: member %s in organization %s", ErrNotFound, userID, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// AddMember adds an existing user to an organization as an active member.
// It takes a seat and is refused when the user limit is reached.
func (s *Service) AddMember(ctx context.Context, orgID string, req *AddMemberRequest) (*rbac.Member, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	role := req.Role
	if role == "" {
		role = rbac.OrgRoleMember
	}
	if !isValidOrgRole(role) {
		return nil, fmt.Errorf("%w: unknown member role %q", ErrValidation, role)
	}
	teamID := optionalID(req.TeamID)

	if err := s.CheckUserLimit(ctx, orgID); err != nil {
		return nil, err
	}

	if err := userExists(ctx, s.db, userID); err != nil {
		return nil, err
	}
	if teamID != nil {
		if err := teamInOrganization(ctx, s.db, *teamID, orgID); err != nil {
			return nil, err
		}
	}

	query := `
		INSERT INTO members (id, organization_id, user_id, role, team_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), orgID, userID, string(role), teamID,
		string(rbac.MemberStatusActive), s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: user %s is already a member", ErrValidation, userID)
	}

	s.invalidate(ctx, orgID)
	s.recordAudit(ctx, &audit.Event{
		OrganizationID: orgID,
		Type:           audit.EventTypeMemberAdded,
		ResourceType:   string(rbac.ResourceMember),
		ResourceID:     userID,
		Metadata:       map[string]interface{}{"role": string(role)},
	})

	return s.GetMember(ctx, orgID, userID)
}

// UpdateMemberStatus activates, suspends or parks a membership. Only active
// members pass permission checks.
func (s *Service) UpdateMemberStatus(ctx context.Context, orgID, userID string, status rbac.MemberStatus) error {
	switch status {
	case rbac.MemberStatusActive, rbac.MemberStatusPending, rbac.MemberStatusInactive:
	default:
		return fmt.Errorf("%w: unknown member status %q", ErrValidation, status)
	}

	if status == rbac.MemberStatusActive {
		member, err := s.GetMember(ctx, orgID, userID)
		if err != nil {
			return err
		}
		if member.Status != rbac.MemberStatusActive {
			if err := s.CheckUserLimit(ctx, orgID); err != nil {
				return err
			}
		}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE members SET status = $1 WHERE organization_id = $2 AND user_id = $3`,
		string(status), orgID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: member %s in organization %s", ErrNotFound, userID, orgID)
	}

	s.invalidate(ctx, orgID)
	s.recordAudit(ctx, &audit.Event{
		OrganizationID: orgID,
		Type:           audit.EventTypeMemberStatusChanged,
		ResourceType:   string(rbac.ResourceMember),
		ResourceID:     userID,
		Metadata:       map[string]interface{}{"status": string(status)},
	})

	return nil
}

// UpdateMemberTeam moves a member into a team, or out of any team when
// teamID is nil. A member without a team is not narrowed by property
// assignments.
func (s *Service) UpdateMemberTeam(ctx context.Context, orgID, userID string, teamID *string) error {
	teamID = optionalID(teamID)
	if teamID != nil {
		if err := teamInOrganization(ctx, s.db, *teamID, orgID); err != nil {
			return err
		}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE members SET team_id = $1 WHERE organization_id = $2 AND user_id = $3`,
		teamID, orgID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member team: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: member %s in organization %s", ErrNotFound, userID, orgID)
	}

	s.invalidate(ctx, orgID)
	return nil
}
