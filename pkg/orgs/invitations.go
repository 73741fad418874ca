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

const invitationColumns = `id, organization_id, email, role, team_id, token, status, invited_by, created_at, expires_at`

func scanInvitation(row rowScanner) (*Invitation, error) {
	invitation := &Invitation{}
	var teamID sql.NullString
	if err := row.Scan(
		&invitation.ID, &invitation.OrganizationID, &invitation.Email, &invitation.Role,
		&teamID, &invitation.Token, &invitation.Status, &invitation.InvitedBy,
		&invitation.CreatedAt, &invitation.ExpiresAt,
	); err != nil {
		return nil, err
	}
	if teamID.Valid && teamID.String != "" {
		id := teamID.String
		invitation.TeamID = &id
	}
	return invitation, nil
}

// CreateInvitation invites an email address into the organization. A pending
// invitation holds a seat until it is accepted, revoked or expires, so the
// user limit is checked first.
func (s *Service) CreateInvitation(ctx context.Context, orgID, invitedBy string, req *InviteMemberRequest) (*Invitation, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	role := req.Role
	if role == "" {
		role = rbac.OrgRoleMember
	}
	if role == rbac.OrgRoleOwner || !isValidOrgRole(role) {
		return nil, fmt.Errorf("%w: cannot invite with role %q", ErrValidation, role)
	}
	teamID := optionalID(req.TeamID)

	if err := s.CheckUserLimit(ctx, orgID); err != nil {
		return nil, err
	}

	if teamID != nil {
		if err := teamInOrganization(ctx, s.db, *teamID, orgID); err != nil {
			return nil, err
		}
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now().UTC()
	invitation := &Invitation{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		TeamID:         teamID,
		Token:          token,
		Status:         InvitationPending,
		InvitedBy:      invitedBy,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.invitationTTL),
	}

	query := `
		INSERT INTO invitations (` + invitationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		invitation.ID, invitation.OrganizationID, invitation.Email, string(invitation.Role),
		invitation.TeamID, invitation.Token, string(invitation.Status), invitation.InvitedBy,
		invitation.CreatedAt, invitation.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	s.recordAudit(ctx, &audit.Event{
		OrganizationID: orgID,
		Type:           audit.EventTypeInvitationCreated,
		ResourceType:   string(rbac.ResourceInvitation),
		ResourceID:     invitation.ID,
		Metadata:       map[string]interface{}{"email": email, "role": string(role)},
	})

	return invitation, nil
}

// ListPendingInvitations lists the invitations that still hold a seat
func (s *Service) ListPendingInvitations(ctx context.Context, orgID string) ([]*Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE organization_id = $1 AND status = $2 AND expires_at > $3
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, string(InvitationPending), s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []*Invitation{}
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitation.Token = ""
		invitations = append(invitations, invitation)
	}

	return invitations, rows.Err()
}

// AcceptInvitation turns a pending invitation into an active membership.
// The seat was already counted while the invitation was pending, so the
// user limit is not checked again.
func (s *Service) AcceptInvitation(ctx context.Context, token, userID string) (*rbac.Member, error) {
	token = strings.TrimSpace(token)
	userID = strings.TrimSpace(userID)
	if token == "" || userID == "" {
		return nil, fmt.Errorf("%w: token and user_id are required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE token = $1`
	invitation, err := scanInvitation(tx.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: invitation", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if invitation.Status != InvitationPending {
		return nil, fmt.Errorf("%w: invitation is %s", ErrValidation, invitation.Status)
	}
	now := s.now().UTC()
	if invitation.IsExpired(now) {
		return nil, fmt.Errorf("%w: invitation expired", ErrValidation)
	}

	if err := userExists(ctx, tx, userID); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO members (id, organization_id, user_id, role, team_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`, uuid.NewString(), invitation.OrganizationID, userID, string(invitation.Role),
		invitation.TeamID, string(rbac.MemberStatusActive), now)
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

	if _, err := tx.ExecContext(ctx,
		`UPDATE invitations SET status = $1 WHERE id = $2`,
		string(InvitationAccepted), invitation.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation: %w", err)
	}

	s.invalidate(ctx, invitation.OrganizationID)
	s.recordAudit(ctx, &audit.Event{
		OrganizationID: invitation.OrganizationID,
		ActorID:        userID,
		Type:           audit.EventTypeInvitationAccepted,
		ResourceType:   string(rbac.ResourceInvitation),
		ResourceID:     invitation.ID,
	})

	return s.GetMember(ctx, invitation.OrganizationID, userID)
}

// RevokeInvitation revokes a pending invitation and frees its seat
func (s *Service) RevokeInvitation(ctx context.Context, orgID, invitationID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET status = $1 WHERE id = $2 AND organization_id = $3 AND status = $4`,
		string(InvitationRevoked), invitationID, orgID, string(InvitationPending),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: pending invitation %s", ErrNotFound, invitationID)
	}

	s.recordAudit(ctx, &audit.Event{
		OrganizationID: orgID,
		Type:           audit.EventTypeInvitationRevoked,
		ResourceType:   string(rbac.ResourceInvitation),
		ResourceID:     invitationID,
	})

	return nil
}

// CleanupExpiredInvitations marks pending invitations past their expiry as
// expired and returns how many were changed. Expired invitations stop
// counting against the user limit even before this runs.
func (s *Service) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET status = $1 WHERE status = $2 AND expires_at <= $3`,
		string(InvitationExpired), string(InvitationPending), s.now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
