package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func validateGrant(teamID string, resource Resource, resourceID string, action Action) error {
	if strings.TrimSpace(teamID) == "" {
		return fmt.Errorf("%w: team_id is required", ErrValidation)
	}
	if !IsValidResource(resource) {
		return fmt.Errorf("%w: unknown resource type %q", ErrValidation, resource)
	}
	if strings.TrimSpace(resourceID) == "" {
		return fmt.Errorf("%w: resource_id is required", ErrValidation)
	}
	if !IsValidAction(action) {
		return fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
	return nil
}

// Grant lets teamID perform action on one resource instance. Granting an
// existing tuple refreshes its timestamp.
func (s *Store) Grant(ctx context.Context, teamID string, resource Resource, resourceID string, action Action) (*ResourceGrant, error) {
	teamID = strings.TrimSpace(teamID)
	resourceID = strings.TrimSpace(resourceID)
	if err := validateGrant(teamID, resource, resourceID, action); err != nil {
		return nil, err
	}

	if _, err := s.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}

	grant := &ResourceGrant{
		TeamID:       teamID,
		ResourceType: resource,
		ResourceID:   resourceID,
		Action:       action,
		GrantedAt:    s.now().UTC(),
	}

	query := `
		INSERT INTO resource_permissions (team_id, resource_type, resource_id, action, granted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (team_id, resource_type, resource_id, action)
		DO UPDATE SET granted_at = EXCLUDED.granted_at
	`
	_, err := s.db.ExecContext(ctx, query,
		grant.TeamID,
		string(grant.ResourceType),
		grant.ResourceID,
		string(grant.Action),
		grant.GrantedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to grant permission: %w", mapConstraintError(err))
	}

	return grant, nil
}

// Revoke removes a grant. Revoking a grant that does not exist succeeds.
func (s *Store) Revoke(ctx context.Context, teamID string, resource Resource, resourceID string, action Action) error {
	teamID = strings.TrimSpace(teamID)
	resourceID = strings.TrimSpace(resourceID)
	if err := validateGrant(teamID, resource, resourceID, action); err != nil {
		return err
	}

	query := `
		DELETE FROM resource_permissions
		WHERE team_id = $1 AND resource_type = $2 AND resource_id = $3 AND action = $4
	`
	if _, err := s.db.ExecContext(ctx, query, teamID, string(resource), resourceID, string(action)); err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	return nil
}

// HasGrant reports whether the exact (team, resource, id, action) tuple exists
func (s *Store) HasGrant(ctx context.Context, teamID string, resource Resource, resourceID string, action Action) (bool, error) {
	query := `
		SELECT 1 FROM resource_permissions
		WHERE team_id = $1 AND resource_type = $2 AND resource_id = $3 AND action = $4
	`
	var found int
	err := s.db.QueryRowContext(ctx, query, teamID, string(resource), resourceID, string(action)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check grant: %w", err)
	}

	return true, nil
}

// ListForTeam returns every grant held by a team
func (s *Store) ListForTeam(ctx context.Context, teamID string) ([]ResourceGrant, error) {
	query := `
		SELECT team_id, resource_type, resource_id, action, granted_at
		FROM resource_permissions
		WHERE team_id = $1
		ORDER BY resource_type, resource_id, action
	`
	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team grants: %w", err)
	}
	defer rows.Close()

	grants := []ResourceGrant{}
	for rows.Next() {
		var grant ResourceGrant
		if err := rows.Scan(
			&grant.TeamID,
			&grant.ResourceType,
			&grant.ResourceID,
			&grant.Action,
			&grant.GrantedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}

	return grants, rows.Err()
}

// ListForResource returns every team grant on one resource instance
func (s *Store) ListForResource(ctx context.Context, resource Resource, resourceID string) ([]TeamGrant, error) {
	query := `
		SELECT rp.team_id, rp.resource_type, rp.resource_id, rp.action, rp.granted_at,
		       t.name, t.organization_id
		FROM resource_permissions rp
		JOIN teams t ON t.id = rp.team_id
		WHERE rp.resource_type = $1 AND rp.resource_id = $2
		ORDER BY t.name, rp.action
	`
	rows, err := s.db.QueryContext(ctx, query, string(resource), resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource grants: %w", err)
	}
	defer rows.Close()

	grants := []TeamGrant{}
	for rows.Next() {
		var grant TeamGrant
		if err := rows.Scan(
			&grant.TeamID,
			&grant.ResourceType,
			&grant.ResourceID,
			&grant.Action,
			&grant.GrantedAt,
			&grant.TeamName,
			&grant.OrganizationID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}

	return grants, rows.Err()
}
