package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateTeam creates a team inside an organization. Team names are unique
// per organization.
func (s *Store) CreateTeam(ctx context.Context, organizationID, name, description string) (*Team, error) {
	organizationID = strings.TrimSpace(organizationID)
	name = strings.TrimSpace(name)
	if organizationID == "" || name == "" {
		return nil, fmt.Errorf("%w: organization_id and name are required", ErrValidation)
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM teams WHERE organization_id = $1 AND name = $2`,
		organizationID, name,
	).Scan(&exists)
	if err == nil {
		return nil, fmt.Errorf("%w: team %q already exists", ErrValidation, name)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check team name: %w", err)
	}

	team := &Team{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		Name:           name,
		Description:    strings.TrimSpace(description),
		CreatedAt:      s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO teams (id, organization_id, name, description, created_at) VALUES ($1, $2, $3, $4, $5)`,
		team.ID, team.OrganizationID, team.Name, team.Description, team.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", mapConstraintError(err))
	}

	return team, nil
}

// ListTeams returns the teams of an organization ordered by name
func (s *Store) ListTeams(ctx context.Context, organizationID string) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, name, description, created_at
		FROM teams
		WHERE organization_id = $1
		ORDER BY name
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	teams := []Team{}
	for rows.Next() {
		var team Team
		var description sql.NullString
		if err := rows.Scan(&team.ID, &team.OrganizationID, &team.Name, &description, &team.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		team.Description = description.String
		teams = append(teams, team)
	}

	return teams, rows.Err()
}

// GetOrganizationTeam loads a team and checks it belongs to organizationID.
// A team of another organization is reported as not found.
func (s *Store) GetOrganizationTeam(ctx context.Context, teamID, organizationID string) (*Team, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.OrganizationID != organizationID {
		return nil, fmt.Errorf("%w: team %s", ErrNotFound, teamID)
	}
	return team, nil
}

// ResourceInOrganization reports whether a resource instance on the
// property chain belongs to organizationID. Tenants belong to the
// organization that registered them. Other resource types have no
// ownership record and always report true.
func (s *Store) ResourceInOrganization(ctx context.Context, resource Resource, resourceID, organizationID string) (bool, error) {
	if resource == ResourceTenant {
		var orgID string
		err := s.db.QueryRowContext(ctx, `SELECT organization_id FROM tenants WHERE id = $1`, resourceID).Scan(&orgID)
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: tenant %s", ErrNotFound, resourceID)
		}
		if err != nil {
			return false, fmt.Errorf("failed to get tenant: %w", err)
		}
		return orgID == organizationID, nil
	}
	if !IsPropertyScoped(resource) {
		return true, nil
	}

	properties, err := s.PropertiesFor(ctx, resource, resourceID)
	if err != nil {
		return false, err
	}
	if len(properties) == 0 {
		return false, nil
	}

	args := make([]any, 0, len(properties)+1)
	args = append(args, organizationID)
	for _, id := range properties {
		args = append(args, id)
	}
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM properties WHERE organization_id = $1 AND id IN (%s)`,
		placeholders(2, len(properties)),
	)
	var owned int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&owned); err != nil {
		return false, fmt.Errorf("failed to verify resource organization: %w", err)
	}
	return owned == len(properties), nil
}
