package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AssignProperties replaces the full set of properties assigned to a team.
// Every property must belong to organizationID; otherwise nothing is
// written and ErrValidation is returned. An empty list clears the set.
func (s *Store) AssignProperties(ctx context.Context, teamID, organizationID string, propertyIDs []string) ([]string, error) {
	teamID = strings.TrimSpace(teamID)
	organizationID = strings.TrimSpace(organizationID)
	if teamID == "" || organizationID == "" {
		return nil, fmt.Errorf("%w: team_id and organization_id are required", ErrValidation)
	}
	ids := dedupeIDs(propertyIDs)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var teamOrg string
	err = tx.QueryRowContext(ctx, `SELECT organization_id FROM teams WHERE id = $1`, teamID).Scan(&teamOrg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: team %s", ErrNotFound, teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	if teamOrg != organizationID {
		return nil, fmt.Errorf("%w: team %s does not belong to organization %s", ErrValidation, teamID, organizationID)
	}

	if len(ids) > 0 {
		args := make([]any, 0, len(ids)+1)
		args = append(args, organizationID)
		for _, id := range ids {
			args = append(args, id)
		}
		query := fmt.Sprintf(
			`SELECT COUNT(*) FROM properties WHERE organization_id = $1 AND id IN (%s)`,
			placeholders(2, len(ids)),
		)
		var owned int
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&owned); err != nil {
			return nil, fmt.Errorf("failed to verify properties: %w", err)
		}
		if owned != len(ids) {
			return nil, fmt.Errorf("%w: %d of %d properties do not belong to organization %s",
				ErrValidation, len(ids)-owned, len(ids), organizationID)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM team_properties WHERE team_id = $1`, teamID); err != nil {
		return nil, fmt.Errorf("failed to clear team properties: %w", err)
	}

	now := s.now().UTC()
	for _, id := range ids {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO team_properties (team_id, property_id, created_at) VALUES ($1, $2, $3)`,
			teamID, id, now,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to assign property %s: %w", id, mapConstraintError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// IsPropertyInTeam reports whether the property is assigned to the team
func (s *Store) IsPropertyInTeam(ctx context.Context, teamID, propertyID string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM team_properties WHERE team_id = $1 AND property_id = $2`,
		teamID, propertyID,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check team property: %w", err)
	}

	return true, nil
}

// GetTeamPropertyIDs returns the sorted ids of properties assigned to a team
func (s *Store) GetTeamPropertyIDs(ctx context.Context, teamID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT property_id FROM team_properties WHERE team_id = $1 ORDER BY property_id`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list team properties: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan property id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetPropertyTeams returns the teams of organizationID that hold the property.
// Teams of other organizations are never returned.
func (s *Store) GetPropertyTeams(ctx context.Context, propertyID, organizationID string) ([]Team, error) {
	query := `
		SELECT t.id, t.organization_id, t.name, t.description, t.created_at
		FROM team_properties tp
		JOIN teams t ON t.id = tp.team_id
		WHERE tp.property_id = $1 AND t.organization_id = $2
		ORDER BY t.name
	`
	rows, err := s.db.QueryContext(ctx, query, propertyID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list property teams: %w", err)
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
