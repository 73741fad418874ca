package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store handles RBAC data persistence: memberships, teams, team-property
// assignments, resource grants and the ownership chain of domain resources.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// GetMember loads the membership of userID in organizationID together with
// the user's global role.
func (s *Store) GetMember(ctx context.Context, userID, organizationID string) (*Member, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, u.role, m.team_id, m.status, m.created_at
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.user_id = $1 AND m.organization_id = $2
	`

	var member Member
	var teamID sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID, organizationID).Scan(
		&member.ID,
		&member.OrganizationID,
		&member.UserID,
		&member.Role,
		&member.UserRole,
		&teamID,
		&member.Status,
		&member.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: member %s in organization %s", ErrNotFound, userID, organizationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	if teamID.Valid && teamID.String != "" {
		id := teamID.String
		member.TeamID = &id
	}

	return &member, nil
}

// GetTeam retrieves a team by ID
func (s *Store) GetTeam(ctx context.Context, teamID string) (*Team, error) {
	query := `
		SELECT id, organization_id, name, description, created_at
		FROM teams
		WHERE id = $1
	`

	var team Team
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, query, teamID).Scan(
		&team.ID,
		&team.OrganizationID,
		&team.Name,
		&description,
		&team.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: team %s", ErrNotFound, teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	team.Description = description.String

	return &team, nil
}

// DistinctUserRoles returns every distinct role string stored on users
func (s *Store) DistinctUserRoles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT role FROM users ORDER BY role`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// PropertiesFor resolves the properties that own a resource instance.
// Units, leases and maintenance requests resolve to at most one property;
// tenants fan out over every lease they are linked to. An unknown resource
// yields ErrNotFound. Resource types outside the chain yield no properties.
func (s *Store) PropertiesFor(ctx context.Context, resource Resource, resourceID string) ([]string, error) {
	var query string
	switch resource {
	case ResourceProperty:
		query = `SELECT id FROM properties WHERE id = $1`
	case ResourceUnit:
		query = `SELECT property_id FROM units WHERE id = $1`
	case ResourceLease:
		query = `
			SELECT u.property_id
			FROM leases l
			JOIN units u ON u.id = l.unit_id
			WHERE l.id = $1
		`
	case ResourceMaintenance:
		query = `
			SELECT COALESCE(mr.property_id, u.property_id)
			FROM maintenance_requests mr
			LEFT JOIN units u ON u.id = mr.unit_id
			WHERE mr.id = $1
		`
	case ResourceTenant:
		return s.tenantProperties(ctx, resourceID)
	default:
		return nil, nil
	}

	var propertyID sql.NullString
	err := s.db.QueryRowContext(ctx, query, resourceID).Scan(&propertyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, resource, resourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s property: %w", resource, err)
	}
	if !propertyID.Valid || propertyID.String == "" {
		return nil, nil
	}

	return []string{propertyID.String}, nil
}

func (s *Store) tenantProperties(ctx context.Context, tenantID string) ([]string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE id = $1`, tenantID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	query := `
		SELECT DISTINCT u.property_id
		FROM lease_tenants lt
		JOIN leases l ON l.id = lt.lease_id
		JOIN units u ON u.id = l.unit_id
		WHERE lt.tenant_id = $1
		ORDER BY u.property_id
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant properties: %w", err)
	}
	defer rows.Close()

	var properties []string
	for rows.Next() {
		var propertyID string
		if err := rows.Scan(&propertyID); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		properties = append(properties, propertyID)
	}

	return properties, rows.Err()
}

// placeholders renders "$start, $start+1, ..." for n arguments
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// dedupeIDs trims ids, drops empties and keeps first occurrences
func dedupeIDs(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
