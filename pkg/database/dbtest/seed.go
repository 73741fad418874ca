package dbtest

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Seeder inserts fixture rows directly, bypassing services so tests can
// set up states the services would refuse
type Seeder struct {
	t   testing.TB
	db  *sql.DB
	Now time.Time
}

// NewSeeder creates a seeder over db. Now defaults to the current time in UTC.
func NewSeeder(t testing.TB, db *sql.DB) *Seeder {
	return &Seeder{t: t, db: db, Now: time.Now().UTC().Truncate(time.Second)}
}

func (s *Seeder) exec(query string, args ...any) {
	s.t.Helper()
	_, err := s.db.Exec(query, args...)
	require.NoError(s.t, err)
}

// User inserts a user with a global role
func (s *Seeder) User(id, role string) string {
	s.t.Helper()
	s.exec(`INSERT INTO users (id, email, role, created_at) VALUES ($1, $2, $3, $4)`,
		id, id+"@example.com", role, s.Now)
	return id
}

// Organization inserts an organization with explicit limits
func (s *Seeder) Organization(id, ownerID string, maxUsers, maxProperties int) string {
	s.t.Helper()
	s.exec(`
		INSERT INTO organizations (id, name, agent_owner_id, plan_tier, max_properties, max_users,
		                           subscription_status, created_at, updated_at)
		VALUES ($1, $2, $3, 'starter', $4, $5, 'active', $6, $6)
	`, id, "Org "+id, ownerID, maxProperties, maxUsers, s.Now)
	return id
}

// Member inserts a membership. teamID may be empty.
func (s *Seeder) Member(orgID, userID, orgRole, status, teamID string) string {
	s.t.Helper()
	id := uuid.NewString()
	var team any
	if teamID != "" {
		team = teamID
	}
	s.exec(`
		INSERT INTO members (id, organization_id, user_id, role, team_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, orgID, userID, orgRole, team, status, s.Now)
	return id
}

// Team inserts a team
func (s *Seeder) Team(id, orgID string) string {
	s.t.Helper()
	s.exec(`INSERT INTO teams (id, organization_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		id, orgID, "Team "+id, s.Now)
	return id
}

// Property inserts a property
func (s *Seeder) Property(id, orgID string) string {
	s.t.Helper()
	s.exec(`INSERT INTO properties (id, organization_id, name) VALUES ($1, $2, $3)`,
		id, orgID, "Property "+id)
	return id
}

// Unit inserts a unit of a property
func (s *Seeder) Unit(id, propertyID string) string {
	s.t.Helper()
	s.exec(`INSERT INTO units (id, property_id) VALUES ($1, $2)`, id, propertyID)
	return id
}

// Lease inserts a lease on a unit
func (s *Seeder) Lease(id, unitID string) string {
	s.t.Helper()
	s.exec(`INSERT INTO leases (id, unit_id) VALUES ($1, $2)`, id, unitID)
	return id
}

// Tenant inserts a tenant linked to the given leases
func (s *Seeder) Tenant(id, orgID string, leaseIDs ...string) string {
	s.t.Helper()
	s.exec(`INSERT INTO tenants (id, organization_id) VALUES ($1, $2)`, id, orgID)
	for _, leaseID := range leaseIDs {
		s.exec(`INSERT INTO lease_tenants (lease_id, tenant_id) VALUES ($1, $2)`, leaseID, id)
	}
	return id
}

// Maintenance inserts a maintenance request attached to a property, a
// unit, or both. Empty ids are stored as NULL.
func (s *Seeder) Maintenance(id, propertyID, unitID string) string {
	s.t.Helper()
	var property, unit any
	if propertyID != "" {
		property = propertyID
	}
	if unitID != "" {
		unit = unitID
	}
	s.exec(`INSERT INTO maintenance_requests (id, property_id, unit_id) VALUES ($1, $2, $3)`,
		id, property, unit)
	return id
}

// AssignProperty links a property to a team
func (s *Seeder) AssignProperty(teamID, propertyID string) {
	s.t.Helper()
	s.exec(`INSERT INTO team_properties (team_id, property_id, created_at) VALUES ($1, $2, $3)`,
		teamID, propertyID, s.Now)
}

// Invitation inserts an invitation with the given status and expiry
func (s *Seeder) Invitation(orgID, email, status string, expiresAt time.Time) string {
	s.t.Helper()
	id := uuid.NewString()
	s.exec(`
		INSERT INTO invitations (id, organization_id, email, role, team_id, token, status, invited_by,
		                         created_at, expires_at)
		VALUES ($1, $2, $3, 'member', NULL, $4, $5, 'seed', $6, $7)
	`, id, orgID, email, uuid.NewString(), status, s.Now, expiresAt)
	return id
}
