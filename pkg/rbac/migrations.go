package rbac

import "github.com/leasehold/leasehold/pkg/database"

// MigrationComponent names the rbac version sequence in schema_migrations
const MigrationComponent = "rbac"

// Schema returns the migrations of this package tagged with their component
func Schema() database.Schema {
	return database.Schema{Component: MigrationComponent, Migrations: Migrations()}
}

// Migrations returns the schema owned by this package: teams, the
// team-property and grant tables, and the ownership chain columns the
// resolver walks. They depend on the orgs migrations having run.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create teams table",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id VARCHAR(36) PRIMARY KEY,
					organization_id VARCHAR(36) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL,
					UNIQUE (organization_id, name)
				);
				CREATE INDEX IF NOT EXISTS idx_teams_organization_id ON teams(organization_id);
			`,
		},
		{
			Version:     2,
			Description: "Create property ownership chain tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS properties (
					id VARCHAR(36) PRIMARY KEY,
					organization_id VARCHAR(36) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_properties_organization_id ON properties(organization_id);

				CREATE TABLE IF NOT EXISTS units (
					id VARCHAR(36) PRIMARY KEY,
					property_id VARCHAR(36) NOT NULL REFERENCES properties(id) ON DELETE CASCADE
				);
				CREATE INDEX IF NOT EXISTS idx_units_property_id ON units(property_id);

				CREATE TABLE IF NOT EXISTS leases (
					id VARCHAR(36) PRIMARY KEY,
					unit_id VARCHAR(36) NOT NULL REFERENCES units(id) ON DELETE CASCADE
				);
				CREATE INDEX IF NOT EXISTS idx_leases_unit_id ON leases(unit_id);

				CREATE TABLE IF NOT EXISTS tenants (
					id VARCHAR(36) PRIMARY KEY,
					organization_id VARCHAR(36) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS lease_tenants (
					lease_id VARCHAR(36) NOT NULL REFERENCES leases(id) ON DELETE CASCADE,
					tenant_id VARCHAR(36) NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					PRIMARY KEY (lease_id, tenant_id)
				);
				CREATE INDEX IF NOT EXISTS idx_lease_tenants_tenant_id ON lease_tenants(tenant_id);

				CREATE TABLE IF NOT EXISTS maintenance_requests (
					id VARCHAR(36) PRIMARY KEY,
					property_id VARCHAR(36) REFERENCES properties(id) ON DELETE SET NULL,
					unit_id VARCHAR(36) REFERENCES units(id) ON DELETE SET NULL
				);
			`,
		},
		{
			Version:     3,
			Description: "Create team_properties table",
			SQL: `
				CREATE TABLE IF NOT EXISTS team_properties (
					team_id VARCHAR(36) NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					property_id VARCHAR(36) NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL,
					PRIMARY KEY (team_id, property_id)
				);
				CREATE INDEX IF NOT EXISTS idx_team_properties_property_id ON team_properties(property_id);
			`,
		},
		{
			Version:     4,
			Description: "Create resource_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_permissions (
					team_id VARCHAR(36) NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					resource_type VARCHAR(32) NOT NULL,
					resource_id VARCHAR(36) NOT NULL,
					action VARCHAR(16) NOT NULL,
					granted_at TIMESTAMP NOT NULL,
					PRIMARY KEY (team_id, resource_type, resource_id, action)
				);
				CREATE INDEX IF NOT EXISTS idx_resource_permissions_resource
					ON resource_permissions(resource_type, resource_id);
			`,
		},
	}
}
