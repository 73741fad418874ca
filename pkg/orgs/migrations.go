package orgs

import "github.com/leasehold/leasehold/pkg/database"

// MigrationComponent names the orgs version sequence in schema_migrations
const MigrationComponent = "orgs"

// Schema returns the migrations of this package tagged with their component
func Schema() database.Schema {
	return database.Schema{Component: MigrationComponent, Migrations: Migrations()}
}

// Migrations returns the users, organizations, members and invitations
// schema. It runs before the rbac migrations, which reference it.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(36) PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					role VARCHAR(32) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id VARCHAR(36) PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					agent_owner_id VARCHAR(36) NOT NULL REFERENCES users(id),
					plan_tier VARCHAR(32) NOT NULL,
					max_properties INTEGER NOT NULL,
					max_users INTEGER NOT NULL,
					subscription_status VARCHAR(32) NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_organizations_agent_owner_id ON organizations(agent_owner_id);
			`,
		},
		{
			Version:     3,
			Description: "Create members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS members (
					id VARCHAR(36) PRIMARY KEY,
					organization_id VARCHAR(36) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(32) NOT NULL,
					team_id VARCHAR(36),
					status VARCHAR(32) NOT NULL,
					created_at TIMESTAMP NOT NULL,
					UNIQUE (organization_id, user_id)
				);
				CREATE INDEX IF NOT EXISTS idx_members_user_id ON members(user_id);
				CREATE INDEX IF NOT EXISTS idx_members_team_id ON members(team_id);
			`,
		},
		{
			Version:     4,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id VARCHAR(36) PRIMARY KEY,
					organization_id VARCHAR(36) NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(32) NOT NULL,
					team_id VARCHAR(36),
					token VARCHAR(64) NOT NULL UNIQUE,
					status VARCHAR(32) NOT NULL,
					invited_by VARCHAR(36) NOT NULL,
					created_at TIMESTAMP NOT NULL,
					expires_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_invitations_org_status ON invitations(organization_id, status);
			`,
		},
	}
}
