package audit

import "github.com/leasehold/leasehold/pkg/database"

// MigrationComponent names the audit version sequence in schema_migrations
const MigrationComponent = "audit"

// Schema returns the migrations of this package tagged with their component
func Schema() database.Schema {
	return database.Schema{Component: MigrationComponent, Migrations: Migrations()}
}

// Migrations returns the audit_logs schema
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Version:     1,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id VARCHAR(36) PRIMARY KEY,
					organization_id VARCHAR(36) NOT NULL,
					actor_id VARCHAR(36),
					event_type VARCHAR(64) NOT NULL,
					resource_type VARCHAR(32),
					resource_id VARCHAR(255),
					request_id VARCHAR(100),
					metadata TEXT,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_org_created ON audit_logs(organization_id, created_at);
			`,
		},
	}
}
