// Package config loads application configuration from defaults, an optional
// YAML file and LEASEHOLD_* environment variables.
//
// # Sources
//
// Environment variables win over the file, which wins over defaults:
//
//	LEASEHOLD_CONFIG_FILE="/etc/leasehold/config.yaml"
//	LEASEHOLD_DATABASE_URL="postgres://leasehold@db/leasehold?sslmode=disable"
//	LEASEHOLD_JWT_SECRET="..."
//	LEASEHOLD_REDIS_URL="redis://cache:6379/0"
//	LEASEHOLD_AUTHZ_CACHE_TTL="30s"   # 0 disables decision caching
//	LEASEHOLD_LOG_LEVEL="info"
//
// An equivalent file:
//
//	database:
//	  url: postgres://leasehold@db/leasehold?sslmode=disable
//	authz:
//	  cache_ttl: 30s
//	observability:
//	  log_level: debug
//
// # Hot Reload
//
// Watch re-reads the file on change. The server applies only the log level
// and the decision cache TTL at runtime; everything else needs a restart.
package config
