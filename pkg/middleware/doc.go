// Package middleware provides the HTTP middleware that sits in front of the
// authorization handlers: bearer token authentication, organization context,
// audit sink binding and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: HS256 JWT authentication
//
//	auth := middleware.NewAuthMiddleware(secret, "leasehold", false)
//	api.Use(auth.Handler)
//	// Sets the user id (token subject) and role claim on the request context
//
// OrgContextMiddleware: load the organization named by {org_id}
//
//	orgRouter.Use(middleware.OrgContextMiddleware(orgService))
//	// Unknown organizations answer 404; membership is checked per route
//	// by rbac.RequirePermission
//
// AuditMiddleware: bind the audit sink used by handlers
//
//	api.Use(middleware.AuditMiddleware(dbLogger)) // *audit.DBLogger
//
// RateLimitMiddleware: per-caller limits
//
//	limiter := middleware.NewRateLimiter(cfg)                       // process local token bucket
//	limiter := middleware.NewDistributedRateLimiter(redis, cfg, "") // shared fixed window
//	api.Use(middleware.NewRateLimitMiddleware(limiter, logger, metrics).Handler)
//
// Callers are keyed by user id once authenticated and by client address
// otherwise. Limiter errors fail open and are logged.
//
// # Related Packages
//
//   - pkg/rbac: Permission checking
//   - pkg/orgs: Organizations and subscription limits
package middleware
