package middleware

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leasehold/leasehold/pkg/audit"
	"github.com/leasehold/leasehold/pkg/contextkeys"
	"github.com/leasehold/leasehold/pkg/httputil"
	"github.com/leasehold/leasehold/pkg/orgs"
)

// OrganizationGetter loads organizations. *orgs.Service implements it.
type OrganizationGetter interface {
	GetOrganization(ctx context.Context, id string) (*orgs.Organization, error)
}

// OrgContextMiddleware binds the organization named by the {org_id} path
// variable to the request. An unknown organization answers 404. Whether the
// caller belongs to it is decided per route by rbac.RequirePermission.
func OrgContextMiddleware(getter OrganizationGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, ok := mux.Vars(r)["org_id"]
			if !ok {
				// No organization context needed
				next.ServeHTTP(w, r)
				return
			}
			if orgID == "" {
				httputil.WriteBadRequest(w, "org_id is required")
				return
			}

			org, err := getter.GetOrganization(r.Context(), orgID)
			if err != nil {
				httputil.WriteServiceError(w, r, err)
				return
			}

			ctx := contextkeys.WithOrganizationID(r.Context(), org.ID)
			ctx = contextkeys.WithOrg(ctx, org)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOrganization returns the organization bound by OrgContextMiddleware
func GetOrganization(r *http.Request) *orgs.Organization {
	org, _ := r.Context().Value(contextkeys.OrgKey).(*orgs.Organization)
	return org
}

// AuditMiddleware makes logger the audit sink for handlers of the request
func AuditMiddleware(logger audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), logger)))
		})
	}
}
