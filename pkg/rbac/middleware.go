package rbac

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leasehold/leasehold/pkg/contextkeys"
	"github.com/leasehold/leasehold/pkg/httputil"
)

// RequirePermission creates middleware that lets the request through only
// when the caller may perform action on resource in the bound organization.
// When idVar is set, the mux path variable of that name is checked as the
// resource instance. Identity and organization must already be bound to the
// request context.
func RequirePermission(resolver *Resolver, resource Resource, action Action, idVar string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := contextkeys.GetUserID(ctx)
			if userID == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			orgID := contextkeys.GetOrganizationID(ctx)
			if orgID == "" {
				httputil.WriteForbidden(w)
				return
			}

			var resourceID string
			if idVar != "" {
				resourceID = mux.Vars(r)[idVar]
				if resourceID == "" {
					httputil.WriteBadRequest(w, idVar+" is required")
					return
				}
			}

			allowed, err := resolver.HasPermission(ctx, userID, orgID, resource, action, resourceID)
			if err != nil {
				httputil.WriteServiceError(w, r, err)
				return
			}
			if !allowed {
				httputil.WriteForbidden(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
