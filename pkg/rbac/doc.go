// Package rbac decides whether a user may perform an action on a resource
// inside a property-management organization.
//
// # Overview
//
// Access is layered. A static role table gives every global user role a
// create/read/update/delete set per resource type. Inside an organization,
// a member may be placed on a team; a team's view of property-scoped
// resources is narrowed to the properties assigned to it, and widened again
// by explicit per-instance grants.
//
// # Resources and Actions
//
// Resources are the domain objects of a letting agency:
//
//	ResourceProperty, ResourceUnit, ResourceLease, ResourceTenant,
//	ResourceMaintenance, ResourcePayment, ResourceDocument,
//	ResourceCommunication, ResourceReport, ResourceTeam, ResourceMember,
//	ResourceInvitation, ResourceOrganization
//
// Actions are ActionCreate, ActionRead, ActionUpdate and ActionDelete.
//
// Property, unit, lease, tenant and maintenance are property-scoped: the
// resolver walks their ownership chain back to one or more properties
// before checking team assignment.
//
// # Decision Order
//
// Resolver.HasPermission applies these rules in order; the first match wins:
//
//  1. No membership in the organization, or a membership that is not
//     active: deny.
//  2. Member role owner: allow.
//  3. Global role admin: allow.
//  4. The role table denies the action for the global role: deny.
//  5. No resource instance named: allow.
//  6. Member has no team: allow.
//  7. The instance resolves to a property assigned to the team: allow.
//  8. The team holds an explicit grant for exactly this instance and
//     action: allow.
//  9. Otherwise: deny.
//
// A failed lookup never allows. HasPermission returns false with the error
// so callers can tell "denied" from "could not decide".
//
// # Usage
//
//	store := rbac.NewStore(db)
//	resolver := rbac.NewResolver(store,
//		rbac.WithCache(rbac.NewMemoryCache(10000, time.Minute), 30*time.Second),
//		rbac.WithMetrics(metrics),
//	)
//
//	ok, err := resolver.HasPermission(ctx, userID, orgID, rbac.ResourceLease, rbac.ActionUpdate, leaseID)
//
// Protecting a route:
//
//	router.Handle("/leases/{lease_id}",
//		rbac.RequirePermission(resolver, rbac.ResourceLease, rbac.ActionUpdate, "lease_id")(handler),
//	).Methods("PUT")
//
// # Caching
//
// Decisions may be cached in memory (MemoryCache) or in Redis (RedisCache).
// Every cached entry is tagged with a per-organization generation, so
// Resolver.Invalidate drops all decisions of an organization in one step.
// Writers must call Invalidate after changing memberships, teams,
// assignments or grants; otherwise a stale decision survives until its TTL.
// The resolver reads the generation before evaluating a check and stores the
// result under it, so a check that overlaps an Invalidate is never served
// afterwards.
//
// # Schema
//
// Migrations creates teams, the property ownership chain, team_properties
// and resource_permissions. It expects the orgs tables to exist.
package rbac
