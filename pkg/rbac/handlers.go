package rbac

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leasehold/leasehold/pkg/audit"
	"github.com/leasehold/leasehold/pkg/contextkeys"
	"github.com/leasehold/leasehold/pkg/httputil"
	"github.com/leasehold/leasehold/pkg/observability"
)

// Handlers provides HTTP handlers for teams, team-property assignments,
// resource grants and permission checks
type Handlers struct {
	store    *Store
	resolver *Resolver
}

// NewHandlers creates new RBAC handlers
func NewHandlers(store *Store, resolver *Resolver) *Handlers {
	return &Handlers{store: store, resolver: resolver}
}

// RegisterRoutes registers routes that are not bound to an organization
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles/{role}", h.GetRole).Methods("GET")
}

// RegisterOrgRoutes registers routes on a router mounted at
// /orgs/{org_id} with the organization already bound to the context
func (h *Handlers) RegisterOrgRoutes(router *mux.Router) {
	require := func(action Action, fn http.HandlerFunc) http.Handler {
		return RequirePermission(h.resolver, ResourceTeam, action, "")(fn)
	}

	router.Handle("/teams", require(ActionRead, h.ListTeams)).Methods("GET")
	router.Handle("/teams", require(ActionCreate, h.CreateTeam)).Methods("POST")

	router.Handle("/teams/{team_id}/properties", require(ActionRead, h.GetTeamProperties)).Methods("GET")
	router.Handle("/teams/{team_id}/properties", require(ActionUpdate, h.AssignTeamProperties)).Methods("PUT")
	router.Handle("/properties/{property_id}/teams", require(ActionRead, h.GetPropertyTeams)).Methods("GET")

	router.Handle("/teams/{team_id}/grants", require(ActionRead, h.ListTeamGrants)).Methods("GET")
	router.Handle("/teams/{team_id}/grants", require(ActionUpdate, h.GrantPermission)).Methods("POST")
	router.Handle("/teams/{team_id}/grants", require(ActionUpdate, h.RevokePermission)).Methods("DELETE")
	router.Handle("/grants/{resource_type}/{resource_id}", require(ActionRead, h.ListResourceGrants)).Methods("GET")

	router.HandleFunc("/permissions/check", h.CheckPermission).Methods("POST")
	router.HandleFunc("/permissions/filter", h.FilterPermissions).Methods("POST")
}

// GrantRequest names one grant tuple of a team
type GrantRequest struct {
	ResourceType Resource `json:"resource_type"`
	ResourceID   string   `json:"resource_id"`
	Action       Action   `json:"action"`
}

// CheckRequest asks whether the caller may act on a resource
type CheckRequest struct {
	ResourceType Resource `json:"resource_type"`
	Action       Action   `json:"action"`
	ResourceID   string   `json:"resource_id,omitempty"`
}

// FilterRequest asks which of several resource instances the caller may act on
type FilterRequest struct {
	ResourceType Resource `json:"resource_type"`
	Action       Action   `json:"action"`
	ResourceIDs  []string `json:"resource_ids"`
}

// ListRoles returns every role with its permission matrix
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	type roleView struct {
		Role        Role                          `json:"role"`
		Permissions map[Resource]map[Action]bool `json:"permissions"`
	}

	roles := make([]roleView, 0, len(Roles()))
	for _, role := range Roles() {
		roles = append(roles, roleView{Role: role, Permissions: GetRolePermissions(role)})
	}

	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"table_version": TableVersion,
		"roles":         roles,
	})
}

// GetRole returns the permission matrix of one role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	raw, ok := httputil.ParsePathStringOrError(w, r, "role")
	if !ok {
		return
	}
	role, err := ValidateRole(raw)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("unknown role %q", raw))
		return
	}

	_ = httputil.WriteSuccess(w, map[string]interface{}{
		"role":          role,
		"table_version": TableVersion,
		"permissions":   GetRolePermissions(role),
	})
}

// ListTeams lists the teams of the bound organization
func (h *Handlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.store.ListTeams(r.Context(), contextkeys.GetOrganizationID(r.Context()))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, teams)
}

// CreateTeam creates a team in the bound organization
func (h *Handlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	team, err := h.store.CreateTeam(r.Context(), contextkeys.GetOrganizationID(r.Context()), req.Name, req.Description)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteCreated(w, team)
}

// GetTeamProperties lists the properties assigned to a team
func (h *Handlers) GetTeamProperties(w http.ResponseWriter, r *http.Request) {
	team, ok := h.boundTeam(w, r)
	if !ok {
		return
	}

	ids, err := h.store.GetTeamPropertyIDs(r.Context(), team.ID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, map[string]interface{}{"team_id": team.ID, "property_ids": ids})
}

// AssignTeamProperties replaces the property set of a team
func (h *Handlers) AssignTeamProperties(w http.ResponseWriter, r *http.Request) {
	team, ok := h.boundTeam(w, r)
	if !ok {
		return
	}
	var req struct {
		PropertyIDs []string `json:"property_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	ids, err := h.store.AssignProperties(ctx, team.ID, team.OrganizationID, req.PropertyIDs)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	h.afterWrite(ctx, team.OrganizationID, &audit.Event{
		OrganizationID: team.OrganizationID,
		Type:           audit.EventTypeTeamPropertiesAssigned,
		ResourceType:   string(ResourceTeam),
		ResourceID:     team.ID,
		Metadata:       map[string]interface{}{"property_ids": ids},
	})

	_ = httputil.WriteSuccess(w, map[string]interface{}{"team_id": team.ID, "property_ids": ids})
}

// GetPropertyTeams lists the teams of the bound organization holding a property
func (h *Handlers) GetPropertyTeams(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := httputil.ParsePathStringOrError(w, r, "property_id")
	if !ok {
		return
	}

	teams, err := h.store.GetPropertyTeams(r.Context(), propertyID, contextkeys.GetOrganizationID(r.Context()))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, teams)
}

// ListTeamGrants lists the grants held by a team
func (h *Handlers) ListTeamGrants(w http.ResponseWriter, r *http.Request) {
	team, ok := h.boundTeam(w, r)
	if !ok {
		return
	}

	grants, err := h.store.ListForTeam(r.Context(), team.ID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, grants)
}

// GrantPermission adds a grant to a team
func (h *Handlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	team, ok := h.boundTeam(w, r)
	if !ok {
		return
	}
	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	if IsValidResource(req.ResourceType) && req.ResourceID != "" {
		inOrg, err := h.store.ResourceInOrganization(ctx, req.ResourceType, req.ResourceID, team.OrganizationID)
		if err != nil {
			httputil.WriteServiceError(w, r, err)
			return
		}
		if !inOrg {
			httputil.WriteServiceError(w, r, fmt.Errorf("%w: %s %s", ErrNotFound, req.ResourceType, req.ResourceID))
			return
		}
	}

	grant, err := h.store.Grant(ctx, team.ID, req.ResourceType, req.ResourceID, req.Action)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	h.afterWrite(ctx, team.OrganizationID, &audit.Event{
		OrganizationID: team.OrganizationID,
		Type:           audit.EventTypePermissionGranted,
		ResourceType:   string(grant.ResourceType),
		ResourceID:     grant.ResourceID,
		Metadata:       map[string]interface{}{"team_id": team.ID, "action": string(grant.Action)},
	})

	_ = httputil.WriteCreated(w, grant)
}

// RevokePermission removes a grant from a team
func (h *Handlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	team, ok := h.boundTeam(w, r)
	if !ok {
		return
	}
	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.store.Revoke(ctx, team.ID, req.ResourceType, req.ResourceID, req.Action); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	h.afterWrite(ctx, team.OrganizationID, &audit.Event{
		OrganizationID: team.OrganizationID,
		Type:           audit.EventTypePermissionRevoked,
		ResourceType:   string(req.ResourceType),
		ResourceID:     req.ResourceID,
		Metadata:       map[string]interface{}{"team_id": team.ID, "action": string(req.Action)},
	})

	httputil.WriteNoContent(w)
}

// ListResourceGrants lists the grants on one resource instance held by teams
// of the bound organization
func (h *Handlers) ListResourceGrants(w http.ResponseWriter, r *http.Request) {
	resourceType, ok := httputil.ParsePathStringOrError(w, r, "resource_type")
	if !ok {
		return
	}
	resourceID, ok := httputil.ParsePathStringOrError(w, r, "resource_id")
	if !ok {
		return
	}
	if !IsValidResource(Resource(resourceType)) {
		httputil.WriteBadRequest(w, fmt.Sprintf("unknown resource type %q", resourceType))
		return
	}

	orgID := contextkeys.GetOrganizationID(r.Context())
	grants, err := h.store.ListForResource(r.Context(), Resource(resourceType), resourceID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	scoped := make([]TeamGrant, 0, len(grants))
	for _, grant := range grants {
		if grant.OrganizationID == orgID {
			scoped = append(scoped, grant)
		}
	}

	_ = httputil.WriteSuccess(w, scoped)
}

// CheckPermission answers whether the caller may perform the action. Only
// the boolean is returned.
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !IsValidResource(req.ResourceType) || !IsValidAction(req.Action) {
		httputil.WriteBadRequest(w, "unknown resource_type or action")
		return
	}

	ctx := r.Context()
	allowed, err := h.resolver.HasPermission(ctx,
		contextkeys.GetUserID(ctx), contextkeys.GetOrganizationID(ctx),
		req.ResourceType, req.Action, req.ResourceID)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, map[string]bool{"allowed": allowed})
}

// FilterPermissions returns the subset of resource ids the caller may act on
func (h *Handlers) FilterPermissions(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !IsValidResource(req.ResourceType) || !IsValidAction(req.Action) {
		httputil.WriteBadRequest(w, "unknown resource_type or action")
		return
	}
	if len(req.ResourceIDs) > 500 {
		httputil.WriteBadRequest(w, "at most 500 resource_ids per request")
		return
	}

	ctx := r.Context()
	allowed, err := h.resolver.FilterAllowed(ctx,
		contextkeys.GetUserID(ctx), contextkeys.GetOrganizationID(ctx),
		req.ResourceType, req.Action, req.ResourceIDs)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, map[string][]string{"allowed_ids": allowed})
}

// boundTeam loads the {team_id} path team and checks it belongs to the
// bound organization
func (h *Handlers) boundTeam(w http.ResponseWriter, r *http.Request) (*Team, bool) {
	teamID, ok := httputil.ParsePathStringOrError(w, r, "team_id")
	if !ok {
		return nil, false
	}

	team, err := h.store.GetOrganizationTeam(r.Context(), teamID, contextkeys.GetOrganizationID(r.Context()))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return nil, false
	}
	return team, true
}

// afterWrite drops cached decisions of the organization and records the
// audit event. Neither failure undoes the committed write.
func (h *Handlers) afterWrite(ctx context.Context, organizationID string, event *audit.Event) {
	logger := observability.FromContext(ctx)
	if err := h.resolver.Invalidate(ctx, organizationID); err != nil {
		logger.WithError(err).Warn("Failed to invalidate authorization cache")
	}
	if err := audit.FromContext(ctx).Log(ctx, event); err != nil {
		logger.WithError(err).WithField("event_type", string(event.Type)).Warn("Failed to record audit event")
	}
}
