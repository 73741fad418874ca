package orgs

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/leasehold/leasehold/pkg/contextkeys"
	"github.com/leasehold/leasehold/pkg/httputil"
	"github.com/leasehold/leasehold/pkg/rbac"
)

// Handlers provides HTTP handlers for organization management
type Handlers struct {
	service  *Service
	resolver *rbac.Resolver
}

// NewHandlers creates new organization handlers
func NewHandlers(service *Service, resolver *rbac.Resolver) *Handlers {
	return &Handlers{service: service, resolver: resolver}
}

// RegisterRoutes registers routes that are not bound to one organization.
// The router must already authenticate the caller.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.CreateOrganization).Methods("POST")
	router.HandleFunc("/invitations/accept", h.AcceptInvitation).Methods("POST")
}

// RegisterOrgRoutes registers routes on a router mounted at
// /orgs/{org_id} with the organization already bound to the context
func (h *Handlers) RegisterOrgRoutes(router *mux.Router) {
	require := func(resource rbac.Resource, action rbac.Action, fn http.HandlerFunc) http.Handler {
		return rbac.RequirePermission(h.resolver, resource, action, "")(fn)
	}

	router.Handle("", require(rbac.ResourceOrganization, rbac.ActionRead, h.GetOrganization)).Methods("GET")
	router.Handle("/subscription", require(rbac.ResourceOrganization, rbac.ActionUpdate, h.UpdateSubscription)).Methods("PUT")
	router.Handle("/limits", require(rbac.ResourceOrganization, rbac.ActionRead, h.GetLimits)).Methods("GET")

	router.Handle("/members", require(rbac.ResourceMember, rbac.ActionRead, h.ListMembers)).Methods("GET")
	router.Handle("/members", require(rbac.ResourceMember, rbac.ActionCreate, h.AddMember)).Methods("POST")
	router.Handle("/members/{user_id}/status", require(rbac.ResourceMember, rbac.ActionUpdate, h.UpdateMemberStatus)).Methods("PUT")
	router.Handle("/members/{user_id}/team", require(rbac.ResourceMember, rbac.ActionUpdate, h.UpdateMemberTeam)).Methods("PUT")

	router.Handle("/invitations", require(rbac.ResourceInvitation, rbac.ActionRead, h.ListInvitations)).Methods("GET")
	router.Handle("/invitations", require(rbac.ResourceInvitation, rbac.ActionCreate, h.CreateInvitation)).Methods("POST")
	router.Handle("/invitations/{invitation_id}", require(rbac.ResourceInvitation, rbac.ActionDelete, h.RevokeInvitation)).Methods("DELETE")
}

// CreateOrganization creates an organization owned by the caller
func (h *Handlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.AgentOwnerID = contextkeys.GetUserID(r.Context())
	if req.AgentOwnerID == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	org, err := h.service.CreateOrganization(r.Context(), &req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteCreated(w, org)
}

// GetOrganization returns the bound organization
func (h *Handlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := h.service.GetOrganization(r.Context(), contextkeys.GetOrganizationID(r.Context()))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, org)
}

// UpdateSubscription changes plan, status or limits
func (h *Handlers) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req UpdateSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := h.service.UpdateSubscription(r.Context(), contextkeys.GetOrganizationID(r.Context()), &req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, org)
}

// GetLimits reports usage against the plan and both gates
func (h *Handlers) GetLimits(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetLimits(r.Context(), contextkeys.GetOrganizationID(r.Context()))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, report)
}

// ListMembers lists the members of the bound organization
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context(), contextkeys.GetOrganizationID(r.Context()))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, members)
}

// AddMember adds an existing user as an active member
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	member, err := h.service.AddMember(r.Context(), contextkeys.GetOrganizationID(r.Context()), &req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteCreated(w, member)
}

// UpdateMemberStatus changes the status of a member
func (h *Handlers) UpdateMemberStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Status rbac.MemberStatus `json:"status"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.UpdateMemberStatus(r.Context(), contextkeys.GetOrganizationID(r.Context()), userID, req.Status); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}

// UpdateMemberTeam moves a member into or out of a team
func (h *Handlers) UpdateMemberTeam(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		TeamID *string `json:"team_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.UpdateMemberTeam(r.Context(), contextkeys.GetOrganizationID(r.Context()), userID, req.TeamID); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListInvitations lists pending invitations
func (h *Handlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := h.service.ListPendingInvitations(r.Context(), contextkeys.GetOrganizationID(r.Context()))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, invitations)
}

// CreateInvitation invites a user. It answers 429 when no seat is left.
func (h *Handlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req InviteMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	invitation, err := h.service.CreateInvitation(ctx, contextkeys.GetOrganizationID(ctx), contextkeys.GetUserID(ctx), &req)
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteCreated(w, invitation)
}

// RevokeInvitation revokes a pending invitation
func (h *Handlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID, ok := httputil.ParsePathStringOrError(w, r, "invitation_id")
	if !ok {
		return
	}

	if err := h.service.RevokeInvitation(r.Context(), contextkeys.GetOrganizationID(r.Context()), invitationID); err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	httputil.WriteNoContent(w)
}

// AcceptInvitation joins the caller to the inviting organization
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	member, err := h.service.AcceptInvitation(r.Context(), req.Token, contextkeys.GetUserID(r.Context()))
	if err != nil {
		httputil.WriteServiceError(w, r, err)
		return
	}

	_ = httputil.WriteSuccess(w, member)
}
