package orgs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leasehold/leasehold/pkg/contextkeys"
	"github.com/leasehold/leasehold/pkg/httputil"
	"github.com/leasehold/leasehold/pkg/rbac"
)

func newTestRouter(f *fixture) *mux.Router {
	handlers := NewHandlers(f.service, rbac.NewResolver(rbac.NewStore(f.db)))

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if user := r.Header.Get("X-User-ID"); user != "" {
				ctx = contextkeys.WithUserID(ctx, user)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	handlers.RegisterRoutes(router)

	orgRouter := router.PathPrefix("/orgs/{org_id}").Subrouter()
	orgRouter.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(contextkeys.WithOrganizationID(r.Context(), mux.Vars(r)["org_id"])))
		})
	})
	handlers.RegisterOrgRoutes(orgRouter)
	return router
}

func serve(t *testing.T, router http.Handler, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlers_CreateOrganization(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	f.seed.User("agent", string(rbac.RoleAgentOwner))

	w := serve(t, router, "POST", "/orgs", "agent", map[string]string{"name": "Harbour Lettings", "plan_tier": "growth"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var org Organization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &org))
	assert.Equal(t, "agent", org.AgentOwnerID)
	assert.Equal(t, 15, org.MaxUsers)

	// the creator can immediately manage the new organization
	w = serve(t, router, "GET", "/orgs/"+org.ID, "agent", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, router, "POST", "/orgs", "", map[string]string{"name": "Anon"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlers_OrganizationAccess(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	org := seedOrg(t, f, 5)
	staff := f.seed.User("staff", string(rbac.RoleAgentStaff))
	f.seed.Member(org, staff, string(rbac.OrgRoleMember), string(rbac.MemberStatusActive), "")
	f.seed.User("outsider", string(rbac.RoleAgentOwner))

	w := serve(t, router, "GET", "/orgs/"+org, "staff", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(t, router, "GET", "/orgs/"+org, "outsider", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(t, router, "PUT", "/orgs/"+org+"/subscription", "staff", map[string]int{"max_users": 50})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(t, router, "PUT", "/orgs/"+org+"/subscription", "owner", map[string]int{"max_users": 50})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = serve(t, router, "GET", "/orgs/"+org+"/limits", "staff", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report LimitsReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 50, report.Limits.MaxUsers)
	assert.Equal(t, 2, report.Usage.ActiveMembers)
}

func TestHandlers_Members(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	org := seedOrg(t, f, 2)
	f.seed.User("staff", string(rbac.RoleAgentStaff))
	f.seed.User("late", string(rbac.RoleAgentStaff))

	w := serve(t, router, "POST", "/orgs/"+org+"/members", "owner", map[string]string{"user_id": "staff"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = serve(t, router, "POST", "/orgs/"+org+"/members", "owner", map[string]string{"user_id": "late"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = serve(t, router, "GET", "/orgs/"+org+"/members", "staff", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var members []rbac.Member
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &members))
	assert.Len(t, members, 2)

	w = serve(t, router, "PUT", "/orgs/"+org+"/members/staff/status", "staff", map[string]string{"status": "inactive"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(t, router, "PUT", "/orgs/"+org+"/members/staff/status", "owner", map[string]string{"status": "inactive"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// inactive members lose access
	w = serve(t, router, "GET", "/orgs/"+org+"/members", "staff", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	team := f.seed.Team("team-1", org)
	w = serve(t, router, "PUT", "/orgs/"+org+"/members/staff/team", "owner", map[string]string{"team_id": team})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(t, router, "PUT", "/orgs/"+org+"/members/ghost/team", "owner", map[string]interface{}{"team_id": nil})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_Invitations(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	org := seedOrg(t, f, 2)
	f.seed.User("newcomer", string(rbac.RoleAgentStaff))

	w := serve(t, router, "POST", "/orgs/"+org+"/invitations", "owner", map[string]string{"email": "new@example.com"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var invitation Invitation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invitation))
	require.NotEmpty(t, invitation.Token)

	// one active member and one pending invitation fill both seats
	w = serve(t, router, "POST", "/orgs/"+org+"/invitations", "owner", map[string]string{"email": "extra@example.com"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var errResp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "quota_exceeded", errResp.Error)

	w = serve(t, router, "GET", "/orgs/"+org+"/invitations", "owner", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []Invitation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].Token)

	w = serve(t, router, "POST", "/invitations/accept", "newcomer", map[string]string{"token": invitation.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// staff may not manage invitations
	w = serve(t, router, "GET", "/orgs/"+org+"/invitations", "newcomer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(t, router, "POST", "/invitations/accept", "newcomer", map[string]string{"token": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_RevokeInvitation(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)
	org := seedOrg(t, f, 3)

	w := serve(t, router, "POST", "/orgs/"+org+"/invitations", "owner", map[string]string{"email": "x@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	var invitation Invitation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invitation))

	w = serve(t, router, "DELETE", "/orgs/"+org+"/invitations/"+invitation.ID, "owner", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(t, router, "DELETE", "/orgs/"+org+"/invitations/"+invitation.ID, "owner", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
