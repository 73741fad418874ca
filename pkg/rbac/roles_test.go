package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleMatrix_IsComplete(t *testing.T) {
	for _, role := range Roles() {
		perms := GetRolePermissions(role)
		assert.Len(t, perms, len(Resources()), "role %s", role)
		for _, resource := range Resources() {
			actions, ok := perms[resource]
			require.True(t, ok, "role %s missing resource %s", role, resource)
			assert.Len(t, actions, len(Actions()), "role %s resource %s", role, resource)
		}
	}
}

func TestGetRolePermissions_UnknownRole(t *testing.T) {
	perms := GetRolePermissions(Role("landlord"))
	assert.NotNil(t, perms)
	assert.Empty(t, perms)
	assert.False(t, RoleAllows(Role("landlord"), ResourceProperty, ActionRead))
}

func TestGetRolePermissions_ReturnsCopy(t *testing.T) {
	perms := GetRolePermissions(RoleTenantUser)
	perms[ResourceProperty][ActionDelete] = true

	assert.False(t, RoleAllows(RoleTenantUser, ResourceProperty, ActionDelete))
	assert.False(t, GetRolePermissions(RoleTenantUser)[ResourceProperty][ActionDelete])
}

func TestRoleAllows(t *testing.T) {
	tests := []struct {
		role     Role
		resource Resource
		action   Action
		want     bool
	}{
		{RoleAdmin, ResourceOrganization, ActionDelete, true},
		{RoleAgentOwner, ResourceInvitation, ActionCreate, true},
		{RoleAgentOwner, ResourceOrganization, ActionDelete, false},
		{RoleAgentStaff, ResourceLease, ActionUpdate, true},
		{RoleAgentStaff, ResourceLease, ActionDelete, false},
		{RoleAgentStaff, ResourceInvitation, ActionCreate, false},
		{RoleCaretaker, ResourceLease, ActionRead, false},
		{RoleCaretaker, ResourceMaintenance, ActionUpdate, true},
		{RolePropertyOwner, ResourceProperty, ActionUpdate, false},
		{RoleTenantUser, ResourcePayment, ActionCreate, true},
		{RoleTenantUser, ResourceReport, ActionRead, false},
		{RoleAgentStaff, ResourceLease, Action("approve"), false},
		{RoleAgentStaff, Resource("vehicle"), ActionRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.resource)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, RoleAllows(tt.role, tt.resource, tt.action))
		})
	}
}

func TestValidateRole(t *testing.T) {
	role, err := ValidateRole(" agent_staff ")
	require.NoError(t, err)
	assert.Equal(t, RoleAgentStaff, role)

	_, err = ValidateRole("agent-staff")
	assert.ErrorIs(t, err, ErrValidation)
}

type stubRoleLister struct {
	roles []string
	err   error
}

func (s stubRoleLister) DistinctUserRoles(ctx context.Context) ([]string, error) {
	return s.roles, s.err
}

func TestValidateStoredRoles(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, ValidateStoredRoles(ctx, stubRoleLister{roles: []string{"admin", "tenant_user"}}))

	err := ValidateStoredRoles(ctx, stubRoleLister{roles: []string{"admin", "tennant_user"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "tennant_user")

	err = ValidateStoredRoles(ctx, stubRoleLister{err: errors.New("connection refused")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list user roles")
}

func TestIsValidResourceAndAction(t *testing.T) {
	assert.True(t, IsValidResource(ResourceMaintenance))
	assert.False(t, IsValidResource(Resource("garage")))
	assert.True(t, IsValidAction(ActionDelete))
	assert.False(t, IsValidAction(Action("publish")))
}
