package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leasehold/leasehold/pkg/audit"
	"github.com/leasehold/leasehold/pkg/rbac"
)

func seedOrg(t *testing.T, f *fixture, maxUsers int) string {
	t.Helper()
	owner := f.seed.User("owner", string(rbac.RoleAgentOwner))
	org := f.seed.Organization("org-1", owner, maxUsers, 10)
	f.seed.Member(org, owner, string(rbac.OrgRoleOwner), string(rbac.MemberStatusActive), "")
	return org
}

func TestAddMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := seedOrg(t, f, 3)
	staff := f.seed.User("staff", string(rbac.RoleAgentStaff))
	team := f.seed.Team("team-1", org)

	member, err := f.service.AddMember(ctx, org, &AddMemberRequest{UserID: staff, TeamID: &team})
	require.NoError(t, err)
	assert.Equal(t, rbac.OrgRoleMember, member.Role)
	assert.Equal(t, rbac.MemberStatusActive, member.Status)
	require.True(t, member.HasTeam())
	assert.Equal(t, team, *member.TeamID)

	assert.Equal(t, []string{org}, f.invalidator.Calls())
	assert.Equal(t, []audit.EventType{audit.EventTypeMemberAdded}, f.audit.Types())

	_, err = f.service.AddMember(ctx, org, &AddMemberRequest{UserID: staff})
	assert.ErrorIs(t, err, ErrValidation, "duplicate membership")
}

func TestAddMember_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := seedOrg(t, f, 5)
	staff := f.seed.User("staff", string(rbac.RoleAgentStaff))
	other := f.seed.Organization("org-2", staff, 3, 3)
	foreignTeam := f.seed.Team("team-x", other)

	_, err := f.service.AddMember(ctx, org, &AddMemberRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.AddMember(ctx, org, &AddMemberRequest{UserID: staff, Role: "superuser"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.AddMember(ctx, org, &AddMemberRequest{UserID: "ghost"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.AddMember(ctx, org, &AddMemberRequest{UserID: staff, TeamID: &foreignTeam})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, f.invalidator.Calls())
}

func TestAddMember_UserLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := seedOrg(t, f, 2)
	f.seed.Invitation(org, "pending@example.com", string(InvitationPending), f.seed.Now.Add(time.Hour))
	staff := f.seed.User("staff", string(rbac.RoleAgentStaff))

	_, err := f.service.AddMember(ctx, org, &AddMemberRequest{UserID: staff})
	assert.True(t, IsLimitExceeded(err))

	_, err = f.service.GetMember(ctx, org, staff)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMemberStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := seedOrg(t, f, 2)
	staff := f.seed.User("staff", string(rbac.RoleAgentStaff))
	f.seed.Member(org, staff, string(rbac.OrgRoleMember), string(rbac.MemberStatusActive), "")

	require.NoError(t, f.service.UpdateMemberStatus(ctx, org, staff, rbac.MemberStatusInactive))
	member, err := f.service.GetMember(ctx, org, staff)
	require.NoError(t, err)
	assert.Equal(t, rbac.MemberStatusInactive, member.Status)

	// the freed seat goes to someone else, so reactivation is refused
	other := f.seed.User("other", string(rbac.RoleAgentStaff))
	_, err = f.service.AddMember(ctx, org, &AddMemberRequest{UserID: other})
	require.NoError(t, err)

	err = f.service.UpdateMemberStatus(ctx, org, staff, rbac.MemberStatusActive)
	assert.True(t, IsLimitExceeded(err))

	assert.ErrorIs(t, f.service.UpdateMemberStatus(ctx, org, staff, "banned"), ErrValidation)
	assert.ErrorIs(t, f.service.UpdateMemberStatus(ctx, org, "ghost", rbac.MemberStatusInactive), ErrNotFound)

	assert.Equal(t, []string{org, org}, f.invalidator.Calls())
}

func TestUpdateMemberTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := seedOrg(t, f, 3)
	staff := f.seed.User("staff", string(rbac.RoleAgentStaff))
	f.seed.Member(org, staff, string(rbac.OrgRoleMember), string(rbac.MemberStatusActive), "")
	team := f.seed.Team("team-1", org)

	require.NoError(t, f.service.UpdateMemberTeam(ctx, org, staff, &team))
	member, err := f.service.GetMember(ctx, org, staff)
	require.NoError(t, err)
	require.True(t, member.HasTeam())

	require.NoError(t, f.service.UpdateMemberTeam(ctx, org, staff, nil))
	member, err = f.service.GetMember(ctx, org, staff)
	require.NoError(t, err)
	assert.False(t, member.HasTeam())

	missing := "team-missing"
	assert.ErrorIs(t, f.service.UpdateMemberTeam(ctx, org, staff, &missing), ErrValidation)
	assert.Len(t, f.invalidator.Calls(), 2)
}

func TestListMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := seedOrg(t, f, 3)
	staff := f.seed.User("staff", string(rbac.RoleAgentStaff))
	f.seed.Member(org, staff, string(rbac.OrgRoleMember), string(rbac.MemberStatusPending), "")

	members, err := f.service.ListMembers(ctx, org)
	require.NoError(t, err)
	require.Len(t, members, 2)

	empty, err := f.service.ListMembers(ctx, "org-none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
