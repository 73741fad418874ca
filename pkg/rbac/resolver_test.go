package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leasehold/leasehold/pkg/apperrors"
	"github.com/leasehold/leasehold/pkg/observability"
)

type fakeStore struct {
	mu sync.Mutex

	members    map[string]*Member  // userID|orgID
	teamProps  map[string]bool     // teamID|propertyID
	grants     map[string]bool     // teamID|resource|id|action
	chain      map[string][]string // resource|id
	memberErr  error
	scopeErr   error
	grantErr   error
	chainErr   error
	grantCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:   make(map[string]*Member),
		teamProps: make(map[string]bool),
		grants:    make(map[string]bool),
		chain:     make(map[string][]string),
	}
}

func (f *fakeStore) addMember(userID, orgID string, role OrgRole, userRole Role, status MemberStatus, teamID string) {
	m := &Member{UserID: userID, OrganizationID: orgID, Role: role, UserRole: userRole, Status: status}
	if teamID != "" {
		m.TeamID = &teamID
	}
	f.members[userID+"|"+orgID] = m
}

func (f *fakeStore) GetMember(ctx context.Context, userID, organizationID string) (*Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	m, ok := f.members[userID+"|"+organizationID]
	if !ok {
		return nil, fmt.Errorf("%w: member", ErrNotFound)
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) IsPropertyInTeam(ctx context.Context, teamID, propertyID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scopeErr != nil {
		return false, f.scopeErr
	}
	return f.teamProps[teamID+"|"+propertyID], nil
}

func (f *fakeStore) HasGrant(ctx context.Context, teamID string, resource Resource, resourceID string, action Action) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grantCalls++
	if f.grantErr != nil {
		return false, f.grantErr
	}
	return f.grants[fmt.Sprintf("%s|%s|%s|%s", teamID, resource, resourceID, action)], nil
}

func (f *fakeStore) PropertiesFor(ctx context.Context, resource Resource, resourceID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	props, ok := f.chain[string(resource)+"|"+resourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, resource, resourceID)
	}
	return props, nil
}

const testOrg = "org-1"

// scopedFixture has a staff member on team-a which holds property p1.
// p2 belongs to the organization but not to the team.
func scopedFixture() *fakeStore {
	f := newFakeStore()
	f.addMember("staff", testOrg, OrgRoleMember, RoleAgentStaff, MemberStatusActive, "team-a")
	f.addMember("free", testOrg, OrgRoleMember, RoleAgentStaff, MemberStatusActive, "")
	f.addMember("owner", testOrg, OrgRoleOwner, RoleTenantUser, MemberStatusActive, "team-a")
	f.addMember("admin", testOrg, OrgRoleMember, RoleAdmin, MemberStatusActive, "team-a")
	f.addMember("caretaker", testOrg, OrgRoleMember, RoleCaretaker, MemberStatusActive, "team-a")
	f.addMember("left", testOrg, OrgRoleMember, RoleAgentStaff, MemberStatusInactive, "")
	f.addMember("invited", testOrg, OrgRoleMember, RoleAgentStaff, MemberStatusPending, "")

	f.teamProps["team-a|p1"] = true
	f.chain["property|p1"] = []string{"p1"}
	f.chain["property|p2"] = []string{"p2"}
	f.chain["unit|u1"] = []string{"p1"}
	f.chain["unit|u2"] = []string{"p2"}
	f.chain["lease|l1"] = []string{"p1"}
	f.chain["lease|l2"] = []string{"p2"}
	f.chain["maintenance|m1"] = []string{"p1"}
	f.chain["maintenance|m2"] = []string{"p2"}
	f.chain["maintenance|m-orphan"] = nil
	f.chain["tenant|t-both"] = []string{"p1", "p2"}
	f.chain["tenant|t2"] = []string{"p2"}
	f.chain["tenant|t-none"] = nil
	return f
}

func TestResolver_DecisionOrder(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		org        string
		resource   Resource
		action     Action
		resourceID string
		allowed    bool
		reason     Reason
	}{
		{"no membership", "stranger", testOrg, ResourceProperty, ActionRead, "", false, ReasonNoMembership},
		{"membership in other org", "staff", "org-2", ResourceProperty, ActionRead, "p1", false, ReasonNoMembership},
		{"inactive member", "left", testOrg, ResourceProperty, ActionRead, "", false, ReasonInactiveMember},
		{"pending member", "invited", testOrg, ResourceProperty, ActionRead, "", false, ReasonInactiveMember},
		{"owner bypasses role table", "owner", testOrg, ResourceOrganization, ActionDelete, "", true, ReasonOwnerBypass},
		{"owner bypasses team scope", "owner", testOrg, ResourceProperty, ActionUpdate, "p2", true, ReasonOwnerBypass},
		{"admin bypasses team scope", "admin", testOrg, ResourceLease, ActionDelete, "l2", true, ReasonAdminBypass},
		{"role denies", "staff", testOrg, ResourceProperty, ActionDelete, "p1", false, ReasonRoleDenied},
		{"role denies before scope", "caretaker", testOrg, ResourceLease, ActionRead, "l1", false, ReasonRoleDenied},
		{"type level check", "staff", testOrg, ResourceProperty, ActionCreate, "", true, ReasonRoleAllowed},
		{"no team sees everything", "free", testOrg, ResourceProperty, ActionUpdate, "p2", true, ReasonNoTeam},
		{"assigned property", "staff", testOrg, ResourceProperty, ActionUpdate, "p1", true, ReasonTeamProperty},
		{"unassigned property", "staff", testOrg, ResourceProperty, ActionUpdate, "p2", false, ReasonOutOfTeamScope},
		{"unit on assigned property", "staff", testOrg, ResourceUnit, ActionRead, "u1", true, ReasonTeamProperty},
		{"unit elsewhere", "staff", testOrg, ResourceUnit, ActionRead, "u2", false, ReasonOutOfTeamScope},
		{"lease on assigned property", "staff", testOrg, ResourceLease, ActionUpdate, "l1", true, ReasonTeamProperty},
		{"lease elsewhere", "staff", testOrg, ResourceLease, ActionUpdate, "l2", false, ReasonOutOfTeamScope},
		{"maintenance in scope", "caretaker", testOrg, ResourceMaintenance, ActionUpdate, "m1", true, ReasonTeamProperty},
		{"maintenance elsewhere", "caretaker", testOrg, ResourceMaintenance, ActionUpdate, "m2", false, ReasonOutOfTeamScope},
		{"maintenance without property", "staff", testOrg, ResourceMaintenance, ActionRead, "m-orphan", false, ReasonOutOfTeamScope},
		{"tenant with any lease in scope", "staff", testOrg, ResourceTenant, ActionRead, "t-both", true, ReasonTeamProperty},
		{"tenant out of scope", "staff", testOrg, ResourceTenant, ActionRead, "t2", false, ReasonOutOfTeamScope},
		{"tenant without leases", "staff", testOrg, ResourceTenant, ActionRead, "t-none", false, ReasonOutOfTeamScope},
		{"unknown instance", "staff", testOrg, ResourceUnit, ActionRead, "u-missing", false, ReasonOutOfTeamScope},
		{"unscoped resource instance", "staff", testOrg, ResourcePayment, ActionRead, "pay-1", false, ReasonOutOfTeamScope},
		{"unknown role action", "staff", testOrg, ResourceProperty, Action("publish"), "", false, ReasonRoleDenied},
	}

	resolver := NewResolver(scopedFixture())
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := resolver.Check(ctx, PermissionCheck{
				UserID:         tt.userID,
				OrganizationID: tt.org,
				Resource:       tt.resource,
				Action:         tt.action,
				ResourceID:     tt.resourceID,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, decision.Allowed)
			assert.Equal(t, tt.reason, decision.Reason)
			assert.False(t, decision.CheckedAt.IsZero())
		})
	}
}

func TestResolver_GrantExtendsTeamScope(t *testing.T) {
	store := scopedFixture()
	store.grants["team-a|lease|l2|update"] = true
	store.grants["team-a|payment|pay-1|read"] = true
	resolver := NewResolver(store)
	ctx := context.Background()

	decision, err := resolver.Check(ctx, PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceLease, Action: ActionUpdate, ResourceID: "l2"})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonResourceGrant, decision.Reason)

	// the grant is per action
	ok, err := resolver.HasPermission(ctx, "staff", testOrg, ResourceLease, ActionRead, "l2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = resolver.HasPermission(ctx, "staff", testOrg, ResourcePayment, ActionRead, "pay-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_GrantDoesNotOverrideRoleTable(t *testing.T) {
	store := scopedFixture()
	store.grants["team-a|property|p1|delete"] = true
	resolver := NewResolver(store)

	decision, err := resolver.Check(context.Background(), PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceProperty, Action: ActionDelete, ResourceID: "p1"})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonRoleDenied, decision.Reason)
	assert.Zero(t, store.grantCalls)
}

func TestResolver_InScopeSkipsGrantLookup(t *testing.T) {
	store := scopedFixture()
	resolver := NewResolver(store)

	ok, err := resolver.HasPermission(context.Background(), "staff", testOrg, ResourceUnit, ActionUpdate, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, store.grantCalls)
}

func TestResolver_LookupFailuresDeny(t *testing.T) {
	boom := errors.New("connection refused")

	tests := []struct {
		name  string
		setup func(*fakeStore)
		check PermissionCheck
		stage string
	}{
		{
			name:  "member lookup",
			setup: func(f *fakeStore) { f.memberErr = boom },
			check: PermissionCheck{UserID: "owner", OrganizationID: testOrg, Resource: ResourceProperty, Action: ActionRead},
			stage: "member",
		},
		{
			name:  "team property lookup",
			setup: func(f *fakeStore) { f.scopeErr = boom },
			check: PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceProperty, Action: ActionRead, ResourceID: "p1"},
			stage: "team_scope",
		},
		{
			name:  "ownership chain lookup",
			setup: func(f *fakeStore) { f.chainErr = boom },
			check: PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceLease, Action: ActionRead, ResourceID: "l1"},
			stage: "team_scope",
		},
		{
			name:  "grant lookup",
			setup: func(f *fakeStore) { f.grantErr = boom },
			check: PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceLease, Action: ActionRead, ResourceID: "l2"},
			stage: "grant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := scopedFixture()
			tt.setup(store)
			metrics := observability.NewMetrics(prometheus.NewRegistry())
			resolver := NewResolver(store, WithMetrics(metrics))

			decision, err := resolver.Check(context.Background(), tt.check)
			assert.ErrorIs(t, err, boom)
			assert.False(t, decision.Allowed)
			assert.Equal(t, ReasonLookupFailed, decision.Reason)

			ok, err := resolver.HasPermission(context.Background(), tt.check.UserID, tt.check.OrganizationID,
				tt.check.Resource, tt.check.Action, tt.check.ResourceID)
			assert.Error(t, err)
			assert.False(t, ok)

			assert.Equal(t, float64(2), testutil.ToFloat64(
				metrics.AuthzErrorsTotal.WithLabelValues(string(tt.check.Resource), tt.stage)))
		})
	}
}

func TestResolver_Require(t *testing.T) {
	resolver := NewResolver(scopedFixture())
	ctx := context.Background()

	assert.NoError(t, resolver.Require(ctx, PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceUnit, Action: ActionRead, ResourceID: "u1"}))

	err := resolver.Require(ctx, PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceUnit, Action: ActionRead, ResourceID: "u2"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Contains(t, err.Error(), "unit:read")
}

func TestResolver_FilterAllowed(t *testing.T) {
	resolver := NewResolver(scopedFixture(), WithParallelism(2))
	ctx := context.Background()

	allowed, err := resolver.FilterAllowed(ctx, "staff", testOrg, ResourceLease, ActionRead, []string{"l2", "l1", "missing", "l1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l1"}, allowed)

	allowed, err = resolver.FilterAllowed(ctx, "staff", testOrg, ResourceLease, ActionRead, nil)
	require.NoError(t, err)
	assert.Empty(t, allowed)

	store := scopedFixture()
	store.scopeErr = errors.New("timeout")
	_, err = NewResolver(store).FilterAllowed(ctx, "staff", testOrg, ResourceLease, ActionRead, []string{"l1", "l2"})
	assert.Error(t, err)
}

func TestResolver_RecordsDecisionMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	resolver := NewResolver(scopedFixture(), WithMetrics(metrics))
	ctx := context.Background()

	_, err := resolver.HasPermission(ctx, "staff", testOrg, ResourceUnit, ActionRead, "u1")
	require.NoError(t, err)
	_, err = resolver.HasPermission(ctx, "staff", testOrg, ResourceUnit, ActionRead, "u2")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("unit", "read", "allow", string(ReasonTeamProperty))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuthzDecisionsTotal.WithLabelValues("unit", "read", "deny", string(ReasonOutOfTeamScope))))
}

func TestResolver_CachesDecisions(t *testing.T) {
	store := scopedFixture()
	cache := NewMemoryCache(100, time.Minute)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	resolver := NewResolver(store, WithCache(cache, time.Minute), WithMetrics(metrics))
	ctx := context.Background()
	check := PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceLease, Action: ActionUpdate, ResourceID: "l2"}

	first, err := resolver.Check(ctx, check)
	require.NoError(t, err)
	assert.False(t, first.Allowed)

	// a new grant is invisible until the organization is invalidated
	store.grants["team-a|lease|l2|update"] = true
	cached, err := resolver.Check(ctx, check)
	require.NoError(t, err)
	assert.False(t, cached.Allowed)
	assert.Equal(t, ReasonCached, cached.Reason)

	require.NoError(t, resolver.Invalidate(ctx, testOrg))
	fresh, err := resolver.Check(ctx, check)
	require.NoError(t, err)
	assert.True(t, fresh.Allowed)
	assert.Equal(t, ReasonResourceGrant, fresh.Reason)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("memory")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("memory")))
}

// pausingStore answers the first team scope lookup from the current data,
// then holds the answer until release is closed
type pausingStore struct {
	*fakeStore
	once    sync.Once
	paused  chan struct{}
	release chan struct{}
}

func (p *pausingStore) IsPropertyInTeam(ctx context.Context, teamID, propertyID string) (bool, error) {
	ok, err := p.fakeStore.IsPropertyInTeam(ctx, teamID, propertyID)
	p.once.Do(func() {
		close(p.paused)
		<-p.release
	})
	return ok, err
}

func TestResolver_InvalidateDuringCheck(t *testing.T) {
	caches := map[string]func(t *testing.T) Cache{
		"memory": func(t *testing.T) Cache { return NewMemoryCache(100, time.Minute) },
		"redis": func(t *testing.T) Cache {
			cache, _ := newTestRedisCache(t)
			return cache
		},
	}

	for name, newCache := range caches {
		t.Run(name, func(t *testing.T) {
			store := &pausingStore{fakeStore: scopedFixture(), paused: make(chan struct{}), release: make(chan struct{})}
			resolver := NewResolver(store, WithCache(newCache(t), time.Minute))
			ctx := context.Background()

			type result struct {
				allowed bool
				err     error
			}
			done := make(chan result, 1)
			go func() {
				ok, err := resolver.HasPermission(ctx, "staff", testOrg, ResourceUnit, ActionRead, "u2")
				done <- result{ok, err}
			}()

			<-store.paused
			store.mu.Lock()
			store.teamProps["team-a|p2"] = true
			store.mu.Unlock()
			require.NoError(t, resolver.Invalidate(ctx, testOrg))
			close(store.release)

			first := <-done
			require.NoError(t, first.err)
			assert.False(t, first.allowed, "evaluated against the old assignment")

			decision, err := resolver.Check(ctx, PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceUnit, Action: ActionRead, ResourceID: "u2"})
			require.NoError(t, err)
			assert.True(t, decision.Allowed)
			assert.Equal(t, ReasonTeamProperty, decision.Reason)
		})
	}
}

func TestResolver_DoesNotCacheFailures(t *testing.T) {
	store := scopedFixture()
	store.memberErr = errors.New("connection refused")
	cache := NewMemoryCache(100, time.Minute)
	resolver := NewResolver(store, WithCache(cache, time.Minute))
	ctx := context.Background()

	_, err := resolver.HasPermission(ctx, "staff", testOrg, ResourceProperty, ActionRead, "")
	require.Error(t, err)
	assert.Zero(t, cache.Len())

	store.memberErr = nil
	ok, err := resolver.HasPermission(ctx, "staff", testOrg, ResourceProperty, ActionRead, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolver_SetCacheTTL(t *testing.T) {
	store := scopedFixture()
	cache := NewMemoryCache(100, time.Minute)
	resolver := NewResolver(store, WithCache(cache, time.Minute))
	ctx := context.Background()

	resolver.SetCacheTTL(0)
	assert.Zero(t, resolver.CacheTTL())

	_, err := resolver.HasPermission(ctx, "staff", testOrg, ResourceProperty, ActionRead, "p1")
	require.NoError(t, err)
	assert.Zero(t, cache.Len(), "zero ttl disables caching")

	resolver.SetCacheTTL(-time.Second)
	assert.Zero(t, resolver.CacheTTL())

	resolver.SetCacheTTL(30 * time.Second)
	_, err = resolver.HasPermission(ctx, "staff", testOrg, ResourceProperty, ActionRead, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestResolver_InvalidateWithoutCache(t *testing.T) {
	resolver := NewResolver(scopedFixture())
	assert.NoError(t, resolver.Invalidate(context.Background(), testOrg))
}

func TestIsPropertyScoped(t *testing.T) {
	for _, r := range []Resource{ResourceProperty, ResourceUnit, ResourceLease, ResourceTenant, ResourceMaintenance} {
		assert.True(t, IsPropertyScoped(r), r)
	}
	for _, r := range []Resource{ResourcePayment, ResourceDocument, ResourceTeam, ResourceOrganization} {
		assert.False(t, IsPropertyScoped(r), r)
	}
}
