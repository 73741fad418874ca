package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, ""), mr
}

func cacheCheck(org, resourceID string) PermissionCheck {
	return PermissionCheck{UserID: "u1", OrganizationID: org, Resource: ResourceLease, Action: ActionRead, ResourceID: resourceID}
}

func TestDecisionKey_SeparatesEveryField(t *testing.T) {
	base := cacheCheck("org-1", "l1")
	keys := map[string]bool{decisionKey(base, 0): true}

	variants := []PermissionCheck{
		{UserID: "u2", OrganizationID: "org-1", Resource: ResourceLease, Action: ActionRead, ResourceID: "l1"},
		{UserID: "u1", OrganizationID: "org-2", Resource: ResourceLease, Action: ActionRead, ResourceID: "l1"},
		{UserID: "u1", OrganizationID: "org-1", Resource: ResourceUnit, Action: ActionRead, ResourceID: "l1"},
		{UserID: "u1", OrganizationID: "org-1", Resource: ResourceLease, Action: ActionUpdate, ResourceID: "l1"},
		{UserID: "u1", OrganizationID: "org-1", Resource: ResourceLease, Action: ActionRead, ResourceID: ""},
	}
	for _, v := range variants {
		key := decisionKey(v, 0)
		assert.False(t, keys[key], key)
		keys[key] = true
	}
	assert.NotEqual(t, decisionKey(base, 0), decisionKey(base, 1))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, time.Minute)
	check := cacheCheck("org-1", "l1")

	_, found, err := cache.Get(ctx, check, 0)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, check, 0, true, time.Minute))
	allowed, found, err := cache.Get(ctx, check, 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, allowed)

	require.NoError(t, cache.Set(ctx, cacheCheck("org-1", "l2"), 0, false, time.Minute))
	allowed, found, err = cache.Get(ctx, cacheCheck("org-1", "l2"), 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, allowed, "denials are cached too")

	require.NoError(t, cache.Set(ctx, cacheCheck("org-1", "l3"), 0, true, 0))
	_, found, _ = cache.Get(ctx, cacheCheck("org-1", "l3"), 0)
	assert.False(t, found, "zero ttl is not stored")
}

func TestMemoryCache_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, time.Hour)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	check := cacheCheck("org-1", "l1")
	require.NoError(t, cache.Set(ctx, check, 0, true, 10*time.Second))

	now = now.Add(5 * time.Second)
	_, found, _ := cache.Get(ctx, check, 0)
	assert.True(t, found)

	now = now.Add(6 * time.Second)
	_, found, _ = cache.Get(ctx, check, 0)
	assert.False(t, found)
	assert.Zero(t, cache.Len())
}

func TestMemoryCache_InvalidateOrganization(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(10, time.Minute)

	require.NoError(t, cache.Set(ctx, cacheCheck("org-1", "l1"), 0, true, time.Minute))
	require.NoError(t, cache.Set(ctx, cacheCheck("org-2", "l1"), 0, true, time.Minute))

	require.NoError(t, cache.InvalidateOrganization(ctx, "org-1"))

	gen, err := cache.Generation(ctx, "org-1")
	require.NoError(t, err)
	assert.NotZero(t, gen)
	_, found, _ := cache.Get(ctx, cacheCheck("org-1", "l1"), gen)
	assert.False(t, found)

	gen, err = cache.Generation(ctx, "org-2")
	require.NoError(t, err)
	assert.Zero(t, gen)
	_, found, _ = cache.Get(ctx, cacheCheck("org-2", "l1"), gen)
	assert.True(t, found, "other organizations are untouched")

	// a write computed under the old generation stays unreachable
	require.NoError(t, cache.Set(ctx, cacheCheck("org-1", "l1"), 0, true, time.Minute))
	gen, _ = cache.Generation(ctx, "org-1")
	_, found, _ = cache.Get(ctx, cacheCheck("org-1", "l1"), gen)
	assert.False(t, found)
}

func TestMemoryCache_GenerationTableIsBounded(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(2, time.Minute)

	require.NoError(t, cache.InvalidateOrganization(ctx, "org-1"))
	gen1, _ := cache.Generation(ctx, "org-1")
	require.NoError(t, cache.Set(ctx, cacheCheck("org-1", "l1"), gen1, true, time.Minute))

	require.NoError(t, cache.InvalidateOrganization(ctx, "org-2"))
	require.NoError(t, cache.InvalidateOrganization(ctx, "org-3"))
	assert.Equal(t, 2, cache.generations.Len())

	// org-1 was forgotten and moves to a floor it has never used
	after, err := cache.Generation(ctx, "org-1")
	require.NoError(t, err)
	assert.NotEqual(t, gen1, after)
	assert.NotZero(t, after)

	_, found, _ := cache.Get(ctx, cacheCheck("org-1", "l1"), after)
	assert.False(t, found)

	// organizations that were never invalidated share the floor
	never, _ := cache.Generation(ctx, "org-9")
	assert.Equal(t, after, never)
}

func TestMemoryCache_Eviction(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(2, time.Minute)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Set(ctx, cacheCheck("org-1", id), 0, true, time.Minute))
	}
	assert.Equal(t, 2, cache.Len())
	_, found, _ := cache.Get(ctx, cacheCheck("org-1", "a"), 0)
	assert.False(t, found)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)
	check := cacheCheck("org-1", "l1")

	_, found, err := cache.Get(ctx, check, 0)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, check, 0, true, 30*time.Second))
	require.NoError(t, cache.Set(ctx, cacheCheck("org-1", "l2"), 0, false, 30*time.Second))

	allowed, found, err := cache.Get(ctx, check, 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, allowed)

	allowed, found, err = cache.Get(ctx, cacheCheck("org-1", "l2"), 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, allowed)

	mr.FastForward(31 * time.Second)
	_, found, err = cache.Get(ctx, check, 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_InvalidateOrganization(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)

	require.NoError(t, cache.Set(ctx, cacheCheck("org-1", "l1"), 0, true, time.Minute))
	require.NoError(t, cache.Set(ctx, cacheCheck("org-2", "l1"), 0, true, time.Minute))

	require.NoError(t, cache.InvalidateOrganization(ctx, "org-1"))
	stored, err := mr.Get("leasehold:authz:gen:org-1")
	require.NoError(t, err)
	assert.Equal(t, "1", stored)

	gen, err := cache.Generation(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	_, found, err := cache.Get(ctx, cacheCheck("org-1", "l1"), gen)
	require.NoError(t, err)
	assert.False(t, found)

	// a write computed under the old generation stays unreachable
	require.NoError(t, cache.Set(ctx, cacheCheck("org-1", "l1"), 0, true, time.Minute))
	_, found, err = cache.Get(ctx, cacheCheck("org-1", "l1"), gen)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = cache.Get(ctx, cacheCheck("org-2", "l1"), 0)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRedisCache_CorruptGeneration(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestRedisCache(t)
	require.NoError(t, mr.Set("leasehold:authz:gen:org-1", "not-a-number"))

	_, err := cache.Generation(ctx, "org-1")
	assert.Error(t, err)
}

func TestResolver_RedisCacheUnavailable(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	resolver := NewResolver(scopedFixture(), WithCache(cache, time.Minute))
	ctx := context.Background()

	mr.Close()

	// cache errors fall through to the store
	ok, err := resolver.HasPermission(ctx, "staff", testOrg, ResourceUnit, ActionRead, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Error(t, resolver.Invalidate(ctx, testOrg))
}

func TestResolver_RedisCacheSharedBetweenReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	newCache := func() *RedisCache {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return NewRedisCache(client, "test:")
	}
	store := scopedFixture()
	replicaA := NewResolver(store, WithCache(newCache(), time.Minute))
	replicaB := NewResolver(store, WithCache(newCache(), time.Minute))
	ctx := context.Background()
	check := PermissionCheck{UserID: "staff", OrganizationID: testOrg, Resource: ResourceUnit, Action: ActionRead, ResourceID: "u2"}

	decision, err := replicaA.Check(ctx, check)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = replicaB.Check(ctx, check)
	require.NoError(t, err)
	assert.Equal(t, ReasonCached, decision.Reason)

	store.teamProps["team-a|p2"] = true
	require.NoError(t, replicaA.Invalidate(ctx, testOrg))

	decision, err = replicaB.Check(ctx, check)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, ReasonTeamProperty, decision.Reason)
}
