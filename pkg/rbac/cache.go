package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores decisions keyed by the full permission check and an
// organization generation. InvalidateOrganization moves the organization to a
// new generation, which makes every decision cached under an older one
// unreachable. Callers read the generation before evaluating a check and
// write the result under that same generation, so a check that raced with an
// invalidation stores into a keyspace nobody reads.
type Cache interface {
	Generation(ctx context.Context, organizationID string) (uint64, error)
	Get(ctx context.Context, check PermissionCheck, generation uint64) (allowed bool, found bool, err error)
	Set(ctx context.Context, check PermissionCheck, generation uint64, allowed bool, ttl time.Duration) error
	InvalidateOrganization(ctx context.Context, organizationID string) error
	// Name labels cache metrics
	Name() string
}

func decisionKey(check PermissionCheck, generation uint64) string {
	return strings.Join([]string{
		check.OrganizationID,
		strconv.FormatUint(generation, 10),
		check.UserID,
		string(check.Resource),
		string(check.Action),
		check.ResourceID,
	}, "|")
}

type memoryEntry struct {
	allowed   bool
	expiresAt time.Time
}

// MemoryCache is a process-local decision cache. maxTTL bounds every entry;
// shorter per-entry TTLs passed to Set are honoured as well.
//
// Generations come from one process-wide sequence. Organizations that were
// never invalidated, or whose generation was dropped from the bounded
// generation table, share the floor generation. Dropping any generation
// advances the floor, so a forgotten organization never falls back to a
// value it has used before.
type MemoryCache struct {
	entries     *lru.LRU[string, memoryEntry]
	generations *lru.LRU[string, uint64]

	seq   atomic.Uint64
	floor atomic.Uint64
	now   func() time.Time
}

// NewMemoryCache creates a memory cache holding at most size decisions and
// the generations of at most size organizations
func NewMemoryCache(size int, maxTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	c := &MemoryCache{
		entries: lru.NewLRU[string, memoryEntry](size, nil, maxTTL),
		now:     time.Now,
	}
	c.generations = lru.NewLRU[string, uint64](size, func(string, uint64) {
		c.floor.Store(c.seq.Add(1))
	}, maxTTL)
	return c
}

// Generation returns the current generation of an organization
func (c *MemoryCache) Generation(ctx context.Context, organizationID string) (uint64, error) {
	if gen, ok := c.generations.Get(organizationID); ok {
		return gen, nil
	}
	return c.floor.Load(), nil
}

// Get returns a decision cached under generation
func (c *MemoryCache) Get(ctx context.Context, check PermissionCheck, generation uint64) (bool, bool, error) {
	key := decisionKey(check, generation)
	entry, ok := c.entries.Get(key)
	if !ok {
		return false, false, nil
	}
	if c.now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return false, false, nil
	}
	return entry.allowed, true, nil
}

// Set stores a decision under generation for ttl
func (c *MemoryCache) Set(ctx context.Context, check PermissionCheck, generation uint64, allowed bool, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.entries.Add(decisionKey(check, generation), memoryEntry{allowed: allowed, expiresAt: c.now().Add(ttl)})
	return nil
}

// InvalidateOrganization moves the organization to a fresh generation.
// Stale entries age out of the LRU.
func (c *MemoryCache) InvalidateOrganization(ctx context.Context, organizationID string) error {
	c.generations.Add(organizationID, c.seq.Add(1))
	return nil
}

// Len returns the number of stored entries, including unreachable ones
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

func (c *MemoryCache) Name() string { return "memory" }

// RedisCache shares decisions between replicas. Each organization has a
// generation counter; invalidation is a single INCR.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a Redis-backed decision cache
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "leasehold:authz:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) generationKey(organizationID string) string {
	return c.prefix + "gen:" + organizationID
}

// Generation returns the current generation of an organization
func (c *RedisCache) Generation(ctx context.Context, organizationID string) (uint64, error) {
	val, err := c.client.Get(ctx, c.generationKey(organizationID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	gen, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid generation %q: %w", val, err)
	}
	return gen, nil
}

// Get returns a decision cached under generation
func (c *RedisCache) Get(ctx context.Context, check PermissionCheck, generation uint64) (bool, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+"d:"+decisionKey(check, generation)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("redis get failed: %w", err)
	}

	return val == "1", true, nil
}

// Set stores a decision under generation for ttl
func (c *RedisCache) Set(ctx context.Context, check PermissionCheck, generation uint64, allowed bool, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	val := "0"
	if allowed {
		val = "1"
	}
	if err := c.client.Set(ctx, c.prefix+"d:"+decisionKey(check, generation), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateOrganization bumps the organization generation
func (c *RedisCache) InvalidateOrganization(ctx context.Context, organizationID string) error {
	if err := c.client.Incr(ctx, c.generationKey(organizationID)).Err(); err != nil {
		return fmt.Errorf("redis incr generation failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Name() string { return "redis" }
