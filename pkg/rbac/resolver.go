package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/leasehold/leasehold/pkg/observability"
)

// DecisionStore is the read side the resolver needs. *Store implements it.
type DecisionStore interface {
	GetMember(ctx context.Context, userID, organizationID string) (*Member, error)
	IsPropertyInTeam(ctx context.Context, teamID, propertyID string) (bool, error)
	HasGrant(ctx context.Context, teamID string, resource Resource, resourceID string, action Action) (bool, error)
	PropertiesFor(ctx context.Context, resource Resource, resourceID string) ([]string, error)
}

// Resolver answers permission checks. It never writes state.
type Resolver struct {
	store       DecisionStore
	cache       Cache
	cacheTTL    atomic.Int64
	metrics     *observability.Metrics
	logger      *observability.Logger
	parallelism int
	now         func() time.Time
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithCache enables decision caching for ttl. A zero ttl disables it.
func WithCache(cache Cache, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = cache
		r.cacheTTL.Store(int64(ttl))
	}
}

// WithMetrics records decisions in Prometheus
func WithMetrics(metrics *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics }
}

// WithLogger sets the logger used for failed lookups
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithParallelism bounds concurrent checks in FilterAllowed
func WithParallelism(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// NewResolver creates a resolver over store
func NewResolver(store DecisionStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:       store,
		parallelism: 8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return r
}

// SetCacheTTL changes the decision cache TTL at runtime. Zero disables
// caching for new checks.
func (r *Resolver) SetCacheTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	r.cacheTTL.Store(int64(ttl))
}

// CacheTTL returns the current decision cache TTL
func (r *Resolver) CacheTTL() time.Duration {
	return time.Duration(r.cacheTTL.Load())
}

// Invalidate drops every cached decision of an organization. Call it after
// any write to memberships, teams, assignments or grants.
func (r *Resolver) Invalidate(ctx context.Context, organizationID string) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.InvalidateOrganization(ctx, organizationID); err != nil {
		return fmt.Errorf("failed to invalidate decision cache: %w", err)
	}
	return nil
}

// HasPermission reports whether userID may perform action on resource in
// organizationID. An empty resourceID asks about the resource type as a
// whole. A lookup failure returns false together with the error.
func (r *Resolver) HasPermission(ctx context.Context, userID, organizationID string, resource Resource, action Action, resourceID string) (bool, error) {
	decision, err := r.Check(ctx, PermissionCheck{
		UserID:         userID,
		OrganizationID: organizationID,
		Resource:       resource,
		Action:         action,
		ResourceID:     resourceID,
	})
	return decision.Allowed, err
}

// Require returns nil when the check is allowed, an error wrapping
// ErrForbidden when it is denied, and the lookup error when the decision
// could not be made.
func (r *Resolver) Require(ctx context.Context, check PermissionCheck) error {
	decision, err := r.Check(ctx, check)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, check.Permission())
	}
	return nil
}

// FilterAllowed returns the subset of resourceIDs the user may act on, in
// input order. Any lookup failure fails the whole batch.
func (r *Resolver) FilterAllowed(ctx context.Context, userID, organizationID string, resource Resource, action Action, resourceIDs []string) ([]string, error) {
	allowed := make([]bool, len(resourceIDs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.parallelism)

	for i, id := range resourceIDs {
		i, id := i, id
		eg.Go(func() error {
			ok, err := r.HasPermission(egCtx, userID, organizationID, resource, action, id)
			if err != nil {
				return err
			}
			allowed[i] = ok
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	result := make([]string, 0, len(resourceIDs))
	for i, id := range resourceIDs {
		if allowed[i] {
			result = append(result, id)
		}
	}
	return result, nil
}

// Check evaluates a permission check and explains the outcome. The reason
// is for logs and metrics only and must not be shown to the caller.
func (r *Resolver) Check(ctx context.Context, check PermissionCheck) (Decision, error) {
	ctx, span := observability.Tracer().Start(ctx, "rbac.Check",
		trace.WithAttributes(
			attribute.String("authz.organization_id", check.OrganizationID),
			attribute.String("authz.resource", string(check.Resource)),
			attribute.String("authz.action", string(check.Action)),
			attribute.Bool("authz.instance", check.ResourceID != ""),
		),
	)
	defer span.End()

	start := r.now()

	generation, cacheable := r.cacheGeneration(ctx, check)
	decision, cached := r.lookupCache(ctx, check, generation, cacheable)
	var err error
	if !cached {
		var stage string
		decision, stage, err = r.evaluate(ctx, check)
		if err != nil {
			r.metrics.RecordAuthzError(string(check.Resource), stage)
			observability.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
				"resource": string(check.Resource),
				"action":   string(check.Action),
				"stage":    stage,
			}).Warn("Permission lookup failed, denying")
			span.RecordError(err)
			span.SetStatus(codes.Error, "lookup failed")
		} else if cacheable {
			r.storeCache(ctx, check, generation, decision.Allowed)
		}
	}
	decision.CheckedAt = start.UTC()

	span.SetAttributes(
		attribute.Bool("authz.allowed", decision.Allowed),
		attribute.String("authz.reason", string(decision.Reason)),
	)
	r.metrics.RecordDecision(string(check.Resource), string(check.Action), decision.Allowed,
		string(decision.Reason), r.now().Sub(start))

	return decision, err
}

// cacheGeneration reads the organization generation once, before the
// check is evaluated. A decision is only stored under the generation that
// was current when its evaluation started.
func (r *Resolver) cacheGeneration(ctx context.Context, check PermissionCheck) (uint64, bool) {
	if r.cache == nil || r.CacheTTL() <= 0 {
		return 0, false
	}
	generation, err := r.cache.Generation(ctx, check.OrganizationID)
	if err != nil {
		r.logger.WithError(err).Warn("Decision cache read failed")
		return 0, false
	}
	return generation, true
}

func (r *Resolver) lookupCache(ctx context.Context, check PermissionCheck, generation uint64, cacheable bool) (Decision, bool) {
	if !cacheable {
		return Decision{}, false
	}
	allowed, found, err := r.cache.Get(ctx, check, generation)
	if err != nil {
		r.logger.WithError(err).Warn("Decision cache read failed")
		return Decision{}, false
	}
	r.metrics.RecordCacheLookup(r.cache.Name(), found)
	if !found {
		return Decision{}, false
	}
	return Decision{Allowed: allowed, Reason: ReasonCached}, true
}

func (r *Resolver) storeCache(ctx context.Context, check PermissionCheck, generation uint64, allowed bool) {
	ttl := r.CacheTTL()
	if ttl <= 0 {
		return
	}
	if err := r.cache.Set(ctx, check, generation, allowed, ttl); err != nil {
		r.logger.WithError(err).Warn("Decision cache write failed")
	}
}

func deny(reason Reason) Decision { return Decision{Allowed: false, Reason: reason} }

func allow(reason Reason) Decision { return Decision{Allowed: true, Reason: reason} }

// evaluate applies the precedence rules; the first matching rule wins.
// On error the decision is always deny and stage names the failed lookup.
func (r *Resolver) evaluate(ctx context.Context, check PermissionCheck) (Decision, string, error) {
	member, err := r.store.GetMember(ctx, check.UserID, check.OrganizationID)
	if errors.Is(err, ErrNotFound) {
		return deny(ReasonNoMembership), "", nil
	}
	if err != nil {
		return deny(ReasonLookupFailed), "member", err
	}
	if member.Status != MemberStatusActive {
		return deny(ReasonInactiveMember), "", nil
	}

	if member.Role == OrgRoleOwner {
		return allow(ReasonOwnerBypass), "", nil
	}
	if member.UserRole == RoleAdmin {
		return allow(ReasonAdminBypass), "", nil
	}

	// The global user role gates everything below; the org-scoped member
	// role only matters for the owner bypass above.
	if !RoleAllows(member.UserRole, check.Resource, check.Action) {
		return deny(ReasonRoleDenied), "", nil
	}
	if check.ResourceID == "" {
		return allow(ReasonRoleAllowed), "", nil
	}
	if !member.HasTeam() {
		return allow(ReasonNoTeam), "", nil
	}
	teamID := *member.TeamID

	inScope, err := r.inTeamScope(ctx, teamID, check.Resource, check.ResourceID)
	if err != nil {
		return deny(ReasonLookupFailed), "team_scope", err
	}
	if inScope {
		return allow(ReasonTeamProperty), "", nil
	}

	granted, err := r.store.HasGrant(ctx, teamID, check.Resource, check.ResourceID, check.Action)
	if err != nil {
		return deny(ReasonLookupFailed), "grant", err
	}
	if granted {
		return allow(ReasonResourceGrant), "", nil
	}

	return deny(ReasonOutOfTeamScope), "", nil
}

// inTeamScope reports whether the resource hangs off a property assigned
// to the team. Resources outside the property chain are never in scope;
// an unknown resource instance is out of scope rather than an error.
func (r *Resolver) inTeamScope(ctx context.Context, teamID string, resource Resource, resourceID string) (bool, error) {
	if resource == ResourceProperty {
		return r.store.IsPropertyInTeam(ctx, teamID, resourceID)
	}
	if !IsPropertyScoped(resource) {
		return false, nil
	}

	properties, err := r.store.PropertiesFor(ctx, resource, resourceID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, propertyID := range properties {
		ok, err := r.store.IsPropertyInTeam(ctx, teamID, propertyID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// IsPropertyScoped reports whether access to the resource type is narrowed
// by team-property assignment
func IsPropertyScoped(resource Resource) bool {
	switch resource {
	case ResourceProperty, ResourceUnit, ResourceLease, ResourceTenant, ResourceMaintenance:
		return true
	default:
		return false
	}
}
