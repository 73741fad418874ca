package orgs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leasehold/leasehold/pkg/audit"
	"github.com/leasehold/leasehold/pkg/observability"
	"github.com/leasehold/leasehold/pkg/rbac"
)

// DefaultInvitationTTL is how long an invitation stays acceptable
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Invalidator drops cached authorization decisions of an organization.
// *rbac.Resolver implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, organizationID string) error
}

// Service manages organizations, memberships, invitations and plan limits
type Service struct {
	db            *sql.DB
	invalidator   Invalidator
	metrics       *observability.Metrics
	auditLogger   audit.Logger
	invitationTTL time.Duration
	now           func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithInvalidator is called after every membership change
func WithInvalidator(invalidator Invalidator) Option {
	return func(s *Service) { s.invalidator = invalidator }
}

// WithMetrics counts limit rejections
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// WithAuditLogger records writes. Without it the logger carried in the
// request context is used.
func WithAuditLogger(logger audit.Logger) Option {
	return func(s *Service) { s.auditLogger = logger }
}

// WithInvitationTTL sets how long new invitations remain valid
func WithInvitationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.invitationTTL = ttl
		}
	}
}

// NewService creates a new organization service
func NewService(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:            db,
		invitationTTL: DefaultInvitationTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrganization creates an organization and makes the agent owner its
// first active member with the owner role
func (s *Service) CreateOrganization(ctx context.Context, req *CreateOrgRequest) (*Organization, error) {
	name := strings.TrimSpace(req.Name)
	ownerID := strings.TrimSpace(req.AgentOwnerID)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: agent_owner_id is required", ErrValidation)
	}

	tier := req.PlanTier
	if tier == "" {
		tier = PlanStarter
	}
	if !IsValidPlanTier(tier) {
		return nil, fmt.Errorf("%w: unknown plan tier %q", ErrValidation, tier)
	}
	limits := DefaultLimits(tier)
	now := s.now().UTC()

	org := &Organization{
		ID:                 uuid.NewString(),
		Name:               name,
		AgentOwnerID:       ownerID,
		PlanTier:           tier,
		MaxProperties:      limits.MaxProperties,
		MaxUsers:           limits.MaxUsers,
		SubscriptionStatus: SubscriptionTrialing,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := userExists(ctx, tx, ownerID); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, agent_owner_id, plan_tier, max_properties, max_users,
		                           subscription_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, org.ID, org.Name, org.AgentOwnerID, string(org.PlanTier), org.MaxProperties, org.MaxUsers,
		string(org.SubscriptionStatus), org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO members (id, organization_id, user_id, role, team_id, status, created_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6)
	`, uuid.NewString(), org.ID, ownerID, string(rbac.OrgRoleOwner), string(rbac.MemberStatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit organization: %w", err)
	}

	s.recordAudit(ctx, &audit.Event{
		OrganizationID: org.ID,
		Type:           audit.EventTypeOrganizationCreated,
		ResourceType:   string(rbac.ResourceOrganization),
		ResourceID:     org.ID,
		Metadata:       map[string]interface{}{"plan_tier": string(org.PlanTier)},
	})

	return org, nil
}

// GetOrganization retrieves an organization by ID
func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, name, agent_owner_id, plan_tier, max_properties, max_users,
		       subscription_status, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	org := &Organization{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.AgentOwnerID, &org.PlanTier, &org.MaxProperties, &org.MaxUsers,
		&org.SubscriptionStatus, &org.CreatedAt, &org.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: organization %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// UpdateSubscription changes the plan of an organization. Changing the tier
// without explicit limits resets the limits to the tier defaults. Lowering a
// limit below current usage only blocks further growth.
func (s *Service) UpdateSubscription(ctx context.Context, id string, req *UpdateSubscriptionRequest) (*Organization, error) {
	if req.PlanTier != "" && !IsValidPlanTier(req.PlanTier) {
		return nil, fmt.Errorf("%w: unknown plan tier %q", ErrValidation, req.PlanTier)
	}
	if req.SubscriptionStatus != "" && !IsValidSubscriptionStatus(req.SubscriptionStatus) {
		return nil, fmt.Errorf("%w: unknown subscription status %q", ErrValidation, req.SubscriptionStatus)
	}
	if req.MaxProperties < 0 || req.MaxUsers < 0 {
		return nil, fmt.Errorf("%w: limits must not be negative", ErrValidation)
	}

	org, err := s.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.PlanTier != "" && req.PlanTier != org.PlanTier {
		org.PlanTier = req.PlanTier
		limits := DefaultLimits(req.PlanTier)
		org.MaxProperties = limits.MaxProperties
		org.MaxUsers = limits.MaxUsers
	}
	if req.SubscriptionStatus != "" {
		org.SubscriptionStatus = req.SubscriptionStatus
	}
	if req.MaxProperties > 0 {
		org.MaxProperties = req.MaxProperties
	}
	if req.MaxUsers > 0 {
		org.MaxUsers = req.MaxUsers
	}
	org.UpdatedAt = s.now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE organizations
		SET plan_tier = $1, max_properties = $2, max_users = $3, subscription_status = $4, updated_at = $5
		WHERE id = $6
	`, string(org.PlanTier), org.MaxProperties, org.MaxUsers, string(org.SubscriptionStatus), org.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: organization %s", ErrNotFound, id)
	}

	s.recordAudit(ctx, &audit.Event{
		OrganizationID: id,
		Type:           audit.EventTypeSubscriptionUpdated,
		ResourceType:   string(rbac.ResourceOrganization),
		ResourceID:     id,
		Metadata: map[string]interface{}{
			"plan_tier":           string(org.PlanTier),
			"subscription_status": string(org.SubscriptionStatus),
			"max_properties":      org.MaxProperties,
			"max_users":           org.MaxUsers,
		},
	})

	return org, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func userExists(ctx context.Context, q queryer, userID string) error {
	var found int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, userID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: unknown user %s", ErrValidation, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	return nil
}

func teamInOrganization(ctx context.Context, q queryer, teamID, organizationID string) error {
	var teamOrg string
	err := q.QueryRowContext(ctx, `SELECT organization_id FROM teams WHERE id = $1`, teamID).Scan(&teamOrg)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: unknown team %s", ErrValidation, teamID)
	}
	if err != nil {
		return fmt.Errorf("failed to get team: %w", err)
	}
	if teamOrg != organizationID {
		return fmt.Errorf("%w: team %s does not belong to organization %s", ErrValidation, teamID, organizationID)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, organizationID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, organizationID); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("organization_id", organizationID).
			Warn("Failed to invalidate authorization cache")
	}
}

func (s *Service) recordAudit(ctx context.Context, event *audit.Event) {
	logger := s.auditLogger
	if logger == nil {
		logger = audit.FromContext(ctx)
	}
	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("event_type", string(event.Type)).
			Warn("Failed to record audit event")
	}
}

// generateToken generates a random invitation token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func optionalID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
