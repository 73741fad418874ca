package rbac

import (
	"context"
	"fmt"
	"strings"
)

// TableVersion identifies the revision of the role matrix below. Bump it
// whenever a cell changes so cached decisions and audit records can be
// correlated with the table that produced them.
const TableVersion = 3

// ActionSet holds one explicit boolean per action.
type ActionSet struct {
	Create bool `json:"create"`
	Read   bool `json:"read"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// Allows reports whether the set contains the action. Unknown actions are
// never allowed.
func (s ActionSet) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return s.Create
	case ActionRead:
		return s.Read
	case ActionUpdate:
		return s.Update
	case ActionDelete:
		return s.Delete
	default:
		return false
	}
}

func (s ActionSet) asMap() map[Action]bool {
	return map[Action]bool{
		ActionCreate: s.Create,
		ActionRead:   s.Read,
		ActionUpdate: s.Update,
		ActionDelete: s.Delete,
	}
}

func crud(c, r, u, d bool) ActionSet {
	return ActionSet{Create: c, Read: r, Update: u, Delete: d}
}

var (
	all      = crud(true, true, true, true)
	none     = crud(false, false, false, false)
	readOnly = crud(false, true, false, false)
)

// roleMatrix is the single source of role defaults. Every role lists every
// resource; a missing cell is treated as deny.
var roleMatrix = map[Role]map[Resource]ActionSet{
	RoleAdmin: {
		ResourceProperty:      all,
		ResourceUnit:          all,
		ResourceLease:         all,
		ResourceTenant:        all,
		ResourceMaintenance:   all,
		ResourcePayment:       all,
		ResourceDocument:      all,
		ResourceCommunication: all,
		ResourceReport:        all,
		ResourceTeam:          all,
		ResourceMember:        all,
		ResourceInvitation:    all,
		ResourceOrganization:  all,
	},
	RoleAgentOwner: {
		ResourceProperty:      all,
		ResourceUnit:          all,
		ResourceLease:         all,
		ResourceTenant:        all,
		ResourceMaintenance:   all,
		ResourcePayment:       all,
		ResourceDocument:      all,
		ResourceCommunication: all,
		ResourceReport:        all,
		ResourceTeam:          all,
		ResourceMember:        all,
		ResourceInvitation:    all,
		ResourceOrganization:  crud(false, true, true, false),
	},
	RoleAgentStaff: {
		ResourceProperty:      crud(true, true, true, false),
		ResourceUnit:          crud(true, true, true, false),
		ResourceLease:         crud(true, true, true, false),
		ResourceTenant:        crud(true, true, true, false),
		ResourceMaintenance:   all,
		ResourcePayment:       crud(true, true, true, false),
		ResourceDocument:      crud(true, true, true, false),
		ResourceCommunication: crud(true, true, true, false),
		ResourceReport:        readOnly,
		ResourceTeam:          readOnly,
		ResourceMember:        readOnly,
		ResourceInvitation:    none,
		ResourceOrganization:  readOnly,
	},
	RolePropertyOwner: {
		ResourceProperty:      readOnly,
		ResourceUnit:          readOnly,
		ResourceLease:         readOnly,
		ResourceTenant:        readOnly,
		ResourceMaintenance:   crud(true, true, false, false),
		ResourcePayment:       readOnly,
		ResourceDocument:      readOnly,
		ResourceCommunication: crud(true, true, false, false),
		ResourceReport:        readOnly,
		ResourceTeam:          none,
		ResourceMember:        none,
		ResourceInvitation:    none,
		ResourceOrganization:  readOnly,
	},
	RoleCaretaker: {
		ResourceProperty:      readOnly,
		ResourceUnit:          readOnly,
		ResourceLease:         none,
		ResourceTenant:        readOnly,
		ResourceMaintenance:   crud(true, true, true, false),
		ResourcePayment:       none,
		ResourceDocument:      readOnly,
		ResourceCommunication: crud(true, true, false, false),
		ResourceReport:        none,
		ResourceTeam:          none,
		ResourceMember:        none,
		ResourceInvitation:    none,
		ResourceOrganization:  readOnly,
	},
	RoleTenantUser: {
		ResourceProperty:      readOnly,
		ResourceUnit:          readOnly,
		ResourceLease:         readOnly,
		ResourceTenant:        readOnly,
		ResourceMaintenance:   crud(true, true, false, false),
		ResourcePayment:       crud(true, true, false, false),
		ResourceDocument:      readOnly,
		ResourceCommunication: crud(true, true, false, false),
		ResourceReport:        none,
		ResourceTeam:          none,
		ResourceMember:        none,
		ResourceInvitation:    none,
		ResourceOrganization:  none,
	},
}

// Roles returns all known global roles in a stable order
func Roles() []Role {
	return []Role{RoleAdmin, RoleAgentOwner, RoleAgentStaff, RolePropertyOwner, RoleCaretaker, RoleTenantUser}
}

// Resources returns all known resource types in a stable order
func Resources() []Resource {
	return []Resource{
		ResourceProperty, ResourceUnit, ResourceLease, ResourceTenant, ResourceMaintenance,
		ResourcePayment, ResourceDocument, ResourceCommunication, ResourceReport,
		ResourceTeam, ResourceMember, ResourceInvitation, ResourceOrganization,
	}
}

// Actions returns all known actions in a stable order
func Actions() []Action {
	return []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
}

// GetRolePermissions returns a copy of the role's matrix. An unknown role
// yields an empty map.
func GetRolePermissions(role Role) map[Resource]map[Action]bool {
	out := make(map[Resource]map[Action]bool)
	matrix, ok := roleMatrix[role]
	if !ok {
		return out
	}
	for resource, set := range matrix {
		out[resource] = set.asMap()
	}
	return out
}

// RoleAllows reports whether the role table permits action on resource
func RoleAllows(role Role, resource Resource, action Action) bool {
	matrix, ok := roleMatrix[role]
	if !ok {
		return false
	}
	return matrix[resource].Allows(action)
}

// IsValidRole reports whether role is one of the known global roles
func IsValidRole(role Role) bool {
	_, ok := roleMatrix[role]
	return ok
}

// IsValidResource reports whether r is a known resource type
func IsValidResource(r Resource) bool {
	for _, known := range Resources() {
		if known == r {
			return true
		}
	}
	return false
}

// IsValidAction reports whether a is a known action
func IsValidAction(a Action) bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// ValidateRole parses a stored role string.
func ValidateRole(raw string) (Role, error) {
	role := Role(strings.TrimSpace(raw))
	if !IsValidRole(role) {
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, raw)
	}
	return role, nil
}

// RoleLister lists the distinct role strings stored for users.
type RoleLister interface {
	DistinctUserRoles(ctx context.Context) ([]string, error)
}

// ValidateStoredRoles fails if any persisted user role is not a known role.
// Unknown roles would otherwise resolve to an empty permission set and lock
// the affected users out silently.
func ValidateStoredRoles(ctx context.Context, lister RoleLister) error {
	stored, err := lister.DistinctUserRoles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list user roles: %w", err)
	}
	var unknown []string
	for _, raw := range stored {
		if _, err := ValidateRole(raw); err != nil {
			unknown = append(unknown, raw)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: unknown user roles in store: %s", ErrValidation, strings.Join(unknown, ", "))
	}
	return nil
}
