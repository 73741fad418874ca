// Package orgs manages organizations, their members and invitations, and the
// subscription limits that cap them.
//
// # Plans
//
// Every organization carries a plan tier, a subscription status and two
// limits. New organizations start trialing with the tier defaults:
//
//	starter:    10 properties,  3 users
//	growth:     50 properties, 15 users
//	enterprise: 500 properties, 100 users
//
// # Limits
//
// A seat is an active member or a pending, unexpired invitation. The gates
// are advisory: they are checked before a write that would add a seat or a
// property, and nothing is removed when an organization is already over a
// limit (for example after a downgrade).
//
//	ok, err := service.CanInviteUsers(ctx, orgID)   // seats < max_users
//	ok, err := service.CanAddProperty(ctx, orgID)   // properties < max_properties
//
// CheckUserLimit and CheckPropertyLimit return *LimitExceededError, which
// matches apperrors.ErrLimitExceeded and maps to HTTP 429.
//
// # Membership changes
//
// AddMember, UpdateMemberStatus, UpdateMemberTeam and AcceptInvitation
// change what the permission resolver sees, so the service drops the
// organization's cached decisions through its Invalidator after each of
// them.
package orgs
