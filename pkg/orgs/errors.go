package orgs

import (
	"errors"
	"fmt"

	"github.com/leasehold/leasehold/pkg/apperrors"
)

var (
	// ErrNotFound is returned when an organization, member or invitation
	// does not exist
	ErrNotFound = fmt.Errorf("orgs: %w", apperrors.ErrNotFound)

	// ErrValidation is returned for malformed input. Nothing is written.
	ErrValidation = fmt.Errorf("orgs: %w", apperrors.ErrValidation)
)

// Limit names a subscription cap
type Limit string

const (
	LimitUsers      Limit = "users"
	LimitProperties Limit = "properties"
)

// LimitExceededError is returned when a write would exceed a plan limit
type LimitExceededError struct {
	Limit   Limit
	Current int
	Max     int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d in use", e.Limit, e.Current, e.Max)
}

// Unwrap lets errors.Is match apperrors.ErrLimitExceeded
func (e *LimitExceededError) Unwrap() error {
	return apperrors.ErrLimitExceeded
}

// IsLimitExceeded checks if an error is a limit exceeded error
func IsLimitExceeded(err error) bool {
	var limitErr *LimitExceededError
	return errors.As(err, &limitErr)
}
