package rbac

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/leasehold/leasehold/pkg/apperrors"
)

var (
	// ErrNotFound is returned when a referenced organization, team or
	// resource does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", apperrors.ErrNotFound)

	// ErrValidation is returned for malformed input to grant and assignment
	// operations. Nothing is written when it is returned.
	ErrValidation = fmt.Errorf("rbac: %w", apperrors.ErrValidation)

	// ErrForbidden is returned by Require when the decision is deny.
	ErrForbidden = fmt.Errorf("rbac: %w", apperrors.ErrForbidden)
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// mapConstraintError turns postgres constraint violations into ErrValidation.
func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation, pqForeignKeyViolation:
			return errors.Join(ErrValidation, err)
		}
	}
	return err
}
