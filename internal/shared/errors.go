package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error kinds shared by every ledger module. Domain errors wrap one of these so
// callers can branch on the kind without knowing the precise cause.
var (
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a missing or out-of-tenant record.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied indicates a missing capability or a protected target.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConflict indicates duplicates or an invalid state transition.
	ErrConflict = errors.New("conflict")
	// ErrIntegrity indicates a partially applied posting; the unit of work must roll back.
	ErrIntegrity = errors.New("integrity violation")
	// ErrUnauthenticated indicates the request carries no resolvable actor.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError enumerates the offending input fields.
type ValidationError struct {
	Fields []string
	Reason string
}

// NewValidationError builds a ValidationError for the supplied fields.
func NewValidationError(reason string, fields ...string) *ValidationError {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	return &ValidationError{Fields: sorted, Reason: reason}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrValidation, e.Reason, strings.Join(e.Fields, ", "))
}

// Is reports ValidationError as an ErrValidation kind.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
// When constraint is non-empty the constraint name must match as well.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// UserSafeMessage returns the message suitable for API responses.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrIntegrity):
		return "the operation could not be completed"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrConflict):
		return err.Error()
	default:
		return "internal error"
	}
}

// Expected reports whether err is a caller-facing kind that needs no error log.
func Expected(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrUnauthenticated)
}
