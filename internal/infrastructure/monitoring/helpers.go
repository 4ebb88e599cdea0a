package monitoring

import (
	"errors"

	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
)

// Outcome labels shared by operation, job and outbound metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// LifecycleKind maps a scope error to a low-cardinality label.
func LifecycleKind(err error) string {
	var le *scope.LifecycleError
	if !errors.As(err, &le) {
		if scope.IsValidation(err) {
			return "invalid_argument"
		}
		return "other"
	}
	switch le.Err {
	case scope.ErrNotInitialized:
		return "not_initialized"
	case scope.ErrAlreadyInitialized:
		return "already_initialized"
	case scope.ErrDisposed:
		return "disposed"
	case scope.ErrNoScope:
		return "no_scope"
	default:
		return "other"
	}
}
