package batch

import (
	"context"
	"errors"

	apperrors "match-workers/internal/common/errors"
	"match-workers/internal/matching"
)

// Classify maps an error from a run onto the StandardError taxonomy.
func Classify(err error) *apperrors.StandardError {
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		return stdErr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return apperrors.NewNotFoundError(err)
	case errors.Is(err, matching.ErrPreconditionViolation):
		return apperrors.NewPreconditionViolationError(err)
	case errors.Is(err, matching.ErrInvalidWeights):
		return apperrors.NewInvalidWeightsError(err)
	case errors.Is(err, ErrPersistence):
		return apperrors.NewPersistenceError("batch run", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.NewPersistenceError("batch run", err)
	default:
		return apperrors.NewInternalError(err)
	}
}
