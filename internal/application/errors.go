package application

import (
	"context"
	stderrors "errors"

	"github.com/wms-platform/shipping-service/internal/domain"
	"github.com/wms-platform/shipping-service/pkg/errors"
)

// MapDomainError converts a domain error into an AppError carrying the HTTP
// status, category and retry hint for callers. AppErrors pass through and
// anything unclassified becomes an internal error.
func MapDomainError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	kind, ok := domain.KindOf(err)
	if !ok {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.ErrTimeout("request").Wrap(err)
		}
		return errors.ErrInternal("").Wrap(err)
	}

	var appErr *errors.AppError
	switch kind {
	case domain.KindInput:
		appErr = errors.ErrValidation(err.Error())
	case domain.KindPolicy:
		appErr = errors.ErrPolicy(err.Error())
	case domain.KindState:
		appErr = errors.ErrInvalidState(err.Error())
	case domain.KindConflict:
		appErr = errors.ErrConcurrencyConflict(err.Error())
	default:
		appErr = errors.ErrServiceUnavailable("reference data")
	}
	return appErr.WithCode(domain.CodeOf(err)).Wrap(err)
}

// errorCode is the metric label of err.
func errorCode(err error) string {
	if code := domain.CodeOf(err); code != "" {
		return code
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Code
	}
	return errors.CodeInternalError
}

func isKind(err error, kind domain.ErrorKind) bool {
	k, ok := domain.KindOf(err)
	return ok && k == kind
}
