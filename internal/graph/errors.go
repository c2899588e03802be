package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/99designs/gqlgen/graphql"
	"github.com/notifly-go/internal/domain"
	"github.com/notifly-go/pkg/logger"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeBadUserInput    = "BAD_USER_INPUT"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
)

const internalMessage = "Internal server error"

var errPanic = errors.New("internal system error")

// Code classifies an error into the extensions.code reported to clients.
func Code(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return CodeBadUserInput
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return CodeConflict
	case errors.Is(err, domain.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, domain.ErrForbidden):
		return CodeForbidden
	default:
		return CodeInternal
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// ErrorPresenter attaches a code to every resolver error. Internal errors are
// logged, and in production their message is replaced so nothing leaks.
func ErrorPresenter(production bool, log logger.Logger) graphql.ErrorPresenterFunc {
	return func(ctx context.Context, err error) *gqlerror.Error {
		var gqlErr *gqlerror.Error
		if !errors.As(err, &gqlErr) {
			gqlErr = gqlerror.WrapPath(graphql.GetPath(ctx), err)
		}
		// Parse and validation errors have no cause and already carry a code.
		if gqlErr.Err == nil {
			return gqlErr
		}

		cause := gqlErr.Err
		code := Code(cause)
		presented := &gqlerror.Error{
			Message:    cause.Error(),
			Path:       gqlErr.Path,
			Locations:  gqlErr.Locations,
			Err:        cause,
			Extensions: map[string]interface{}{"code": code},
		}

		var verr *domain.ValidationError
		if errors.As(cause, &verr) {
			presented.Extensions["fields"] = verr.Fields
		}

		if code == CodeInternal {
			log.Error("GraphQL resolver failed", "path", gqlErr.Path.String(), "error", cause)
			if production {
				presented.Message = internalMessage
				return presented
			}
		}
		if !production {
			presented.Extensions["details"] = fmt.Sprintf("%+v", cause)
		}
		return presented
	}
}

// RecoverFunc logs a resolver panic with its stack and reports a generic error.
func RecoverFunc(log logger.Logger) graphql.RecoverFunc {
	return func(ctx context.Context, err interface{}) error {
		log.Error("Panic in GraphQL resolver",
			"panic", err,
			"path", graphql.GetPath(ctx).String(),
			"stack", string(debug.Stack()),
		)
		return errPanic
	}
}
