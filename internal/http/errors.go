package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
	"github.com/fyrsmithlabs/clustereval/internal/session"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeValidation       = "validation_failed"
	CodeConflict         = "conflict"
	CodeStoreUnavailable = "store_unavailable"
	CodeInvalidState     = "invalid_state"
	CodeOutsideBatch     = "outside_batch"
	CodeUnknownBatch     = "unknown_batch"
	CodeInternal         = "internal"
)

// statusFor maps a session error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var verr *evaluation.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, CodeValidation
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, progress.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeStoreUnavailable
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidState
	case errors.Is(err, session.ErrOutsideBatch):
		return http.StatusBadRequest, CodeOutsideBatch
	case errors.Is(err, session.ErrUnknownBatch):
		return http.StatusBadRequest, CodeUnknownBatch
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// fieldErrors flattens joined validation errors.
func fieldErrors(err error) []FieldError {
	var out []FieldError
	var walk func(error)
	walk = func(err error) {
		if verr, ok := err.(*evaluation.ValidationError); ok {
			out = append(out, FieldError{Field: verr.Field, Message: verr.Message})
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		if inner := errors.Unwrap(err); inner != nil {
			walk(inner)
		}
	}
	walk(err)
	return out
}

// respond writes the view, or the mapped error with the view attached.
func respond(c echo.Context, view session.View, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, view)
	}
	status, code := statusFor(err)
	return c.JSON(status, ErrorResponse{
		Error:  err.Error(),
		Code:   code,
		Fields: fieldErrors(err),
		View:   &view,
	})
}
