package response

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a domain error that maps onto the HTTP response envelope.
type AppError struct {
	Status  int    // HTTP status, also the envelope code
	Message string // human-readable message
}

func (e *AppError) Error() string {
	return e.Message
}

// WithMessagef returns a copy of the error with a formatted message, keeping
// the original status so errors.Is comparisons by status still behave.
func (e *AppError) WithMessagef(format string, args ...interface{}) *AppError {
	return &AppError{Status: e.Status, Message: fmt.Sprintf(format, args...)}
}

// Predefined domain errors. Business rules return these from services; the
// handlers translate anything else into ErrInternal.
var (
	ErrAuthMissing = &AppError{Status: http.StatusUnauthorized, Message: "authentication credential required"}
	ErrAuthInvalid = &AppError{Status: http.StatusUnauthorized, Message: "authentication credential invalid or expired"}
	ErrForbidden   = &AppError{Status: http.StatusForbidden, Message: "insufficient role for this operation"}

	ErrExamNotFound   = &AppError{Status: http.StatusBadRequest, Message: "exam not found"}
	ErrRecordNotFound = &AppError{Status: http.StatusBadRequest, Message: "exam record not found or not yours"}
	ErrExamNotActive  = &AppError{Status: http.StatusBadRequest, Message: "exam has not started or is already over"}
	ErrStateConflict  = &AppError{Status: http.StatusBadRequest, Message: "exam already submitted or finished"}

	ErrTokenMissing = &AppError{Status: http.StatusBadRequest, Message: "exam token must not be empty"}
	ErrTokenInvalid = &AppError{Status: http.StatusBadRequest, Message: "exam token invalid or expired"}

	ErrLockUnavailable = &AppError{Status: http.StatusBadRequest, Message: "operation already in progress, please retry"}

	ErrRateLimited = &AppError{Status: http.StatusTooManyRequests, Message: "too many requests, slow down"}

	ErrValidation = &AppError{Status: http.StatusBadRequest, Message: "request validation failed"}

	ErrCacheUnavailable = &AppError{Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrStoreUnavailable = &AppError{Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrInternal         = &AppError{Status: http.StatusInternalServerError, Message: "internal server error"}
)

// AsAppError unwraps err into an *AppError, falling back to ErrInternal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal
}
