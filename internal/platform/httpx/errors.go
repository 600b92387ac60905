package httpx

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors shared by the domain layer. Handlers translate these into
// RFC7807 responses via RespondError.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrReferenceConflict = errors.New("reference conflict")
	ErrConfiguration     = errors.New("configuration error")
	ErrDuplicate         = errors.New("duplicate entry")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrReferenceConflict), errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "operation timed out")
	case errors.Is(err, ErrStoreUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "backing store is unavailable")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
