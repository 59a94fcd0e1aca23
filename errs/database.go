package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDatabaseQuery    = errors.New("database query failed")
	ErrStoreUnavailable = errors.New("document store unavailable")
)

func NewNotFound(entity string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusNotFound,
		err:        fmt.Errorf("%s %w", entity, ErrNotFound),
	}
}

// NewStoreUnavailableError is returned on every data-dependent endpoint while the
// document store cannot be reached.
func NewStoreUnavailableError(operation string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusServiceUnavailable,
		err:        ErrStoreUnavailable,
		Details:    fmt.Sprintf("Unable to reach document store during %s", operation),
		Cause:      cause,
	}
}

// NewDatabaseError creates a new database error with details about the operation
func NewDatabaseError(operation, entity string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusInternalServerError,
		err:        ErrDatabaseQuery,
		Details:    fmt.Sprintf("Failed to %s %s", operation, entity),
		Cause:      cause,
	}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
