package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	Unauthorized = &ApiErr{StatusCode: http.StatusUnauthorized, err: ErrUnauthorized}
)

// Request & Input-Validation Errors
var (
	ErrValidation           = errors.New("validation failed")
	ErrMalformedPayload     = errors.New("malformed payload")
	ErrMaxBodySizeExceeded  = errors.New("max body size exceeded")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// NewValidationError is the single validation error kind. Field names the offending
// input field, reason says what is wrong with it.
func NewValidationError(field, reason string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrValidation,
		Details:    fmt.Sprintf("%s: %s", field, reason),
		Field:      field,
	}
}

func NewMissingRequiredFieldError(field string) *ApiErr {
	return NewValidationError(field, "is required")
}

func NewInvalidIDError(field, value string) *ApiErr {
	return NewValidationError(field, fmt.Sprintf("%q is not a valid id", value))
}

func NewMalformedPayloadError(payloadType string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadRequest,
		err:        ErrMalformedPayload,
		Details:    fmt.Sprintf("Malformed %s payload", payloadType),
		Cause:      cause,
		Field:      "payload",
	}
}

func NewMaxBodySizeExceededError(maxSize int64) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusRequestEntityTooLarge,
		err:        ErrMaxBodySizeExceeded,
		Details:    fmt.Sprintf("Request body size exceeded maximum allowed size of %d bytes", maxSize),
		Field:      "body_size",
	}
}

func NewUnsupportedMediaTypeError(contentType string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnsupportedMediaType,
		err:        ErrUnsupportedMediaType,
		Details:    fmt.Sprintf("Unsupported media type: %s", contentType),
		Field:      "content_type",
	}
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
