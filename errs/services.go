package errs

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrConfigMissing     = errors.New("configuration missing")
)

// RateLimitErr carries how long the caller should wait before retrying.
type RateLimitErr struct {
	*ApiErr
	RetryAfter time.Duration
}

func NewRateLimitError(service string, retryAfter time.Duration) *RateLimitErr {
	return &RateLimitErr{
		ApiErr: &ApiErr{
			StatusCode: http.StatusTooManyRequests,
			err:        ErrRateLimitExceeded,
			Details:    fmt.Sprintf("Too many %s requests, retry in %ds", service, RetryAfterSeconds(retryAfter)),
			Field:      "rate_limit",
		},
		RetryAfter: retryAfter,
	}
}

func (e *RateLimitErr) Unwrap() error {
	return e.ApiErr
}

// RetryAfterSeconds rounds d up to whole seconds, never below one.
func RetryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// NewConfigError reports a missing or invalid setting, with the cause in the message.
func NewConfigError(configName string, cause error) *ApiErr {
	details := fmt.Sprintf("Configuration error for %s", configName)
	if cause != nil {
		details = fmt.Sprintf("%s: %v", details, cause)
	}
	return &ApiErr{
		StatusCode: http.StatusInternalServerError,
		err:        ErrConfigMissing,
		Details:    details,
		Cause:      cause,
	}
}

func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}

func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfigMissing)
}
