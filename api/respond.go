package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rs/zerolog"
)

type Responder struct {
	logger zerolog.Logger
}

func NewResponder(logger zerolog.Logger) Responder {
	return Responder{logger}
}

func (r Responder) WriteJSON(w http.ResponseWriter, data any) {
	r.WriteJSONStatus(w, http.StatusOK, data)
}

// WriteJSONStatus marshals data before touching the response so a marshal
// failure can still become a 500.
func (r Responder) WriteJSONStatus(w http.ResponseWriter, status int, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		r.logger.Error().Err(err).Msg("error marshaling response data")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(jsonData); err != nil {
		r.logger.Error().Err(err).Msg("error writing response")
	}
}

func (r Responder) WriteOK(w http.ResponseWriter) {
	r.WriteJSON(w, okResponse{OK: true})
}

func (r Responder) WriteError(w http.ResponseWriter, err error) {
	var apiErr *errs.ApiErr

	// For unexpected errors, log and return generic internal error
	if !errors.As(err, &apiErr) {
		r.logger.Error().Err(err).Msg("unexpected error")
		r.WriteJSONStatus(w, http.StatusInternalServerError, ErrorResponse{
			Error:  "Internal Server Error",
			Status: "error",
		})
		return
	}

	if apiErr.StatusCode >= http.StatusInternalServerError {
		r.logger.Error().Str("error", apiErr.GetFullError()).Int("status", apiErr.StatusCode).Msg("request failed")
	}

	var rateErr *errs.RateLimitErr
	if errors.As(err, &rateErr) {
		w.Header().Set("Retry-After", strconv.Itoa(errs.RetryAfterSeconds(rateErr.RetryAfter)))
	}

	r.WriteJSONStatus(w, apiErr.StatusCode, ErrorResponse{
		Error:   apiErr.Error(),
		Status:  "error",
		Field:   apiErr.Field,
		Details: apiErr.Details,
	})
}
