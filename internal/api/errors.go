// Package api provides the HTTP surface of the GP practice finder: search,
// score, the streaming search socket, probes and standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/onnwee/gpfinder/internal/middleware"
	"github.com/onnwee/gpfinder/internal/search"
)

// Error codes returned in the error envelope.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeNoCandidates indicates the directory found nothing near the location.
	ErrCodeNoCandidates = "no_candidates_found"

	// ErrCodeEmptyAfterFilter indicates every candidate was private.
	ErrCodeEmptyAfterFilter = "empty_after_filter"

	// ErrCodeUpstream indicates the places directory failed.
	ErrCodeUpstream = "upstream_failure"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeNotFound indicates the requested route does not exist.
	ErrCodeNotFound = "not_found"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response and records code for
// the logging middleware.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound, ErrCodeNoCandidates, ErrCodeEmptyAfterFilter:
		return http.StatusNotFound
	case ErrCodeUpstream:
		return http.StatusBadGateway
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// SearchErrorCode maps a failed pass to its error code.
func SearchErrorCode(err error) string {
	var upstream *search.UpstreamError
	switch {
	case errors.Is(err, search.ErrEmptyAfterFilter):
		return ErrCodeEmptyAfterFilter
	case errors.Is(err, search.ErrNoCandidatesFound):
		return ErrCodeNoCandidates
	case errors.As(err, &upstream):
		return ErrCodeUpstream
	default:
		return ErrCodeInternal
	}
}

// WriteSearchError writes the envelope for a failed pass.
func WriteSearchError(w http.ResponseWriter, ctx context.Context, err error) {
	code := SearchErrorCode(err)
	WriteError(w, ctx, StatusCodeMapping(code), code, search.UserMessage(err))
}

// validationMessage reports the first failed field of a validator error.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		ve := verrs[0]
		return fmt.Sprintf("validation error: %s - %s", ve.Field(), ve.Tag())
	}
	return "validation error: invalid request"
}
