package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/store"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		return toAPIError(status, message, errs...)
	}
}

func toAPIError(status int, message string, errs ...error) *APIError {
	for _, err := range errs {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}

		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return &APIError{
				status:  domainErr.HTTPStatus(),
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Details: domainErr.Details,
			}
		}

		// Store sentinels that escaped service translation.
		var storeErr *store.Error
		if errors.As(err, &storeErr) {
			code := storeKindCode(storeErr.Kind)
			return &APIError{status: code.HTTPStatus(), Code: string(code), Message: storeErr.Error()}
		}
	}

	// huma's own request validation reports 422 with per-field details.
	if status == http.StatusUnprocessableEntity {
		return &APIError{
			status:  http.StatusBadRequest,
			Code:    string(domainerrors.CodeValidation),
			Message: message,
			Details: validationDetails(errs),
		}
	}

	if status >= http.StatusInternalServerError {
		message = "internal error"
	}
	return &APIError{
		status:  status,
		Code:    statusToCode(status),
		Message: message,
	}
}

func storeKindCode(kind string) domainerrors.Code {
	switch kind {
	case store.ErrNotFound.Kind:
		return domainerrors.CodeNotFound
	case store.ErrAlreadyExists.Kind, store.ErrNoCopiesAvailable.Kind:
		return domainerrors.CodeConflict
	case store.ErrInvalidInput.Kind:
		return domainerrors.CodeValidation
	}
	return domainerrors.CodeInternal
}

func validationDetails(errs []error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	details := make(map[string]string, len(errs))
	for _, err := range errs {
		var ed *huma.ErrorDetail
		if errors.As(err, &ed) {
			details[ed.Location] = ed.Message
			continue
		}
		details["request"] = err.Error()
	}
	return details
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return string(domainerrors.CodeValidation)
	case http.StatusUnauthorized:
		return string(domainerrors.CodeUnauthorized)
	case http.StatusForbidden:
		return string(domainerrors.CodeForbidden)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusConflict:
		return string(domainerrors.CodeConflict)
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return string(domainerrors.CodeInternal)
	}
}
