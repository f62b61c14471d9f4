package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/libraryledger/ledger-server/internal/errors"
	"github.com/libraryledger/ledger-server/internal/store"
)

func TestEnvelopeTransformer_AlwaysIncludesVersion(t *testing.T) {
	tests := []struct {
		name   string
		status string
		input  any
	}{
		{"success response", "200", map[string]string{"key": "value"}},
		{"created response", "201", map[string]string{"id": "book-1"}},
		{"no content response", "204", nil},
		{"plain error", "400", errors.New("invalid input")},
		{"coded error", "409", &APIError{Code: "CONFLICT", Message: "already exists", Details: map[string]string{"isbn": "taken"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EnvelopeTransformer(nil, tt.status, tt.input)
			require.NoError(t, err)

			raw, err := json.Marshal(result)
			require.NoError(t, err)

			var envelope map[string]any
			require.NoError(t, json.Unmarshal(raw, &envelope))
			require.Contains(t, envelope, "v")
			assert.Equal(t, float64(EnvelopeVersion), envelope["v"])
		})
	}
}

func TestEnvelopeTransformer_SuccessResponse(t *testing.T) {
	data := map[string]string{"title": "Dune"}

	result, err := EnvelopeTransformer(nil, "200", data)
	require.NoError(t, err)

	envelope, ok := result.(APIEnvelope)
	require.True(t, ok)
	assert.True(t, envelope.Success)
	assert.Equal(t, data, envelope.Data)
	assert.Empty(t, envelope.Error)
}

func TestEnvelopeTransformer_PassesEnvelopesThrough(t *testing.T) {
	in := APIEnvelope{Version: EnvelopeVersion, Success: true, Data: "x"}

	result, err := EnvelopeTransformer(nil, "200", in)
	require.NoError(t, err)
	assert.Equal(t, in, result)
}

func TestEnvelopeTransformer_ErrorWithDetails(t *testing.T) {
	apiErr := &APIError{
		Code:    "VALIDATION_ERROR",
		Message: "validation failed",
		Details: map[string]string{"isbn": "must be a valid ISBN"},
	}

	result, err := EnvelopeTransformer(nil, "400", apiErr)
	require.NoError(t, err)

	envelope, ok := result.(APIErrorEnvelope)
	require.True(t, ok)
	assert.False(t, envelope.Success)
	assert.Equal(t, "VALIDATION_ERROR", envelope.Code)
	assert.Equal(t, "validation failed", envelope.Error)
	assert.Equal(t, apiErr.Details, envelope.Details)
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		err     error
		want    int
		code    string
	}{
		{"not found", 500, "", domainerrors.NotFound("book %q not found", "b1"), 404, "NOT_FOUND"},
		{"conflict wrapped", 500, "", fmt.Errorf("approve: %w", domainerrors.Conflict("taken")), 409, "CONFLICT"},
		{"policy violation", 500, "", domainerrors.PolicyViolation("delinquent"), 403, "POLICY_VIOLATION"},
		{"store miss", 500, "", fmt.Errorf("get: %w", store.ErrNotFound), 404, "NOT_FOUND"},
		{"store no copies", 500, "", store.ErrNoCopiesAvailable, 409, "CONFLICT"},
		{"huma validation", 422, "validation failed", &huma.ErrorDetail{Location: "body.isbn", Message: "too short"}, 400, "VALIDATION_ERROR"},
		{"plain internal", 500, "boom: secret path", errors.New("boom"), 500, "INTERNAL"},
		{"rate limited", 429, "slow down", nil, 429, "RATE_LIMITED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errs []error
			if tt.err != nil {
				errs = append(errs, tt.err)
			}
			got := toAPIError(tt.status, tt.message, errs...)
			assert.Equal(t, tt.want, got.GetStatus())
			assert.Equal(t, tt.code, got.Code)
			if tt.want == http.StatusInternalServerError {
				assert.Equal(t, "internal error", got.Message)
			}
		})
	}
}

func TestToAPIError_ValidationDetails(t *testing.T) {
	got := toAPIError(422, "validation failed",
		&huma.ErrorDetail{Location: "body.title", Message: "expected length >= 1"})

	assert.Equal(t, map[string]string{"body.title": "expected length >= 1"}, got.Details)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "127.0.0.1:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "127.0.0.1:80", "10.0.0.9"},
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"ipv6 remote", nil, "[::1]:1234", "[::1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			get := func(k string) string { return tt.headers[k] }
			assert.Equal(t, tt.want, clientIP(get, tt.remote))
		})
	}
}
