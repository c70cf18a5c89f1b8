package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeAlreadyExists, http.StatusConflict},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeStorageUnavailable, http.StatusServiceUnavailable},
		{ErrCodeUpstreamFailed, http.StatusBadGateway},
		{ErrCodeRequestTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeAuthRateLimited, http.StatusTooManyRequests},
		{"ERR_NOBODY_DECLARED_THIS", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetHTTPStatus(tt.code), tt.code)
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"STORE_NOT_FOUND", ErrCodeNotFound},
		{"INVALID_BASE_URL", ErrCodeValidation},
		{"NO_STORES_SELECTED", ErrCodeBadRequest},
		{"STORAGE_FAILURE", ErrCodeStorageUnavailable},
		{"INVALID_CREDENTIALS", ErrCodeUnauthorized},
		{"TOKEN_MAX_REFRESH", ErrCodeTokenInvalid},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeErrorCode(tt.in), tt.in)
	}

	t.Run("transport and unknown codes pass through", func(t *testing.T) {
		assert.Equal(t, ErrCodeNotFound, NormalizeErrorCode(ErrCodeNotFound))
		assert.Equal(t, "CUSTOM_ERROR", NormalizeErrorCode("CUSTOM_ERROR"))
	})
}

// Every domain code must land on a transport code with an explicit status,
// otherwise handlers would answer 500 for a mapped error.
func TestDomainCodesResolveToExplicitStatuses(t *testing.T) {
	for domainCode, transportCode := range DomainErrorCodeMapping {
		_, ok := ErrorCodeHTTPStatus[transportCode]
		assert.True(t, ok, "domain code %s maps to %s, which has no status", domainCode, transportCode)
	}
}

func TestErrorResponses(t *testing.T) {
	t.Run("wire shape", func(t *testing.T) {
		resp := NewErrorResponseWithRequestID(ErrCodeNotFound, "Store not found", "req-test-123")

		data, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"success": false,
			"error": {"code": "ERR_NOT_FOUND", "message": "Store not found", "request_id": "req-test-123"}
		}`, string(data))
	})

	t.Run("request ID is omitted when absent", func(t *testing.T) {
		resp := NewErrorResponse(ErrCodeNotFound, "Store not found")

		data, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "request_id")
	})

	t.Run("validation details", func(t *testing.T) {
		resp := NewValidationErrorResponse("Validation failed", "req-789", []ValidationDetail{
			{Field: "base_url", Message: "Must be a valid URL"},
			{Field: "name", Message: "Required"},
		})

		assert.False(t, resp.Success)
		assert.Equal(t, ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "req-789", resp.Error.RequestID)
		require.Len(t, resp.Error.Details, 2)
		assert.Equal(t, "base_url", resp.Error.Details[0].Field)
	})
}

func TestSuccessResponses(t *testing.T) {
	t.Run("bare", func(t *testing.T) {
		resp := NewSuccessResponse(map[string]string{"name": "test"})

		assert.True(t, resp.Success)
		assert.NotNil(t, resp.Data)
		assert.Nil(t, resp.Error)
		assert.Nil(t, resp.Meta)
	})

	t.Run("with aggregation meta", func(t *testing.T) {
		resp := NewSuccessResponseWithMeta([]string{"a", "b"}, Meta{
			Page:          1,
			PageSize:      20,
			HasMore:       true,
			Fetched:       40,
			StoresQueried: 2,
		})

		require.NotNil(t, resp.Meta)
		assert.True(t, resp.Meta.HasMore)
		assert.Equal(t, 40, resp.Meta.Fetched)
		assert.Equal(t, 2, resp.Meta.StoresQueried)
	})
}
