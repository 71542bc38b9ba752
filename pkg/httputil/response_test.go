package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantd/pkg/apperr"
	"github.com/platinummonkey/tenantd/pkg/validation"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"message":"success"}`, w.Body.String())
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"unauthenticated", apperr.Unauthenticated("missing bearer token"), http.StatusUnauthorized, "unauthenticated", "missing bearer token"},
		{"insufficient permission", apperr.InsufficientPermission("only owners can manage permission grants"), http.StatusForbidden, "insufficient_permission", "only owners can manage permission grants"},
		{"forbidden", apperr.Forbidden("owners cannot be removed"), http.StatusForbidden, "forbidden", "owners cannot be removed"},
		{"invariant", apperr.InvariantViolation("tenant must keep at least one owner"), http.StatusConflict, "invariant_violation", "tenant must keep at least one owner"},
		{"not found", apperr.NotFound("membership not found"), http.StatusNotFound, "not_found", "membership not found"},
		{"conflict", apperr.Conflict("subdomain is already taken"), http.StatusConflict, "conflict", "subdomain is already taken"},
		{"upstream", apperr.Upstream("identity provider unavailable", errors.New("dial tcp: refused")), http.StatusBadGateway, "upstream_failure", "identity provider unavailable"},
		{"wrapped", fmt.Errorf("handler: %w", apperr.NotFound("tenant not found")), http.StatusNotFound, "not_found", "tenant not found"},
		{"internal hides cause", apperr.Internal("store exploded", errors.New("pq: secret detail")), http.StatusInternalServerError, "internal", "internal server error"},
		{"plain error hides text", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteAppError(w, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Error)
			assert.Equal(t, tt.message, resp.Message)
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}
}

func TestWriteAppError_ValidationDetails(t *testing.T) {
	fieldErrs := validation.Errors{
		{Field: "users[1].email", Rule: "email"},
		{Field: "users[2].role", Rule: "oneof", Param: "owner manager auditor observer"},
	}
	w := httptest.NewRecorder()

	WriteAppError(w, apperr.Wrap(apperr.KindValidation, "invalid bulk request", fieldErrs))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "validation", resp.Error)
	assert.Equal(t, "invalid bulk request", resp.Message)
	require.Len(t, resp.Details, 2)
	assert.Equal(t, "users[1].email", resp.Details[0].Field)
	assert.Equal(t, "oneof", resp.Details[1].Rule)
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorMessage(w, http.StatusTooManyRequests, "slow down")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "rate_limited", resp.Error)
	assert.Equal(t, "slow down", resp.Message)
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteCreated(w, map[string]string{"id": "123"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "123")
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteSuccess(w, []string{"a", "b"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["a","b"]`, w.Body.String())
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteNoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
