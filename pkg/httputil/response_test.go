package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leasehold/leasehold/pkg/apperrors"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]bool{"allowed": true})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"allowed":true}`, w.Body.String())
}

func TestWriteForbidden_FixedBody(t *testing.T) {
	w := httptest.NewRecorder()

	WriteForbidden(w)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"insufficient permissions"}`, w.Body.String())
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"not found", fmt.Errorf("get team: %w", apperrors.ErrNotFound), http.StatusNotFound, "get team: not found"},
		{"validation", fmt.Errorf("%w: team_id is required", apperrors.ErrValidation), http.StatusBadRequest, "validation failed: team_id is required"},
		{"forbidden hides detail", fmt.Errorf("%w: role_denied", apperrors.ErrForbidden), http.StatusForbidden, "insufficient permissions"},
		{"limit", fmt.Errorf("users: %w", apperrors.ErrLimitExceeded), http.StatusTooManyRequests, "quota_exceeded"},
		{"internal", errors.New("connection reset by peer"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/v1/orgs/o1/limits", nil)

			WriteServiceError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.NotContains(t, w.Body.String(), "connection reset")
		})
	}
}

func TestParseJSON_RejectsUnknownFields(t *testing.T) {
	var dest struct {
		PropertyIDs []string `json:"property_ids"`
	}

	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"property_ids":["p1"]}`))
	require.NoError(t, ParseJSON(r, &dest))
	assert.Equal(t, []string{"p1"}, dest.PropertyIDs)

	r = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"propertyIds":["p1"]}`))
	assert.Error(t, ParseJSON(r, &dest))
}

func TestParsePathString(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = mux.SetURLVars(r, map[string]string{"team_id": "t1", "blank": "  "})

	val, err := ParsePathString(r, "team_id")
	require.NoError(t, err)
	assert.Equal(t, "t1", val)

	_, err = ParsePathString(r, "blank")
	assert.Error(t, err)

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, r, "missing")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
