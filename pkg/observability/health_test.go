package observability_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/fillspc/pkg/observability"
)

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Failed  map[string]string `json:"failed"`
}

func serveHealth(t *testing.T, handler http.Handler) (int, healthResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body healthResponse

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return rec.Code, body
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	code, body := serveHealth(t, observability.HealthHandler("1.4.0"))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.4.0", body.Version)
}

func TestReadyHandler(t *testing.T) {
	t.Parallel()

	ready := func(context.Context) error { return nil }
	missing := func(context.Context) error { return errors.New("limits not loaded") }

	tests := []struct {
		name       string
		checks     map[string]observability.ReadyCheck
		wantCode   int
		wantStatus string
		wantFailed map[string]string
	}{
		{"no checks", nil, http.StatusOK, "ok", nil},
		{"all ready", map[string]observability.ReadyCheck{"results": ready, "limits": ready}, http.StatusOK, "ok", nil},
		{
			"one failing",
			map[string]observability.ReadyCheck{"results": ready, "limits": missing},
			http.StatusServiceUnavailable,
			"unavailable",
			map[string]string{"limits": "limits not loaded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code, body := serveHealth(t, observability.ReadyHandler(tt.checks))

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantFailed, body.Failed)
		})
	}
}
