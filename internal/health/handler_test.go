package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"itinera/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h *HealthHandler, path string) (*httptest.ResponseRecorder, HealthResponse) {
	router := httprouter.New()
	h.RegisterRoutes(router)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body HealthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(logger.Discard()).
		WithCheck("mongo", func(context.Context) error { return errors.New("down") })

	rec, body := serve(h, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body.Status)
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]error
		wantStatus int
		wantDeps   map[string]string
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
		},
		{
			name:       "all healthy",
			checks:     map[string]error{"mongo": nil, "kafka": nil},
			wantStatus: http.StatusOK,
			wantDeps:   map[string]string{"mongo": "ok", "kafka": "ok"},
		},
		{
			name:       "one failing",
			checks:     map[string]error{"mongo": errors.New("no primary"), "kafka": nil},
			wantStatus: http.StatusServiceUnavailable,
			wantDeps:   map[string]string{"mongo": "error", "kafka": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(logger.Discard())
			for name, err := range tt.checks {
				h.WithCheck(name, func(context.Context) error { return err })
			}

			rec, body := serve(h, "/ready")

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantDeps, body.Dependencies)
		})
	}
}
