package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"itinera/internal/inventory"
	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSnapshot(t *testing.T) {
	manager := inventory.NewManager(2, logger.Discard())
	key := model.InventoryKey{Origin: "LON", Destination: "NYC", Provider: "earth-air", TravelDate: "2026-11-02"}
	manager.Provision(key, 7)

	router := httprouter.New()
	NewInventoryHandler(manager, logger.Discard()).RegisterRoutes(router)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "known key", path: "/api/inventory/LON/NYC/earth-air/2026-11-02", wantStatus: http.StatusOK},
		{name: "lowercase airports", path: "/api/inventory/lon/nyc/earth-air/2026-11-02", wantStatus: http.StatusOK},
		{name: "unknown key", path: "/api/inventory/LON/NYC/tulip/2026-11-02", wantStatus: http.StatusNotFound},
		{name: "bad date", path: "/api/inventory/LON/NYC/earth-air/02-11-2026", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				var body struct {
					Data inventory.Snapshot `json:"data"`
				}
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, 7, body.Data.Total)
				assert.Equal(t, 7, body.Data.Available)
			}
		})
	}
}
