package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"itinera/internal/search/service"
	apperrors "itinera/pkg/errors"
	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSearchService struct {
	searchFunc func(ctx context.Context, req *service.SearchRequest) (*service.SearchResponse, error)
}

func (m *mockSearchService) Search(ctx context.Context, req *service.SearchRequest) (*service.SearchResponse, error) {
	return m.searchFunc(ctx, req)
}

func TestSearchHandler_Search(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		searchErr  error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "ranked plans",
			body:       `{"origin":"LON","destination":"NYC","depart_after":"2026-11-02T00:00:00Z","arrive_before":"2026-11-03T00:00:00Z","max_layovers":2,"optimize_for":"cheapest"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed body",
			body:       `{"origin":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeInvalidInput,
		},
		{
			name:       "unknown field",
			body:       `{"origin":"LON","cabin":"first"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeInvalidInput,
		},
		{
			name:       "validation failure",
			body:       `{"origin":"LON","destination":"LON"}`,
			searchErr:  apperrors.Validation("Search request validation failed", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apperrors.CodeValidation,
		},
		{
			name:       "provider down",
			body:       `{"origin":"LON","destination":"NYC"}`,
			searchErr:  apperrors.Unavailable("Route provider"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   apperrors.CodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *service.SearchRequest
			svc := &mockSearchService{
				searchFunc: func(ctx context.Context, req *service.SearchRequest) (*service.SearchResponse, error) {
					got = req
					if tt.searchErr != nil {
						return nil, tt.searchErr
					}
					return &service.SearchResponse{
						SearchID:    "s1",
						OptimizeFor: req.OptimizeFor,
						Plans:       []model.Plan{{ID: "plan_1", Passengers: 1}},
					}, nil
				},
			}
			router := httprouter.New()
			NewSearchHandler(svc, logger.Discard()).RegisterRoutes(router)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				var body apperrors.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.wantCode, body.Code)
				return
			}

			require.NotNil(t, got)
			assert.Equal(t, model.OptimizeCheapest, got.OptimizeFor)
			require.NotNil(t, got.MaxLayovers)
			assert.Equal(t, 2, *got.MaxLayovers)

			var body struct {
				Data service.SearchResponse `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "s1", body.Data.SearchID)
			require.Len(t, body.Data.Plans, 1)
		})
	}
}
