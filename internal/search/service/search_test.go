package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"itinera/internal/provider"
	"itinera/internal/provider/simulator"
	"itinera/internal/search/validator"
	"itinera/pkg/config"
	apperrors "itinera/pkg/errors"
	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)

type mockProviderClient struct {
	lookupRoutesFunc      func(ctx context.Context, req provider.RoutesRequest) provider.Result[[]model.RouteFragment]
	getPriceFunc          func(ctx context.Context, f model.RouteFragment, passengers int) provider.Result[provider.Quote]
	checkAvailabilityFunc func(ctx context.Context, f model.RouteFragment) provider.Result[provider.Availability]
	assessRiskFunc        func(ctx context.Context, f model.RouteFragment, weather map[string]any) provider.Result[provider.Assessment]
}

func (m *mockProviderClient) LookupRoutes(ctx context.Context, req provider.RoutesRequest) provider.Result[[]model.RouteFragment] {
	return m.lookupRoutesFunc(ctx, req)
}

func (m *mockProviderClient) GetPrice(ctx context.Context, f model.RouteFragment, passengers int) provider.Result[provider.Quote] {
	if m.getPriceFunc != nil {
		return m.getPriceFunc(ctx, f, passengers)
	}
	return provider.Result[provider.Quote]{Status: provider.StatusOK, Value: quote(100)}
}

func (m *mockProviderClient) CheckAvailability(ctx context.Context, f model.RouteFragment) provider.Result[provider.Availability] {
	if m.checkAvailabilityFunc != nil {
		return m.checkAvailabilityFunc(ctx, f)
	}
	return provider.Result[provider.Availability]{Status: provider.StatusOK, Value: seats(20)}
}

func (m *mockProviderClient) AssessRisk(ctx context.Context, f model.RouteFragment, weather map[string]any) provider.Result[provider.Assessment] {
	if m.assessRiskFunc != nil {
		return m.assessRiskFunc(ctx, f, weather)
	}
	return provider.Result[provider.Assessment]{Status: provider.StatusOK, Value: risk(0.1)}
}

func (m *mockProviderClient) CheckSchema(ctx context.Context, schemaName string, object map[string]any) provider.Result[provider.SchemaCheckResponse] {
	return provider.Result[provider.SchemaCheckResponse]{Status: provider.StatusOK}
}

func quote(total float64) provider.Quote {
	return provider.Quote{Total: &total, Currency: provider.CurrencyGBP}
}

func seats(n int) provider.Availability {
	return provider.Availability{AvailableSeats: &n}
}

func risk(score float64) provider.Assessment {
	return provider.Assessment{RiskScore: &score, Factors: []provider.RiskFactor{}, Recommendation: provider.Recommend(score)}
}

func testConfig() *config.Config {
	return &config.Config{
		SearchMaxCandidates:    50,
		SearchMinConnection:    45 * time.Minute,
		ProviderMaxConcurrency: 4,
		Log:                    logger.Discard(),
	}
}

func newService(client provider.Client) SearchService {
	return NewSearchService(client, validator.NewSearchValidator(logger.Discard()), testConfig())
}

func newSimulatedService(t *testing.T) (SearchService, *simulator.Simulator) {
	t.Helper()
	sim := simulator.New(simulator.Config{}, logger.Discard())
	router := httprouter.New()
	sim.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client := provider.NewClient(srv.URL, provider.Options{
		CallTimeout: time.Second,
		MaxAttempts: 2,
		BackoffBase: time.Millisecond,
	}, logger.Discard())
	return newService(client), sim
}

func request(mode model.OptimizationMode) *SearchRequest {
	return &SearchRequest{
		Origin:       "lon",
		Destination:  "nyc",
		DepartAfter:  monday,
		ArriveBefore: monday.Add(24 * time.Hour),
		OptimizeFor:  mode,
	}
}

func TestSearch_RanksSimulatedItineraries(t *testing.T) {
	svc, _ := newSimulatedService(t)

	resp, err := svc.Search(context.Background(), request(model.OptimizeCheapest))

	require.NoError(t, err)
	require.NotEmpty(t, resp.Plans)
	assert.NotEmpty(t, resp.SearchID)
	assert.Equal(t, model.OptimizeCheapest, resp.OptimizeFor)
	assert.Positive(t, resp.Stats.FragmentsConsidered)

	for i, p := range resp.Plans {
		assert.Equal(t, "LON", p.Legs[0].Origin)
		assert.Equal(t, "NYC", p.Legs[len(p.Legs)-1].Destination)
		assert.LessOrEqual(t, len(p.Legs), DefaultMaxLayovers+1)
		assert.Positive(t, p.Metrics.TotalPriceGBP)
		assert.Positive(t, p.Metrics.TotalEmissionsKg)
		for j := 1; j < len(p.Legs); j++ {
			assert.False(t, p.Legs[j].DepartAt.Before(p.Legs[j-1].ArriveAt.Add(45*time.Minute)))
		}
		if i > 0 {
			assert.LessOrEqual(t, resp.Plans[i-1].Metrics.TotalPriceGBP, p.Metrics.TotalPriceGBP)
		}
	}
}

func TestSearch_FaultedProvidersNeverReachResults(t *testing.T) {
	tests := []struct {
		name   string
		tool   string
		fault  simulator.Fault
		assert func(t *testing.T, resp *SearchResponse)
	}{
		{
			name:  "negative prices drop every plan",
			tool:  provider.ToolPricing,
			fault: simulator.FaultNegativePrice,
			assert: func(t *testing.T, resp *SearchResponse) {
				assert.Empty(t, resp.Plans)
				assert.Equal(t, resp.Stats.CandidatesAssembled, resp.Stats.DroppedFaulted)
			},
		},
		{
			name:  "inconsistent availability drops every plan",
			tool:  provider.ToolAvailability,
			fault: simulator.FaultInconsistent,
			assert: func(t *testing.T, resp *SearchResponse) {
				assert.Empty(t, resp.Plans)
				assert.Positive(t, resp.Stats.DroppedFaulted)
			},
		},
		{
			name:  "sold out legs are not offered",
			tool:  provider.ToolAvailability,
			fault: simulator.FaultSoldOut,
			assert: func(t *testing.T, resp *SearchResponse) {
				assert.Empty(t, resp.Plans)
				assert.Equal(t, resp.Stats.CandidatesAssembled, resp.Stats.DroppedSoldOut)
			},
		},
		{
			name:  "out of range risk drops every plan",
			tool:  provider.ToolRisk,
			fault: simulator.FaultRiskHigh,
			assert: func(t *testing.T, resp *SearchResponse) {
				assert.Empty(t, resp.Plans)
			},
		},
		{
			name:  "unavailable risk degrades to a conservative score",
			tool:  provider.ToolRisk,
			fault: simulator.FaultError,
			assert: func(t *testing.T, resp *SearchResponse) {
				require.NotEmpty(t, resp.Plans)
				assert.Positive(t, resp.Stats.DegradedRisk)
				for _, p := range resp.Plans {
					assert.Equal(t, 1.0, p.Metrics.RiskScore)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sim := newSimulatedService(t)
			sim.Force(tt.tool, tt.fault)

			resp, err := svc.Search(context.Background(), request(model.OptimizeBalanced))

			require.NoError(t, err)
			require.Positive(t, resp.Stats.CandidatesAssembled)
			tt.assert(t, resp)
		})
	}
}

func TestSearch_RouteProviderDown(t *testing.T) {
	svc, sim := newSimulatedService(t)
	sim.Force(provider.ToolRoutes, simulator.FaultError)

	_, err := svc.Search(context.Background(), request(model.OptimizeFastest))

	appErr := apperrors.AsAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.StatusCode())
}

func TestSearch_InvalidRequest(t *testing.T) {
	svc := newService(&mockProviderClient{})
	req := request(model.OptimizeFastest)
	req.Destination = req.Origin

	_, err := svc.Search(context.Background(), req)

	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestSearch_Defaults(t *testing.T) {
	var seen provider.RoutesRequest
	svc := newService(&mockProviderClient{
		lookupRoutesFunc: func(ctx context.Context, req provider.RoutesRequest) provider.Result[[]model.RouteFragment] {
			seen = req
			return provider.Result[[]model.RouteFragment]{Status: provider.StatusOK}
		},
	})

	resp, err := svc.Search(context.Background(), request(""))

	require.NoError(t, err)
	assert.Equal(t, DefaultMaxLayovers, seen.MaxLayovers)
	assert.Equal(t, "LON", seen.Origin)
	assert.Equal(t, model.OptimizeBalanced, resp.OptimizeFor)
	assert.NotNil(t, resp.Plans)
	assert.Empty(t, resp.Plans)
}

func directFragments(n int) []model.RouteFragment {
	fragments := make([]model.RouteFragment, n)
	for i := range fragments {
		depart := monday.Add(time.Duration(i+1) * time.Hour)
		fragments[i] = model.RouteFragment{
			ID:              "f" + string(rune('a'+i)),
			Origin:          "LON",
			Destination:     "NYC",
			Provider:        "earth-air",
			Mode:            model.ModeFlight,
			DepartAt:        depart,
			ArriveAt:        depart.Add(7 * time.Hour),
			DurationMinutes: 420,
		}
	}
	return fragments
}

func TestSearch_RiskDataFaultDropsOnlyAffectedPlan(t *testing.T) {
	fragments := directFragments(3)
	svc := newService(&mockProviderClient{
		lookupRoutesFunc: func(ctx context.Context, req provider.RoutesRequest) provider.Result[[]model.RouteFragment] {
			return provider.Result[[]model.RouteFragment]{Status: provider.StatusOK, Value: fragments}
		},
		assessRiskFunc: func(ctx context.Context, f model.RouteFragment, weather map[string]any) provider.Result[provider.Assessment] {
			if f.ID == "fb" {
				return provider.Result[provider.Assessment]{Status: provider.StatusDataFault, Reasons: []string{"risk_score must be at most 1"}}
			}
			return provider.Result[provider.Assessment]{Status: provider.StatusOK, Value: risk(0.2)}
		},
	})

	resp, err := svc.Search(context.Background(), request(model.OptimizeFastest))

	require.NoError(t, err)
	require.Len(t, resp.Plans, 2)
	for _, p := range resp.Plans {
		assert.NotEqual(t, "fb", p.Legs[0].ID)
	}
	assert.Equal(t, 1, resp.Stats.DroppedFaulted)
}

func TestSearch_FanOutIsBounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	calls := map[string]int{}
	track := func(id string) func() {
		mu.Lock()
		calls[id]++
		mu.Unlock()
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return func() { inFlight.Add(-1) }
	}

	fragments := directFragments(8)
	svc := newService(&mockProviderClient{
		lookupRoutesFunc: func(ctx context.Context, req provider.RoutesRequest) provider.Result[[]model.RouteFragment] {
			return provider.Result[[]model.RouteFragment]{Status: provider.StatusOK, Value: fragments}
		},
		getPriceFunc: func(ctx context.Context, f model.RouteFragment, passengers int) provider.Result[provider.Quote] {
			defer track(f.ID)()
			return provider.Result[provider.Quote]{Status: provider.StatusOK, Value: quote(100)}
		},
	})

	resp, err := svc.Search(context.Background(), request(model.OptimizeBalanced))

	require.NoError(t, err)
	assert.Len(t, resp.Plans, 8)
	assert.LessOrEqual(t, peak.Load(), int32(testConfig().ProviderMaxConcurrency))
	for _, f := range fragments {
		assert.Equal(t, 1, calls[f.ID], "fragment %s priced more than once", f.ID)
	}
}
