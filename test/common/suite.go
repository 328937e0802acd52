package common

import (
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"itinera/internal/audit"
	bookinghandler "itinera/internal/bookings/handler"
	"itinera/internal/bookings/repository"
	bookingservice "itinera/internal/bookings/service"
	bookingvalidator "itinera/internal/bookings/validator"
	"itinera/internal/inventory"
	inventoryhandler "itinera/internal/inventory/handler"
	"itinera/internal/payment"
	"itinera/internal/provider"
	"itinera/internal/provider/simulator"
	searchhandler "itinera/internal/search/handler"
	searchservice "itinera/internal/search/service"
	searchvalidator "itinera/internal/search/validator"
	"itinera/pkg/app"
	"itinera/pkg/client"
	"itinera/pkg/config"
	"itinera/pkg/logger"
)

type IntegrationTestSuite struct {
	Config *config.Config
	Client *client.ItineraClient
	// Simulator is nil when running against an external TEST_SERVER_URL.
	Simulator *simulator.Simulator
}

// NewIntegrationTestSuite targets TEST_SERVER_URL when set, otherwise it starts the
// provider simulator and the API in-process on memory storage.
func NewIntegrationTestSuite(t *testing.T) *IntegrationTestSuite {
	t.Helper()

	if serverURL := os.Getenv("TEST_SERVER_URL"); serverURL != "" {
		return &IntegrationTestSuite{
			Client: client.NewItineraClient(serverURL),
		}
	}

	cfg := testConfig()

	sim := simulator.New(simulator.Config{Seed: 7}, cfg.Log)
	simCfg := *cfg
	simCfg.RateLimitRequests = 0
	simApp := app.NewApplication(&simCfg)
	simApp.SetApp(sim)
	simServer := httptest.NewServer(simApp.Handler())
	t.Cleanup(simServer.Close)

	providerClient := provider.NewClient(simServer.URL, provider.Options{
		CallTimeout: cfg.ProviderCallTimeout,
		MaxAttempts: cfg.ProviderMaxAttempts,
		BackoffBase: cfg.ProviderBackoffBase,
	}, cfg.Log)

	inv := inventory.NewManager(cfg.InventoryShards, cfg.Log)
	trail := audit.NewMemoryRepository()
	bookingService := bookingservice.NewBookingService(
		repository.NewMemoryBookingRepository(),
		repository.NewMemoryLeaseRepository(nil),
		inv,
		inventory.NewProviderCapacity(providerClient),
		bookingservice.NewProviderPricing(providerClient),
		payment.NewSimulatedGateway(0, cfg.Log),
		audit.NewDirectPublisher(trail),
		trail,
		bookingvalidator.NewBookingValidator(cfg.Log),
		cfg,
	)
	searchService := searchservice.NewSearchService(providerClient, searchvalidator.NewSearchValidator(cfg.Log), cfg)

	apiApp := app.NewApplication(cfg)
	apiApp.SetApp(
		searchhandler.NewSearchHandler(searchService, cfg.Log),
		bookinghandler.NewBookingHandler(bookingService, cfg.Log),
		inventoryhandler.NewInventoryHandler(inv, cfg.Log),
	)
	apiServer := httptest.NewServer(apiApp.Handler())
	t.Cleanup(apiServer.Close)

	return &IntegrationTestSuite{
		Config:    cfg,
		Client:    client.NewItineraClient(apiServer.URL),
		Simulator: sim,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		StorageBackend: config.StorageMemory,
		Port:           "0",

		ProviderCallTimeout:    2 * time.Second,
		ProviderMaxAttempts:    2,
		ProviderBackoffBase:    10 * time.Millisecond,
		ProviderMaxConcurrency: 8,

		SearchMaxCandidates: 20,
		SearchMinConnection: 45 * time.Minute,

		HoldTTL:         5 * time.Minute,
		SweepInterval:   time.Minute,
		SweepBatchSize:  100,
		InventoryShards: 8,

		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    10 * time.Second,
		IdempotencyTTL:    time.Hour,
		MaxRequestSize:    1 << 20,
		ShutdownTimeout:   time.Second,

		Log:    logger.Discard(),
		Client: client.NewClient(),
	}
}
