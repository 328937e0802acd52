package main

import (
	"context"

	"itinera/internal/audit"
	"itinera/internal/bookings/events"
	bookinghandler "itinera/internal/bookings/handler"
	"itinera/internal/bookings/repository"
	bookingservice "itinera/internal/bookings/service"
	bookingvalidator "itinera/internal/bookings/validator"
	"itinera/internal/health"
	"itinera/internal/inventory"
	inventoryhandler "itinera/internal/inventory/handler"
	"itinera/internal/payment"
	"itinera/internal/provider"
	searchhandler "itinera/internal/search/handler"
	searchservice "itinera/internal/search/service"
	searchvalidator "itinera/internal/search/validator"
	"itinera/pkg/app"
	"itinera/pkg/config"
	"itinera/pkg/contracts"
	"itinera/pkg/kafka"
	kafka_config "itinera/pkg/kafka/config"
	"itinera/pkg/kafka/middleware"
)

const ServiceName = "itinera-api"

type storage struct {
	bookings repository.BookingRepository
	leases   repository.LeaseRepository
	audit    audit.Repository
}

func main() {
	cfg := config.Load(ServiceName)

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}

	cfg.LogConfiguration()

	cfg.Log.Info("Starting Itinera API")
	store := initStorage(cfg)
	serverApp := app.NewApplication(cfg)

	providerClient := provider.NewClient(cfg.ProviderBaseURL, provider.Options{
		CallTimeout: cfg.ProviderCallTimeout,
		MaxAttempts: cfg.ProviderMaxAttempts,
		BackoffBase: cfg.ProviderBackoffBase,
	}, cfg.Log)

	inv := inventory.NewManager(cfg.InventoryShards, cfg.Log)
	publisher := initAuditPipeline(cfg, serverApp, store.audit)

	bookingService := bookingservice.NewBookingService(
		store.bookings,
		store.leases,
		inv,
		inventory.NewProviderCapacity(providerClient),
		bookingservice.NewProviderPricing(providerClient),
		payment.NewSimulatedGateway(cfg.PaymentFailureRate, cfg.Log),
		publisher,
		store.audit,
		bookingvalidator.NewBookingValidator(cfg.Log),
		cfg,
	)
	searchService := searchservice.NewSearchService(
		providerClient,
		searchvalidator.NewSearchValidator(cfg.Log),
		cfg,
	)

	if _, err := bookingService.RestoreInventory(context.Background()); err != nil {
		cfg.GracefulShutdown()
		cfg.Log.Fatal("Failed to restore seat inventory", "error", err)
	}

	serverApp.AddWorker("booking-expiry-sweeper", bookingservice.NewSweeper(bookingService, cfg.SweepInterval, cfg.Log))
	serverApp.OnShutdown(func(context.Context) { cfg.GracefulShutdown() })

	serverApp.SetApp(
		searchhandler.NewSearchHandler(searchService, cfg.Log),
		bookinghandler.NewBookingHandler(bookingService, cfg.Log),
		inventoryhandler.NewInventoryHandler(inv, cfg.Log),
	)
	serverApp.Run()
}

func initStorage(cfg *config.Config) storage {
	if cfg.UsesMongo() {
		cfg.SetMongo()
		cfg.Log.Info("Using Mongo storage", "database", cfg.MongoDatabaseName)
		return storage{
			bookings: repository.NewMongoBookingRepository(cfg),
			leases:   repository.NewMongoLeaseRepository(cfg),
			audit:    audit.NewMongoRepository(cfg),
		}
	}
	cfg.Log.Warn("Using in-memory storage; bookings are lost on restart")
	return storage{
		bookings: repository.NewMemoryBookingRepository(),
		leases:   repository.NewMemoryLeaseRepository(nil),
		audit:    audit.NewMemoryRepository(),
	}
}

// initAuditPipeline publishes audit entries through Kafka when enabled, with a projector
// consumer writing them to the trail; otherwise entries are written directly.
func initAuditPipeline(cfg *config.Config, serverApp *app.Application, repo audit.Repository) events.Publisher {
	if !cfg.KafkaEnabled {
		return audit.NewDirectPublisher(repo)
	}

	kcfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log)

	metrics := middleware.NewMetrics()

	producer, err := kafka.NewProducer(kcfg, cfg.KafkaAuditTopic, cfg.KafkaAuditDLQ, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(metrics.ProducerMiddleware())

	consumer, err := kafka.NewConsumer(kcfg, cfg.KafkaAuditTopic, cfg.KafkaAuditGroup, cfg.KafkaAuditDLQ, audit.NewProjector(repo, cfg.Log).Handle, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(metrics.ConsumerMiddleware())

	serverApp.AddReadinessCheck("kafka", health.KafkaCheck(kcfg.Brokers))
	serverApp.AddWorker("audit-projector", contracts.WorkerFunc(func(ctx context.Context) {
		if err := consumer.Start(ctx); err != nil {
			cfg.Log.Error("Audit projector stopped", "error", err)
		}
	}))
	serverApp.OnShutdown(func(context.Context) {
		if err := producer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka producer", "error", err)
		}
		if err := consumer.Close(); err != nil {
			cfg.Log.Error("Failed to close Kafka consumer", "error", err)
		}
		cfg.Log.Info("Kafka audit pipeline closed", "metrics", metrics.Snapshot())
	})

	cfg.Log.Info("Kafka audit pipeline enabled", "topic", cfg.KafkaAuditTopic, "group", cfg.KafkaAuditGroup)
	return audit.NewKafkaPublisher(producer)
}
