package main

import (
	"itinera/internal/provider/simulator"
	"itinera/pkg/app"
	"itinera/pkg/config"
)

const ServiceName = "provider-sim"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Port = cfg.SimPort

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}
	// The API fans out many calls from one address.
	cfg.RateLimitRequests = 0

	cfg.Log.Info("Starting provider simulator",
		"chaos", cfg.SimChaos,
		"seed", cfg.SimSeed,
		"delay", cfg.SimDelay,
	)

	sim := simulator.New(simulator.Config{
		Chaos: cfg.SimChaos,
		Seed:  cfg.SimSeed,
		Delay: cfg.SimDelay,
	}, cfg.Log)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(sim)
	serverApp.Run()
}
