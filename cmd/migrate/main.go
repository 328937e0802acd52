package main

import (
	"context"
	"time"

	mongoMigration "itinera/internal/migrations/mongo"
	"itinera/pkg/config"
)

const JobName = "mongo-migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Mongo migration job", "database", cfg.MongoDatabaseName)
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	if err := mongoMigration.RunMigration(ctx, db, cfg.Log); err != nil {
		cfg.GracefulShutdown()
		cfg.Log.Fatal("Migration failed", "error", err)
	}
	cfg.Log.Info("Migration completed successfully")
}
