// Package testutil provides a Mongo harness for repository tests. Tests using it are
// skipped unless MONGO_URI points at a replica set, which transactions require.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	migrations "itinera/internal/migrations/mongo"
	"itinera/pkg/client"
	"itinera/pkg/config"
	"itinera/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	EnvMongoURI       = "MONGO_URI"
	ConnectionTimeout = 10 * time.Second
	OperationTimeout  = 5 * time.Second
)

type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
	DBName   string
}

// NewMongoHelper connects to MONGO_URI and creates a migrated, throwaway database that
// is dropped when the test ends.
func NewMongoHelper(t *testing.T) *MongoHelper {
	t.Helper()

	uri := os.Getenv(EnvMongoURI)
	if uri == "" {
		t.Skip("MONGO_URI not set; skipping Mongo-backed test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	dbName := "itinera_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	h := &MongoHelper{
		Client:   mc,
		Database: mc.Database(dbName),
		DBName:   dbName,
	}
	t.Cleanup(func() { h.close(t) })

	if err := migrations.RunMigration(ctx, h.Database, logger.Discard()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return h
}

// Config returns a configuration whose Mongo client and database are the helper's.
func (m *MongoHelper) Config() *config.Config {
	c := client.NewClient()
	c.Mongo = m.Client
	return &config.Config{
		StorageBackend:    config.StorageMongo,
		MongoDatabaseName: m.DBName,
		ReadTimeout:       OperationTimeout,
		WriteTimeout:      OperationTimeout,
		Log:               logger.Discard(),
		Client:            c,
	}
}

func (m *MongoHelper) CountDocuments(t *testing.T, collectionName string, filter bson.M) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	if filter == nil {
		filter = bson.M{}
	}
	count, err := m.Database.Collection(collectionName).CountDocuments(ctx, filter)
	if err != nil {
		t.Fatalf("failed to count documents in %s: %v", collectionName, err)
	}
	return count
}

func (m *MongoHelper) close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	if err := m.Database.Drop(ctx); err != nil {
		t.Logf("warning: failed to drop test database %s: %v", m.DBName, err)
	}
	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("warning: failed to disconnect from MongoDB: %v", err)
	}
}
