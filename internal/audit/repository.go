// Package audit stores the booking audit trail and projects it from the event stream.
package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"itinera/pkg/config"
	mongotx "itinera/pkg/db/mongo"
	"itinera/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Audit_logs"

// Repository persists audit entries. Insert is idempotent on the entry id, so a
// redelivered event never duplicates a trail row.
type Repository interface {
	Insert(ctx context.Context, entry *model.AuditEntry) error
	FindByBooking(ctx context.Context, bookingID string) ([]*model.AuditEntry, error)
}

type mongoRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRepository(cfg *config.Config) Repository {
	return &mongoRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (r *mongoRepository) Insert(ctx context.Context, entry *model.AuditEntry) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": entry.ID},
		bson.M{"$setOnInsert": entry},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *mongoRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.AuditEntry, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []*model.AuditEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}
	return entries, nil
}

type memoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*model.AuditEntry
	seq     map[string]int
	next    int
}

func NewMemoryRepository() Repository {
	return &memoryRepository{
		entries: make(map[string]*model.AuditEntry),
		seq:     make(map[string]int),
	}
}

func (r *memoryRepository) Insert(ctx context.Context, entry *model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[entry.ID]; exists {
		return nil
	}
	stored := *entry
	r.entries[entry.ID] = &stored
	r.seq[entry.ID] = r.next
	r.next++
	return nil
}

// FindByBooking orders by timestamp, then by insertion for entries written in the same instant.
func (r *memoryRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := []*model.AuditEntry{}
	for _, e := range r.entries {
		if e.BookingID == bookingID {
			c := *e
			found = append(found, &c)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].Timestamp.Equal(found[j].Timestamp) {
			return found[i].Timestamp.Before(found[j].Timestamp)
		}
		return r.seq[found[i].ID] < r.seq[found[j].ID]
	})
	return found, nil
}
