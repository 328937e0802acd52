package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bookingserrors "itinera/internal/bookings/errors"
	"itinera/pkg/config"
	mongotx "itinera/pkg/db/mongo"
	"itinera/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const LeaseCollectionName = "Booking_leases"

// LeaseRepository hands out advisory leases. Acquire returns ErrLeaseHeld while
// another owner holds an unexpired lease with the same id.
type LeaseRepository interface {
	Acquire(ctx context.Context, id, owner string, ttl time.Duration) (*model.Lease, error)
	Release(ctx context.Context, id, owner string) error
}

type mongoLeaseRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoLeaseRepository(cfg *config.Config) LeaseRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLeaseRepository{
		cfg:        cfg,
		collection: db.Collection(LeaseCollectionName),
	}
}

func (r *mongoLeaseRepository) Acquire(ctx context.Context, id, owner string, ttl time.Duration) (*model.Lease, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	// The TTL index only reaps documents once a minute; clear a lapsed lease eagerly.
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "expires_at": bson.M{"$lte": now}}); err != nil {
		return nil, fmt.Errorf("failed to clear expired lease: %w", err)
	}

	lease := &model.Lease{
		ID:        id,
		Owner:     owner,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if _, err := r.collection.InsertOne(ctx, lease); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, bookingserrors.ErrLeaseHeld
		}
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return lease, nil
}

func (r *mongoLeaseRepository) Release(ctx context.Context, id, owner string) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

type memoryLeaseRepository struct {
	mu     sync.Mutex
	leases map[string]model.Lease
	now    func() time.Time
}

func NewMemoryLeaseRepository(now func() time.Time) LeaseRepository {
	if now == nil {
		now = time.Now
	}
	return &memoryLeaseRepository{
		leases: make(map[string]model.Lease),
		now:    now,
	}
}

func (r *memoryLeaseRepository) Acquire(ctx context.Context, id, owner string, ttl time.Duration) (*model.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.leases[id]; ok && existing.ExpiresAt.After(now) {
		return nil, bookingserrors.ErrLeaseHeld
	}
	lease := model.Lease{ID: id, Owner: owner, ExpiresAt: now.Add(ttl), CreatedAt: now}
	r.leases[id] = lease
	return &lease, nil
}

func (r *memoryLeaseRepository) Release(ctx context.Context, id, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.leases[id]; ok && existing.Owner == owner {
		delete(r.leases, id)
	}
	return nil
}
