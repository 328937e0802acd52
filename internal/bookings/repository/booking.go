package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "itinera/internal/bookings/errors"
	"itinera/pkg/config"
	mongotx "itinera/pkg/db/mongo"
	"itinera/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Bookings"
)

type BookingRepository interface {
	// Create inserts b unless the same user already holds an active booking with
	// the same plan fingerprint, in which case it returns ErrDuplicate.
	Create(ctx context.Context, b *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	Find(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, error)
	Count(ctx context.Context, filter model.BookingFilter) (int64, error)
	FindActiveByFingerprint(ctx context.Context, userID, fingerprint string) ([]*model.Booking, error)
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error)
	// FindActive returns every booking that still holds or consumes seats.
	FindActive(ctx context.Context) ([]*model.Booking, error)
	// Transition replaces b only if the stored status still equals from. Moving from
	// from to b.Status must be a legal lifecycle step; from == b.Status updates flags only.
	Transition(ctx context.Context, b *model.Booking, from model.BookingStatus) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoBookingRepository) Create(ctx context.Context, b *model.Booking) error {
	return r.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if b.UserID != "" {
			n, err := r.collection.CountDocuments(sessCtx, activeFingerprintFilter(b.UserID, b.PlanFingerprint))
			if err != nil {
				return fmt.Errorf("failed to check for duplicates: %w", err)
			}
			if n > 0 {
				return bookingserrors.ErrDuplicate
			}
		}

		if _, err := r.collection.InsertOne(sessCtx, b); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return bookingserrors.ErrDuplicate
			}
			return fmt.Errorf("failed to create booking: %w", err)
		}
		return nil
	})
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return nil, err
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) Find(ctx context.Context, filter model.BookingFilter) ([]*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(filter.Offset)
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}

	return bookings, nil
}

func (r *mongoBookingRepository) Count(ctx context.Context, filter model.BookingFilter) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) FindActiveByFingerprint(ctx context.Context, userID, fingerprint string) ([]*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, activeFingerprintFilter(userID, fingerprint))
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings by fingerprint: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoBookingRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":          model.StatusProposed,
		"hold_expires_at": bson.M{"$lt": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "hold_expires_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired holds: %w", err)
	}
	defer cursor.Close(ctx)

	var bookings []*model.Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoBookingRepository) FindActive(ctx context.Context) ([]*model.Booking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"status": bson.M{"$in": model.ActiveStatuses}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find active bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (r *mongoBookingRepository) Transition(ctx context.Context, b *model.Booking, from model.BookingStatus) error {
	if err := checkTransition(from, b.Status); err != nil {
		return err
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.ReplaceOne(ctx, bson.M{"_id": b.ID, "status": from}, b)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": b.ID})
	if err != nil {
		return fmt.Errorf("failed to check booking existence: %w", err)
	}
	if n == 0 {
		return bookingserrors.ErrNotFound
	}
	return bookingserrors.ErrStatusConflict
}

func buildFilter(f model.BookingFilter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.UserID != "" {
		filter["user_id"] = f.UserID
	}
	return filter
}

func activeFingerprintFilter(userID, fingerprint string) bson.M {
	return bson.M{
		"user_id":          userID,
		"plan_fingerprint": fingerprint,
		"status":           bson.M{"$in": model.ActiveStatuses},
	}
}

func checkTransition(from, to model.BookingStatus) error {
	if from == to || model.CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", bookingserrors.ErrInvalidTransition, from, to)
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", bookingserrors.ErrInvalidID, id)
	}
	return nil
}
