package audit_test

import (
	"context"
	"testing"
	"time"

	"itinera/internal/audit"
	"itinera/pkg/model"
	"itinera/test/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMongoRepository_FindByBookingOrdersTrail(t *testing.T) {
	h := testutil.NewMongoHelper(t)
	repo := audit.NewMongoRepository(h.Config())
	ctx := context.Background()
	at := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)

	entries := []*model.AuditEntry{
		{ID: "e3", BookingID: "b1", EntityType: "booking", Action: model.AuditConfirmed, Timestamp: at.Add(time.Minute)},
		{ID: "e1", BookingID: "b1", EntityType: "booking", Action: model.AuditCreated, Timestamp: at},
		{ID: "e2", BookingID: "b1", EntityType: "booking", Action: model.AuditPaymentSucceeded, Timestamp: at.Add(time.Minute)},
		{ID: "e4", BookingID: "b2", EntityType: "booking", Action: model.AuditCreated, Timestamp: at},
	}
	for _, e := range entries {
		require.NoError(t, repo.Insert(ctx, e))
	}
	require.NoError(t, repo.Insert(ctx, &model.AuditEntry{
		ID: "e1", BookingID: "b1", EntityType: "booking", Action: "DUPLICATE", Timestamp: at,
	}))

	trail, err := repo.FindByBooking(ctx, "b1")

	require.NoError(t, err)
	actions := make([]string, len(trail))
	for i, e := range trail {
		actions[i] = e.Action
	}
	assert.Equal(t, []string{model.AuditCreated, model.AuditPaymentSucceeded, model.AuditConfirmed}, actions)
	assert.True(t, trail[0].Timestamp.Equal(at))
	assert.Equal(t, int64(4), h.CountDocuments(t, audit.CollectionName, nil))
	assert.Equal(t, int64(1), h.CountDocuments(t, audit.CollectionName, bson.M{"booking_id": "b2"}))

	empty, err := repo.FindByBooking(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
