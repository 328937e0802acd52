package mongo

import (
	"testing"

	"itinera/internal/migrations/mongo/validators"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCollections(t *testing.T) {
	names := map[string]bool{}
	for _, def := range Collections() {
		names[def.Name] = true
		assert.NotEmpty(t, def.Indexes, def.Name)
		schema, ok := def.Validator["$jsonSchema"].(bson.M)
		if assert.True(t, ok, def.Name) {
			assert.NotEmpty(t, schema["required"], def.Name)
		}
	}
	assert.Equal(t, map[string]bool{"Bookings": true, "Audit_logs": true, "Booking_leases": true}, names)
}

func TestBookingValidator_StatusEnum(t *testing.T) {
	schema := validators.BookingValidator["$jsonSchema"].(bson.M)
	status := schema["properties"].(bson.M)["status"].(bson.M)
	assert.ElementsMatch(t, []string{"PROPOSED", "CONFIRMED", "CANCELLED", "EXPIRED"}, status["enum"])
}
