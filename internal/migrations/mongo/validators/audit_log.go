package validators

import "go.mongodb.org/mongo-driver/bson"

var AuditLogValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "booking_id", "entity_type", "action", "timestamp"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":          bson.M{"bsonType": "string"},
			"booking_id":   bson.M{"bsonType": "string", "minLength": 1},
			"entity_type":  bson.M{"bsonType": "string"},
			"action":       bson.M{"bsonType": "string", "minLength": 1},
			"before_state": bson.M{"bsonType": "object"},
			"after_state":  bson.M{"bsonType": "object"},
			"extra_data":   bson.M{"bsonType": "object"},
			"timestamp":    bson.M{"bsonType": "date"},
		},
	},
}

var LeaseValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "owner", "expires_at"},
		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"owner":      bson.M{"bsonType": "string", "minLength": 1},
			"expires_at": bson.M{"bsonType": "date"},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}
