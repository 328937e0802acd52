package validators

import (
	"itinera/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
)

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"status",
			"plan",
			"plan_fingerprint",
			"total_price_gbp",
			"holds",
			"hold_expires_at",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"user_id": bson.M{
				"bsonType":  "string",
				"maxLength": 128,
			},

			"status": bson.M{
				"enum": []string{
					string(model.StatusProposed),
					string(model.StatusConfirmed),
					string(model.StatusCancelled),
					string(model.StatusExpired),
				},
			},

			"plan": bson.M{
				"bsonType": "object",
				"required": []string{"legs", "passengers"},
				"properties": bson.M{
					"legs": bson.M{
						"bsonType": "array",
						"minItems": 1,
						"maxItems": 7,
					},
					"passengers": bson.M{
						"bsonType": []string{"int", "long"},
						"minimum":  1,
						"maximum":  9,
					},
				},
			},

			"plan_fingerprint": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"total_price_gbp": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
				"minimum":  0,
			},

			"holds": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"hold_id", "key", "quantity"},
				},
			},

			"passenger_data": bson.M{
				"bsonType": "object",
				"required": []string{"full_name", "email"},
			},

			"payment_reference": bson.M{
				"bsonType": "string",
			},

			"refund_amount_gbp": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
				"minimum":  0,
			},

			"reconciliation_needed": bson.M{
				"bsonType": "bool",
			},

			"hold_expires_at": bson.M{"bsonType": "date"},
			"created_at":      bson.M{"bsonType": "date"},
			"updated_at":      bson.M{"bsonType": "date"},
			"confirmed_at":    bson.M{"bsonType": "date"},
			"cancelled_at":    bson.M{"bsonType": "date"},
			"expired_at":      bson.M{"bsonType": "date"},
		},
	},
}
