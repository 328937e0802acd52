package model

import (
	"fmt"
	"time"
)

type TravelMode string

const (
	ModeFlight  TravelMode = "flight"
	ModeOrbital TravelMode = "orbital"
	ModeRail    TravelMode = "rail"
	ModeBus     TravelMode = "bus"
)

const DateLayout = "2006-01-02"

// RouteFragment is one directed hop offered by a provider. It lives for a single search.
type RouteFragment struct {
	ID              string     `json:"id" bson:"id" validate:"required"`
	Origin          string     `json:"origin" bson:"origin" validate:"required,len=3,alphanum"`
	Destination     string     `json:"destination" bson:"destination" validate:"required,len=3,alphanum,nefield=Origin"`
	Provider        string     `json:"provider" bson:"provider" validate:"required,min=2,max=64"`
	Mode            TravelMode `json:"mode" bson:"mode" validate:"required,oneof=flight orbital rail bus"`
	DepartAt        time.Time  `json:"depart_at" bson:"depart_at" validate:"required"`
	ArriveAt        time.Time  `json:"arrive_at" bson:"arrive_at" validate:"required,gtfield=DepartAt"`
	DurationMinutes int        `json:"duration_minutes" bson:"duration_minutes" validate:"required,gt=0"`
}

func (f RouteFragment) Duration() time.Duration {
	return f.ArriveAt.Sub(f.DepartAt)
}

// InventoryKey returns the unit of seat contention this hop draws from.
func (f RouteFragment) InventoryKey() InventoryKey {
	return InventoryKey{
		Origin:      f.Origin,
		Destination: f.Destination,
		Provider:    f.Provider,
		TravelDate:  f.DepartAt.UTC().Format(DateLayout),
	}
}

// InventoryKey is (origin, destination, provider, travel-date).
type InventoryKey struct {
	Origin      string `json:"origin" bson:"origin" validate:"required"`
	Destination string `json:"destination" bson:"destination" validate:"required"`
	Provider    string `json:"provider" bson:"provider" validate:"required"`
	TravelDate  string `json:"travel_date" bson:"travel_date" validate:"required,datetime=2006-01-02"`
}

func (k InventoryKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Provider, k.Origin, k.Destination, k.TravelDate)
}
