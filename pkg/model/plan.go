package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type OptimizationMode string

const (
	OptimizeFastest  OptimizationMode = "fastest"
	OptimizeCheapest OptimizationMode = "cheapest"
	OptimizeGreenest OptimizationMode = "greenest"
	OptimizeBalanced OptimizationMode = "balanced"
)

func (m OptimizationMode) Valid() bool {
	switch m {
	case OptimizeFastest, OptimizeCheapest, OptimizeGreenest, OptimizeBalanced:
		return true
	}
	return false
}

// Leg is a route fragment enriched with provider pricing, availability and risk.
type Leg struct {
	RouteFragment  `bson:",inline"`
	PriceGBP       float64  `json:"price_gbp" bson:"price_gbp" validate:"gte=0"`
	RiskScore      float64  `json:"risk_score" bson:"risk_score" validate:"gte=0,lte=1"`
	EmissionsKg    float64  `json:"emissions_kg" bson:"emissions_kg" validate:"gte=0"`
	AvailableSeats int      `json:"available_seats,omitempty" bson:"available_seats,omitempty" validate:"gte=0"`
	Faults         []string `json:"-" bson:"-"`
}

func (l Leg) Faulted() bool {
	return len(l.Faults) > 0
}

type PlanMetrics struct {
	TotalPriceGBP    float64 `json:"total_price_gbp" bson:"total_price_gbp" validate:"gte=0"`
	TotalDurationMin int     `json:"total_duration_minutes" bson:"total_duration_minutes" validate:"gte=0"`
	TotalEmissionsKg float64 `json:"total_emissions_kg" bson:"total_emissions_kg" validate:"gte=0"`
	RiskScore        float64 `json:"risk_score" bson:"risk_score" validate:"gte=0,lte=1"`
	CompositeScore   float64 `json:"composite_score" bson:"composite_score"`
}

// Plan is one itinerary candidate. Treat it as immutable: re-scoring builds a new Plan.
type Plan struct {
	ID         string           `json:"id" bson:"id" validate:"required"`
	Legs       []Leg            `json:"legs" bson:"legs" validate:"required,min=1,max=7,dive"`
	Passengers int              `json:"passengers" bson:"passengers" validate:"required,min=1,max=9"`
	Mode       OptimizationMode `json:"optimize_for,omitempty" bson:"optimize_for,omitempty"`
	Metrics    PlanMetrics      `json:"metrics" bson:"metrics"`
}

func (p Plan) Faulted() bool {
	for _, leg := range p.Legs {
		if leg.Faulted() {
			return true
		}
	}
	return false
}

// DepartAt is the departure of the first leg.
func (p Plan) DepartAt() time.Time {
	if len(p.Legs) == 0 {
		return time.Time{}
	}
	return p.Legs[0].DepartAt
}

func (p Plan) ArriveAt() time.Time {
	if len(p.Legs) == 0 {
		return time.Time{}
	}
	return p.Legs[len(p.Legs)-1].ArriveAt
}

// Fingerprint identifies a plan by what would actually be travelled,
// independent of scores or the id assigned during a search.
func (p Plan) Fingerprint() string {
	var b strings.Builder
	for _, leg := range p.Legs {
		fmt.Fprintf(&b, "%s|%s|%s|%s|%d;",
			leg.Provider, leg.Origin, leg.Destination, leg.Mode, leg.DepartAt.UTC().Unix())
	}
	fmt.Fprintf(&b, "pax=%d", p.Passengers)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
