package provider

import (
	"fmt"
	"strings"
	"time"

	"itinera/pkg/model"
)

const (
	ToolRoutes       = "routes.get"
	ToolPricing      = "pricing.calculate"
	ToolAvailability = "availability.check"
	ToolRisk         = "risk.assess"
	ToolValidation   = "validation.check_schema"

	CurrencyGBP = "GBP"
)

// ToolPath is the HTTP path a provider tool is served on.
func ToolPath(tool string) string {
	return "/tools/" + tool
}

type Status string

const (
	StatusOK          Status = "ok"
	StatusDataFault   Status = "data_fault"
	StatusTimeout     Status = "timeout"
	StatusUnavailable Status = "unavailable"
)

// Result is the only shape provider output takes once it crosses the client boundary.
// Value is meaningful only when Status is StatusOK.
type Result[T any] struct {
	Value   T
	Status  Status
	Reasons []string
	Err     error
}

func (r Result[T]) OK() bool {
	return r.Status == StatusOK
}

func (r Result[T]) String() string {
	if r.OK() {
		return string(r.Status)
	}
	if len(r.Reasons) > 0 {
		return fmt.Sprintf("%s: %s", r.Status, strings.Join(r.Reasons, "; "))
	}
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Status, r.Err)
	}
	return string(r.Status)
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v, Status: StatusOK}
}

func fault[T any](reasons ...string) Result[T] {
	return Result[T]{Status: StatusDataFault, Reasons: reasons}
}

func failed[T any](status Status, err error) Result[T] {
	return Result[T]{Status: status, Err: err}
}

// RoutesRequest asks for every hop that could take part in an itinerary.
type RoutesRequest struct {
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	MaxLayovers  int       `json:"max_layovers"`
	DepartAfter  time.Time `json:"depart_after"`
	ArriveBefore time.Time `json:"arrive_before"`
}

type RoutesResponse struct {
	Fragments []model.RouteFragment `json:"fragments" validate:"dive"`
}

type PricingRequest struct {
	Origin         string           `json:"origin"`
	Destination    string           `json:"destination"`
	Mode           model.TravelMode `json:"mode"`
	Provider       string           `json:"provider"`
	Date           time.Time        `json:"date"`
	PassengerCount int              `json:"passenger_count"`
}

// Quote is a priced leg. Pointer fields distinguish a missing value from zero.
type Quote struct {
	BasePrice *float64 `json:"base_price,omitempty" validate:"required,gte=0"`
	Taxes     *float64 `json:"taxes,omitempty" validate:"required,gte=0"`
	Fees      *float64 `json:"fees,omitempty" validate:"required,gte=0"`
	Total     *float64 `json:"total,omitempty" validate:"required,gte=0"`
	Currency  string   `json:"currency,omitempty" validate:"required,eq=GBP"`
}

func (q Quote) TotalGBP() float64 {
	if q.Total == nil {
		return 0
	}
	return *q.Total
}

type AvailabilityRequest struct {
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	Depart      time.Time        `json:"depart"`
	Mode        model.TravelMode `json:"mode"`
	Provider    string           `json:"provider"`
}

type Availability struct {
	AvailableSeats *int   `json:"available_seats,omitempty" validate:"required,gte=0"`
	BookedCount    *int   `json:"booked_count,omitempty" validate:"required,gte=0"`
	HoldCount      *int   `json:"hold_count,omitempty" validate:"required,gte=0"`
	TotalCapacity  *int   `json:"total_capacity,omitempty" validate:"required,gt=0"`
	Status         string `json:"status,omitempty" validate:"omitempty,oneof=available limited sold_out"`
}

func (a Availability) Seats() int {
	if a.AvailableSeats == nil {
		return 0
	}
	return *a.AvailableSeats
}

type RiskRequest struct {
	Provider    string           `json:"provider"`
	Mode        model.TravelMode `json:"mode"`
	Route       string           `json:"route"`
	Date        time.Time        `json:"date"`
	WeatherData map[string]any   `json:"weather_data,omitempty"`
}

type RiskFactor struct {
	Name         string  `json:"name" validate:"required"`
	Contribution float64 `json:"contribution" validate:"gte=0,lte=1"`
}

type Assessment struct {
	RiskScore      *float64     `json:"risk_score,omitempty" validate:"required,gte=0,lte=1"`
	Factors        []RiskFactor `json:"factors,omitempty" validate:"dive"`
	Recommendation string       `json:"recommendation,omitempty"`
}

func (a Assessment) Score() float64 {
	if a.RiskScore == nil {
		return 0
	}
	return *a.RiskScore
}

type SchemaCheckRequest struct {
	Object     map[string]any `json:"object"`
	SchemaName string         `json:"schema_name"`
}

type SchemaError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type SchemaCheckResponse struct {
	Valid  bool          `json:"valid"`
	Errors []SchemaError `json:"errors"`
}

type toolError struct {
	Detail string `json:"detail"`
}
