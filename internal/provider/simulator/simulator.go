// Package simulator serves the provider tool endpoints with deterministic data and an
// optional chaos mode that injects the faults real providers produce: negative prices,
// missing fields, out-of-range risk, inconsistent seat counts, delays and 5xx replies.
package simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"itinera/internal/provider"
	httputil "itinera/pkg/http"
	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/julienschmidt/httprouter"
)

// Fault forces a specific misbehaviour on a tool regardless of chaos rolls.
type Fault string

const (
	FaultNone          Fault = ""
	FaultError         Fault = "error"
	FaultDelay         Fault = "delay"
	FaultNegativePrice Fault = "negative_price"
	FaultMissingFields Fault = "missing_fields"
	FaultSoldOut       Fault = "sold_out"
	FaultInconsistent  Fault = "inconsistent"
	FaultRiskHigh      Fault = "risk_high"
	FaultRiskLow       Fault = "risk_low"
	FaultPartial       Fault = "partial"
)

const (
	maxSearchDays = 7
	defaultDays   = 1
)

var departureHours = []int{6, 13, 20}

var providerPriceMultipliers = map[string]float64{
	"earth-air": 1.0,
	"northwind": 0.9,
	"orbitalx":  2.0,
	"tulip":     0.85,
}

var providerRisk = map[string]float64{
	"earth-air": 0.1,
	"northwind": 0.15,
	"orbitalx":  0.4,
	"tulip":     0.12,
}

type hop struct {
	from, to string
	provider string
	mode     model.TravelMode
	minutes  int
}

const (
	originToken      = "$O"
	destinationToken = "$D"
)

var itineraries = [][]hop{
	{{originToken, destinationToken, "earth-air", model.ModeFlight, 450}},
	{
		{originToken, "KEF", "earth-air", model.ModeFlight, 180},
		{"KEF", destinationToken, "northwind", model.ModeFlight, 360},
	},
	{
		{originToken, "ISS", "orbitalx", model.ModeOrbital, 90},
		{"ISS", destinationToken, "earth-air", model.ModeFlight, 420},
	},
	{
		{originToken, "AMS", "tulip", model.ModeFlight, 80},
		{"AMS", destinationToken, "tulip", model.ModeFlight, 420},
	},
}

type Config struct {
	Chaos bool
	Seed  int64
	Delay time.Duration
}

type Simulator struct {
	cfg Config
	log *logger.Logger

	mu     sync.Mutex
	rnd    *rand.Rand
	forced map[string]Fault
}

func New(cfg Config, log *logger.Logger) *Simulator {
	return &Simulator{
		cfg:    cfg,
		log:    log,
		rnd:    rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)^0x9e3779b97f4a7c15)),
		forced: make(map[string]Fault),
	}
}

// Force pins a fault on tool until cleared with FaultNone.
func (s *Simulator) Force(tool string, fault Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fault == FaultNone {
		delete(s.forced, tool)
		return
	}
	s.forced[tool] = fault
}

func (s *Simulator) RegisterRoutes(router *httprouter.Router) {
	router.GET("/healthz", s.Healthz)
	router.POST(provider.ToolPath(provider.ToolRoutes), s.Routes)
	router.POST(provider.ToolPath(provider.ToolPricing), s.Pricing)
	router.POST(provider.ToolPath(provider.ToolAvailability), s.Availability)
	router.POST(provider.ToolPath(provider.ToolRisk), s.Risk)
	router.POST(provider.ToolPath(provider.ToolValidation), s.Validation)
}

// pick returns the fault to apply for one call. thresholds maps cumulative
// probabilities to faults and is consulted only in chaos mode.
func (s *Simulator) pick(tool string, thresholds []threshold) Fault {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.forced[tool]; ok {
		return f
	}
	if !s.cfg.Chaos {
		return FaultNone
	}
	roll := s.rnd.Float64()
	for _, t := range thresholds {
		if roll < t.below {
			return t.fault
		}
	}
	return FaultNone
}

type threshold struct {
	below float64
	fault Fault
}

func (s *Simulator) Healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.write(w, "Healthz", http.StatusOK, map[string]any{"ok": true, "chaos": s.cfg.Chaos})
}

func (s *Simulator) Routes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req provider.RoutesRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.reject(w, "Routes", http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if len(req.Origin) != 3 || len(req.Destination) != 3 {
		s.reject(w, "Routes", http.StatusUnprocessableEntity, "origin and destination must be 3-letter codes")
		return
	}
	if req.MaxLayovers < 0 || req.MaxLayovers > 6 {
		s.reject(w, "Routes", http.StatusUnprocessableEntity, "max_layovers must be between 0 and 6")
		return
	}

	fault := s.pick(provider.ToolRoutes, []threshold{
		{0.15, FaultError},
		{0.30, FaultPartial},
	})
	if fault == FaultError {
		s.reject(w, "Routes", http.StatusInternalServerError, "provider timeout")
		return
	}

	fragments := buildFragments(req)
	if fault == FaultPartial {
		fragments = fragments[:len(fragments)/2]
	}
	s.mu.Lock()
	if s.cfg.Chaos && s.rnd.Float64() < 0.4 {
		s.rnd.Shuffle(len(fragments), func(i, j int) { fragments[i], fragments[j] = fragments[j], fragments[i] })
	}
	s.mu.Unlock()

	s.write(w, "Routes", http.StatusOK, provider.RoutesResponse{Fragments: fragments})
}

func (s *Simulator) Pricing(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req provider.PricingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.reject(w, "Pricing", http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if req.PassengerCount <= 0 {
		req.PassengerCount = 1
	}

	switch s.pick(provider.ToolPricing, []threshold{
		{0.10, FaultDelay},
		{0.15, FaultNegativePrice},
		{0.20, FaultMissingFields},
	}) {
	case FaultDelay:
		s.stall(r.Context())
		s.reject(w, "Pricing", http.StatusGatewayTimeout, "Pricing service timeout")
		return
	case FaultError:
		s.reject(w, "Pricing", http.StatusServiceUnavailable, "Pricing service unavailable")
		return
	case FaultNegativePrice:
		s.write(w, "Pricing", http.StatusOK, provider.Quote{
			BasePrice: ptr(-100.0),
			Taxes:     ptr(20.0),
			Fees:      ptr(10.0),
			Total:     ptr(-70.0),
			Currency:  provider.CurrencyGBP,
		})
		return
	case FaultMissingFields:
		s.write(w, "Pricing", http.StatusOK, provider.Quote{Total: ptr(250.0)})
		return
	}

	s.write(w, "Pricing", http.StatusOK, Quote(req))
}

// Quote prices a request with the simulator's deterministic model.
func Quote(req provider.PricingRequest) provider.Quote {
	base := 100.0
	if req.Mode == model.ModeOrbital {
		base = 500.0
	}
	if m, ok := providerPriceMultipliers[req.Provider]; ok {
		base *= m
	}
	if wd := req.Date.Weekday(); !req.Date.IsZero() && (wd == time.Saturday || wd == time.Sunday) {
		base *= 1.3
	}
	base += float64(hash32(req.Origin+req.Destination) % 100)

	taxes := base * 0.20
	fees := 15.0
	if req.Mode == model.ModeOrbital {
		fees = 25.0
	}
	pax := max(req.PassengerCount, 1)
	total := (base + taxes + fees) * float64(pax)

	return provider.Quote{
		BasePrice: ptr(round2(base)),
		Taxes:     ptr(round2(taxes)),
		Fees:      ptr(round2(fees)),
		Total:     ptr(round2(total)),
		Currency:  provider.CurrencyGBP,
	}
}

func (s *Simulator) Availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req provider.AvailabilityRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.reject(w, "Availability", http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	switch s.pick(provider.ToolAvailability, []threshold{
		{0.05, FaultError},
		{0.15, FaultSoldOut},
		{0.25, FaultInconsistent},
	}) {
	case FaultError:
		s.reject(w, "Availability", http.StatusServiceUnavailable, "Availability service unavailable")
		return
	case FaultDelay:
		s.stall(r.Context())
		s.reject(w, "Availability", http.StatusGatewayTimeout, "Availability service timeout")
		return
	case FaultSoldOut:
		capacity := capacityFor(req.Mode)
		s.write(w, "Availability", http.StatusOK, provider.Availability{
			AvailableSeats: ptr(0),
			BookedCount:    ptr(capacity),
			HoldCount:      ptr(0),
			TotalCapacity:  ptr(capacity),
			Status:         "sold_out",
		})
		return
	case FaultInconsistent:
		s.write(w, "Availability", http.StatusOK, provider.Availability{
			AvailableSeats: ptr(10),
			BookedCount:    ptr(50),
			HoldCount:      ptr(100),
			TotalCapacity:  ptr(50),
			Status:         "available",
		})
		return
	case FaultMissingFields:
		s.write(w, "Availability", http.StatusOK, provider.Availability{AvailableSeats: ptr(12)})
		return
	}

	s.write(w, "Availability", http.StatusOK, Seats(req))
}

// Seats reports the simulator's deterministic availability for a leg.
func Seats(req provider.AvailabilityRequest) provider.Availability {
	capacity := capacityFor(req.Mode)
	key := fmt.Sprintf("%s:%s:%s", req.Provider, req.Origin, req.Destination)
	booked := int(hash32(key) % uint32(capacity/2))
	held := int(hash32(key+":held") % uint32(capacity/4))
	available := capacity - booked - held

	status := "available"
	if available <= 10 {
		status = "limited"
	}
	return provider.Availability{
		AvailableSeats: ptr(available),
		BookedCount:    ptr(booked),
		HoldCount:      ptr(held),
		TotalCapacity:  ptr(capacity),
		Status:         status,
	}
}

func (s *Simulator) Risk(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req provider.RiskRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.reject(w, "Risk", http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	switch s.pick(provider.ToolRisk, []threshold{
		{0.20, FaultRiskHigh},
		{0.30, FaultRiskLow},
		{0.35, FaultMissingFields},
	}) {
	case FaultRiskHigh:
		s.write(w, "Risk", http.StatusOK, provider.Assessment{
			RiskScore:      ptr(1.5),
			Factors:        []provider.RiskFactor{{Name: "unknown", Contribution: 0.8}},
			Recommendation: "avoid",
		})
		return
	case FaultRiskLow:
		s.write(w, "Risk", http.StatusOK, provider.Assessment{
			RiskScore:      ptr(-0.2),
			Factors:        []provider.RiskFactor{},
			Recommendation: "safe",
		})
		return
	case FaultMissingFields:
		s.write(w, "Risk", http.StatusOK, provider.Assessment{RiskScore: ptr(0.3)})
		return
	case FaultError:
		s.reject(w, "Risk", http.StatusInternalServerError, "Risk service error")
		return
	case FaultDelay:
		s.stall(r.Context())
		s.reject(w, "Risk", http.StatusGatewayTimeout, "Risk service timeout")
		return
	}

	s.write(w, "Risk", http.StatusOK, Assess(req))
}

// Assess scores a leg with the simulator's deterministic risk model.
func Assess(req provider.RiskRequest) provider.Assessment {
	base, ok := providerRisk[req.Provider]
	if !ok {
		base = 0.2
	}
	modeRisk := 0.1
	if req.Mode == model.ModeOrbital {
		modeRisk = 0.3
	}
	weatherRisk := 0.0
	if severe, _ := req.WeatherData["severe"].(bool); severe {
		weatherRisk = 0.2
	}
	total := math.Min(base+modeRisk+weatherRisk, 1.0)

	factors := []provider.RiskFactor{
		{Name: "provider_reliability", Contribution: base},
		{Name: "transport_mode", Contribution: modeRisk},
	}
	if weatherRisk > 0 {
		factors = append(factors, provider.RiskFactor{Name: "weather_conditions", Contribution: weatherRisk})
	}
	score := math.Round(total*1000) / 1000
	return provider.Assessment{
		RiskScore:      ptr(score),
		Factors:        factors,
		Recommendation: provider.Recommend(score),
	}
}

func (s *Simulator) Validation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req provider.SchemaCheckRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		s.reject(w, "Validation", http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	switch s.pick(provider.ToolValidation, []threshold{
		{0.10, FaultDelay},
		{0.15, FaultInconsistent},
	}) {
	case FaultDelay:
		s.stall(r.Context())
		s.reject(w, "Validation", http.StatusGatewayTimeout, "Validation timeout")
		return
	case FaultInconsistent:
		s.write(w, "Validation", http.StatusOK, provider.SchemaCheckResponse{
			Valid:  false,
			Errors: []provider.SchemaError{{Path: "unknown", Message: "Spurious validation error"}},
		})
		return
	}

	errs := checkSchema(req.SchemaName, req.Object)
	s.write(w, "Validation", http.StatusOK, provider.SchemaCheckResponse{Valid: len(errs) == 0, Errors: errs})
}

func checkSchema(name string, obj map[string]any) []provider.SchemaError {
	errs := []provider.SchemaError{}
	switch name {
	case "Plan":
		if legs, ok := obj["legs"]; !ok {
			errs = append(errs, provider.SchemaError{Path: "legs", Message: "Required field 'legs' missing"})
		} else if _, isList := legs.([]any); !isList {
			errs = append(errs, provider.SchemaError{Path: "legs", Message: "Field 'legs' must be a list"})
		}
		metrics, ok := obj["metrics"].(map[string]any)
		if !ok {
			errs = append(errs, provider.SchemaError{Path: "metrics", Message: "Required field 'metrics' missing"})
		} else if price, _ := metrics["total_price_gbp"].(float64); price < 0 || metrics["total_price_gbp"] == nil {
			errs = append(errs, provider.SchemaError{Path: "metrics.total_price_gbp", Message: "Price must be non-negative"})
		}
	case "Booking":
		if _, ok := obj["id"]; !ok {
			errs = append(errs, provider.SchemaError{Path: "id", Message: "Required field 'id' missing"})
		}
		if _, ok := obj["status"]; !ok {
			errs = append(errs, provider.SchemaError{Path: "status", Message: "Required field 'status' missing"})
		}
	}
	return errs
}

// buildFragments lays the hop templates onto a timetable covering the request window.
func buildFragments(req provider.RoutesRequest) []model.RouteFragment {
	fragments := []model.RouteFragment{}
	if req.Origin == req.Destination {
		return fragments
	}

	start, end := req.DepartAfter.UTC(), req.ArriveBefore.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	if end.IsZero() || !end.After(start) {
		end = start.AddDate(0, 0, defaultDays)
	}
	firstDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	seen := make(map[string]struct{})
	for _, itinerary := range itineraries {
		if len(itinerary)-1 > req.MaxLayovers {
			continue
		}
		for _, h := range itinerary {
			from, to := resolve(h.from, req), resolve(h.to, req)
			if from == to {
				continue
			}
			offset := time.Duration(hash32(h.provider+from+to)%45) * time.Minute
			for day := firstDay; day.Before(end) && day.Sub(firstDay) < maxSearchDays*24*time.Hour; day = day.AddDate(0, 0, 1) {
				for _, hour := range departureHours {
					depart := day.Add(time.Duration(hour)*time.Hour + offset)
					arrive := depart.Add(time.Duration(h.minutes) * time.Minute)
					if depart.Before(start) || arrive.After(end) {
						continue
					}
					f := model.RouteFragment{
						ID:              fragmentID(h.provider, from, to, depart),
						Origin:          from,
						Destination:     to,
						Provider:        h.provider,
						Mode:            h.mode,
						DepartAt:        depart,
						ArriveAt:        arrive,
						DurationMinutes: h.minutes,
					}
					if _, dup := seen[f.ID]; dup {
						continue
					}
					seen[f.ID] = struct{}{}
					fragments = append(fragments, f)
				}
			}
		}
	}
	return fragments
}

func resolve(token string, req provider.RoutesRequest) string {
	switch token {
	case originToken:
		return req.Origin
	case destinationToken:
		return req.Destination
	}
	return token
}

func fragmentID(providerName, from, to string, depart time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", providerName, from, to, depart.Unix())))
	return "frag_" + hex.EncodeToString(sum[:8])
}

func capacityFor(mode model.TravelMode) int {
	if mode == model.ModeFlight {
		return 200
	}
	return 50
}

func (s *Simulator) stall(ctx context.Context) {
	t := time.NewTimer(s.cfg.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Simulator) write(w http.ResponseWriter, handler string, status int, body any) {
	if err := httputil.WriteJSON(w, status, body); err != nil {
		s.log.Error("failed to write JSON response", "handler", handler, "operation", "WriteJSON", "error", err)
	}
}

func (s *Simulator) reject(w http.ResponseWriter, handler string, status int, detail string) {
	s.write(w, handler, status, map[string]string{"detail": detail})
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr[T any](v T) *T {
	return &v
}
