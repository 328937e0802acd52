// Package scoring ranks candidate plans under an optimization mode.
//
// Each raw metric is min-max normalized across the candidate set, so 0 is the best value
// seen for the request and 1 the worst. A metric every candidate shares contributes 0.
// Lower composite scores rank first.
package scoring

import (
	"math"
	"sort"

	"itinera/pkg/model"
)

const epsilon = 1e-9

// Emission factors in kg CO2e per passenger-hour.
var emissionFactors = map[model.TravelMode]float64{
	model.ModeFlight:  90,
	model.ModeOrbital: 2500,
	model.ModeRail:    6,
	model.ModeBus:     12,
}

type metric int

const (
	metricPrice metric = iota
	metricDuration
	metricEmissions
	metricRisk
	metricCount
)

// Weights is the weight vector of one optimization mode. In a dominated mode the dominant
// metric decides the order outright and the weighted blend only separates plans tied on it.
type Weights struct {
	Price     float64
	Duration  float64
	Emissions float64
	Risk      float64
	dominant  metric
	dominated bool
}

func (w Weights) vector() [metricCount]float64 {
	return [metricCount]float64{w.Price, w.Duration, w.Emissions, w.Risk}
}

var modeWeights = map[model.OptimizationMode]Weights{
	model.OptimizeFastest:  {Price: 0.1, Duration: 0.7, Emissions: 0.1, Risk: 0.1, dominant: metricDuration, dominated: true},
	model.OptimizeCheapest: {Price: 0.7, Duration: 0.1, Emissions: 0.1, Risk: 0.1, dominant: metricPrice, dominated: true},
	model.OptimizeGreenest: {Price: 0.1, Duration: 0.1, Emissions: 0.7, Risk: 0.1, dominant: metricEmissions, dominated: true},
	model.OptimizeBalanced: {Price: 0.25, Duration: 0.25, Emissions: 0.25, Risk: 0.25},
}

// WeightsFor returns the weight vector for mode, falling back to balanced.
func WeightsFor(mode model.OptimizationMode) Weights {
	if w, ok := modeWeights[mode]; ok {
		return w
	}
	return modeWeights[model.OptimizeBalanced]
}

// EmissionsKg estimates the footprint of one hop for the whole party.
func EmissionsKg(mode model.TravelMode, hours float64, passengers int) float64 {
	factor, ok := emissionFactors[mode]
	if !ok {
		factor = emissionFactors[model.ModeFlight]
	}
	return round(factor*hours*float64(max(passengers, 1)), 2)
}

// AggregateRisk combines independent leg risks as 1 - Π(1 - r), clamped to [0,1].
func AggregateRisk(legs []model.Leg) float64 {
	survive := 1.0
	for _, leg := range legs {
		survive *= 1 - clamp01(leg.RiskScore)
	}
	return clamp01(1 - survive)
}

// Measure computes the raw metrics of a plan. Duration is door to door, layovers included.
func Measure(p model.Plan) model.PlanMetrics {
	var m model.PlanMetrics
	for _, leg := range p.Legs {
		m.TotalPriceGBP += leg.PriceGBP
		m.TotalEmissionsKg += leg.EmissionsKg
	}
	m.TotalPriceGBP = round(m.TotalPriceGBP, 2)
	m.TotalEmissionsKg = round(m.TotalEmissionsKg, 2)
	if len(p.Legs) > 0 {
		m.TotalDurationMin = int(p.ArriveAt().Sub(p.DepartAt()).Minutes())
	}
	m.RiskScore = round(AggregateRisk(p.Legs), 4)
	return m
}

// Rank scores plans under mode and returns new plans sorted best first.
// Plans with any faulted leg are dropped; the inputs are not modified.
func Rank(plans []model.Plan, mode model.OptimizationMode) []model.Plan {
	ranked := make([]model.Plan, 0, len(plans))
	for _, p := range plans {
		if p.Faulted() || len(p.Legs) == 0 {
			continue
		}
		scored := p
		scored.Legs = append([]model.Leg(nil), p.Legs...)
		scored.Mode = mode
		scored.Metrics = Measure(p)
		ranked = append(ranked, scored)
	}
	if len(ranked) == 0 {
		return ranked
	}

	raw := make([][metricCount]float64, len(ranked))
	for i, p := range ranked {
		raw[i] = [metricCount]float64{
			p.Metrics.TotalPriceGBP,
			float64(p.Metrics.TotalDurationMin),
			p.Metrics.TotalEmissionsKg,
			p.Metrics.RiskScore,
		}
	}
	norm := normalize(raw)

	weights := WeightsFor(mode)
	for i := range ranked {
		ranked[i].Metrics.CompositeScore = composite(norm, i, weights)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if d := a.Metrics.CompositeScore - b.Metrics.CompositeScore; math.Abs(d) > epsilon {
			return d < 0
		}
		if len(a.Legs) != len(b.Legs) {
			return len(a.Legs) < len(b.Legs)
		}
		if d := a.Metrics.TotalPriceGBP - b.Metrics.TotalPriceGBP; math.Abs(d) > epsilon {
			return d < 0
		}
		return a.ID < b.ID
	})
	return ranked
}

func normalize(raw [][metricCount]float64) [][metricCount]float64 {
	out := make([][metricCount]float64, len(raw))
	for m := metric(0); m < metricCount; m++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, r := range raw {
			lo = math.Min(lo, r[m])
			hi = math.Max(hi, r[m])
		}
		span := hi - lo
		for i, r := range raw {
			if span <= epsilon {
				out[i][m] = 0
				continue
			}
			out[i][m] = (r[m] - lo) / span
		}
	}
	return out
}

// composite for a dominated mode keeps the dominant metric decisive: the blended term is
// scaled below half of the smallest gap between distinct dominant values.
func composite(norm [][metricCount]float64, i int, w Weights) float64 {
	vec := w.vector()
	blend := 0.0
	for m := metric(0); m < metricCount; m++ {
		blend += vec[m] * norm[i][m]
	}
	if !w.dominated {
		return blend
	}

	total := 0.0
	for m := metric(0); m < metricCount; m++ {
		if m != w.dominant {
			total += vec[m]
		}
	}
	secondary := 0.0
	if total > 0 {
		for m := metric(0); m < metricCount; m++ {
			if m != w.dominant {
				secondary += vec[m] * norm[i][m]
			}
		}
		secondary /= total
	}
	return norm[i][w.dominant] + smallestGap(norm, w.dominant)/2*secondary
}

func smallestGap(norm [][metricCount]float64, m metric) float64 {
	values := make([]float64, len(norm))
	for i := range norm {
		values[i] = norm[i][m]
	}
	sort.Float64s(values)
	gap := 1.0
	for i := 1; i < len(values); i++ {
		if d := values[i] - values[i-1]; d > epsilon && d < gap {
			gap = d
		}
	}
	return gap
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
