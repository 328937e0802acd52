package service

import (
	"context"

	"itinera/internal/provider"
	"itinera/internal/search/scoring"
	"itinera/pkg/model"

	"golang.org/x/sync/errgroup"
)

// legData is what the providers said about one fragment.
type legData struct {
	quote provider.Result[provider.Quote]
	avail provider.Result[provider.Availability]
	risk  provider.Result[provider.Assessment]
}

type enrichment struct {
	byFragment   map[string]*legData
	degradedRisk int
}

// enrich prices, checks and risk-assesses every distinct fragment used by plans.
// Calls fan out with at most ProviderMaxConcurrency in flight.
func (s *searchService) enrich(ctx context.Context, plans []model.Plan, passengers int, weather map[string]any) (*enrichment, error) {
	e := &enrichment{byFragment: make(map[string]*legData)}
	var fragments []model.RouteFragment
	for _, p := range plans {
		for _, leg := range p.Legs {
			if _, seen := e.byFragment[leg.ID]; seen {
				continue
			}
			e.byFragment[leg.ID] = &legData{}
			fragments = append(fragments, leg.RouteFragment)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.ProviderMaxConcurrency, 1))
	for _, f := range fragments {
		data := e.byFragment[f.ID]
		g.Go(func() error {
			data.quote = s.client.GetPrice(gctx, f, passengers)
			return nil
		})
		g.Go(func() error {
			data.avail = s.client.CheckAvailability(gctx, f)
			return nil
		})
		g.Go(func() error {
			data.risk = s.client.AssessRisk(gctx, f, weather)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, data := range e.byFragment {
		if data.risk.Status == provider.StatusTimeout || data.risk.Status == provider.StatusUnavailable {
			e.degradedRisk++
		}
	}
	return e, nil
}

// apply returns a copy of p with every leg filled from provider data. Legs the
// providers could not vouch for carry faults.
func (e *enrichment) apply(p model.Plan) model.Plan {
	out := p
	out.Legs = make([]model.Leg, len(p.Legs))
	for i, leg := range p.Legs {
		data := e.byFragment[leg.ID]
		leg.Faults = nil

		if data.quote.OK() {
			leg.PriceGBP = data.quote.Value.TotalGBP()
		} else {
			leg.Faults = append(leg.Faults, provider.ToolPricing+": "+data.quote.String())
		}

		if data.avail.OK() {
			leg.AvailableSeats = data.avail.Value.Seats()
		} else {
			leg.Faults = append(leg.Faults, provider.ToolAvailability+": "+data.avail.String())
		}

		switch data.risk.Status {
		case provider.StatusOK:
			leg.RiskScore = data.risk.Value.Score()
		case provider.StatusTimeout, provider.StatusUnavailable:
			leg.RiskScore = conservativeRisk
		default:
			leg.Faults = append(leg.Faults, provider.ToolRisk+": "+data.risk.String())
		}

		leg.EmissionsKg = scoring.EmissionsKg(leg.Mode, leg.Duration().Hours(), p.Passengers)
		out.Legs[i] = leg
	}
	return out
}
