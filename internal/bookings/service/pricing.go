package service

import (
	"context"
	"fmt"
	"math"

	"itinera/internal/provider"
	apperrors "itinera/pkg/errors"
	"itinera/pkg/model"
)

// fareTolerance absorbs rounding between the search quote and the booking quote.
const fareTolerance = 0.01

// PriceSource quotes the current fare of a leg for the whole party.
type PriceSource interface {
	Price(ctx context.Context, fragment model.RouteFragment, passengers int) (float64, error)
}

type providerPricing struct {
	client provider.Client
}

func NewProviderPricing(client provider.Client) PriceSource {
	return &providerPricing{client: client}
}

func (p *providerPricing) Price(ctx context.Context, fragment model.RouteFragment, passengers int) (float64, error) {
	res := p.client.GetPrice(ctx, fragment, passengers)
	if !res.OK() {
		return 0, fmt.Errorf("pricing for %s: %s", fragment.InventoryKey(), res.String())
	}
	return res.Value.TotalGBP(), nil
}

// repriceAll replaces submitted leg fares with provider quotes. A fare that moved since
// the search is refused rather than silently charged.
func (s *bookingService) repriceAll(ctx context.Context, plan *model.Plan) error {
	for i := range plan.Legs {
		leg := &plan.Legs[i]
		quoted, err := s.pricing.Price(ctx, leg.RouteFragment, plan.Passengers)
		if err != nil {
			s.cfg.Log.Warn("Fare lookup failed", "plan_id", plan.ID, "fragment_id", leg.ID, "error", err)
			return apperrors.Unavailable("Pricing provider")
		}
		if math.Abs(quoted-leg.PriceGBP) > fareTolerance {
			s.cfg.Log.Info("Submitted fare does not match provider quote",
				"plan_id", plan.ID,
				"fragment_id", leg.ID,
				"submitted_gbp", leg.PriceGBP,
				"quoted_gbp", quoted,
			)
			return apperrors.Conflict(fmt.Sprintf(
				"The fare from %s to %s with %s is now %.2f GBP; please search again",
				leg.Origin, leg.Destination, leg.Provider, quoted,
			))
		}
		leg.PriceGBP = quoted
	}
	return nil
}
