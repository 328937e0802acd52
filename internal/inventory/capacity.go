package inventory

import (
	"context"
	"fmt"

	"itinera/internal/provider"
	"itinera/pkg/model"
)

// CapacitySource reports how many seats a provider releases to us for a leg.
type CapacitySource interface {
	Capacity(ctx context.Context, fragment model.RouteFragment) (int, error)
}

type providerCapacity struct {
	client provider.Client
}

func NewProviderCapacity(client provider.Client) CapacitySource {
	return &providerCapacity{client: client}
}

func (p *providerCapacity) Capacity(ctx context.Context, fragment model.RouteFragment) (int, error) {
	res := p.client.CheckAvailability(ctx, fragment)
	if !res.OK() {
		return 0, fmt.Errorf("availability for %s: %s", fragment.InventoryKey(), res.String())
	}
	return res.Value.Seats(), nil
}

// StaticCapacity grants the same number of seats to every key.
type StaticCapacity int

func (s StaticCapacity) Capacity(context.Context, model.RouteFragment) (int, error) {
	return int(s), nil
}
