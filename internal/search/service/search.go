package service

import (
	"context"
	"errors"
	"time"

	"itinera/internal/provider"
	"itinera/internal/search/assembler"
	"itinera/internal/search/scoring"
	"itinera/internal/search/validator"
	"itinera/pkg/config"
	apperrors "itinera/pkg/errors"
	"itinera/pkg/model"
	"itinera/pkg/sanitizer"

	"github.com/google/uuid"
)

const (
	DefaultMaxLayovers = 2
	DefaultPassengers  = 1
)

// conservativeRisk stands in for a risk score the provider could not deliver in time.
const conservativeRisk = 1.0

type SearchRequest struct {
	Origin       string                 `json:"origin"`
	Destination  string                 `json:"destination"`
	DepartAfter  time.Time              `json:"depart_after"`
	ArriveBefore time.Time              `json:"arrive_before"`
	MaxLayovers  *int                   `json:"max_layovers,omitempty"`
	Passengers   int                    `json:"passengers,omitempty"`
	OptimizeFor  model.OptimizationMode `json:"optimize_for,omitempty"`
	WeatherData  map[string]any         `json:"weather_data,omitempty"`
}

type SearchStats struct {
	FragmentsConsidered int   `json:"fragments_considered"`
	CandidatesAssembled int   `json:"candidates_assembled"`
	DroppedFaulted      int   `json:"dropped_faulted"`
	DroppedSoldOut      int   `json:"dropped_sold_out"`
	DegradedRisk        int   `json:"degraded_risk"`
	ElapsedMs           int64 `json:"elapsed_ms"`
}

type SearchResponse struct {
	SearchID    string                 `json:"search_id"`
	OptimizeFor model.OptimizationMode `json:"optimize_for"`
	Plans       []model.Plan           `json:"plans"`
	Stats       SearchStats            `json:"stats"`
}

type SearchService interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
}

type searchService struct {
	client    provider.Client
	validator *validator.SearchValidator
	cfg       *config.Config
}

func NewSearchService(
	client provider.Client,
	validator *validator.SearchValidator,
	cfg *config.Config,
) SearchService {
	return &searchService{
		client:    client,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *searchService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	started := time.Now()
	q := s.normalize(req)

	if err := s.validator.Validate(&q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.Validation("Search request validation failed", map[string]any{
				"errors": verrs,
			})
		}
		return nil, apperrors.InvalidInput("Invalid search request")
	}

	routes := s.client.LookupRoutes(ctx, provider.RoutesRequest{
		Origin:       q.Origin,
		Destination:  q.Destination,
		MaxLayovers:  q.MaxLayovers,
		DepartAfter:  q.DepartAfter,
		ArriveBefore: q.ArriveBefore,
	})
	if !routes.OK() {
		s.cfg.Log.Warn("Route lookup failed",
			"origin", q.Origin,
			"destination", q.Destination,
			"status", routes.Status,
			"detail", routes.String(),
		)
		if routes.Status == provider.StatusTimeout {
			return nil, apperrors.Timeout("Route provider did not respond in time")
		}
		return nil, apperrors.Unavailable("Route provider")
	}

	resp := &SearchResponse{
		SearchID:    uuid.NewString(),
		OptimizeFor: q.OptimizeFor,
		Plans:       []model.Plan{},
		Stats:       SearchStats{FragmentsConsidered: len(routes.Value)},
	}

	candidates := assembler.Assemble(assembler.Query{
		Origin:       q.Origin,
		Destination:  q.Destination,
		DepartAfter:  q.DepartAfter,
		ArriveBefore: q.ArriveBefore,
		MaxLayovers:  q.MaxLayovers,
		Passengers:   q.Passengers,
	}, routes.Value, assembler.Options{
		MinConnection: s.cfg.SearchMinConnection,
		MaxCandidates: s.cfg.SearchMaxCandidates,
	})
	resp.Stats.CandidatesAssembled = len(candidates)

	if len(candidates) > 0 {
		enriched, err := s.enrich(ctx, candidates, q.Passengers, req.WeatherData)
		if err != nil {
			return nil, err
		}

		viable := make([]model.Plan, 0, len(candidates))
		for _, p := range candidates {
			plan := enriched.apply(p)
			switch {
			case plan.Faulted():
				resp.Stats.DroppedFaulted++
			case !hasSeats(plan):
				resp.Stats.DroppedSoldOut++
			default:
				viable = append(viable, plan)
			}
		}
		resp.Stats.DegradedRisk = enriched.degradedRisk
		resp.Plans = scoring.Rank(viable, q.OptimizeFor)
	}

	resp.Stats.ElapsedMs = time.Since(started).Milliseconds()

	s.cfg.Log.Info("Search completed",
		"search_id", resp.SearchID,
		"origin", q.Origin,
		"destination", q.Destination,
		"optimize_for", q.OptimizeFor,
		"fragments", resp.Stats.FragmentsConsidered,
		"candidates", resp.Stats.CandidatesAssembled,
		"ranked", len(resp.Plans),
		"dropped_faulted", resp.Stats.DroppedFaulted,
		"dropped_sold_out", resp.Stats.DroppedSoldOut,
		"elapsed_ms", resp.Stats.ElapsedMs,
	)

	return resp, nil
}

func (s *searchService) normalize(req *SearchRequest) validator.Query {
	q := validator.Query{
		Origin:       sanitizer.NormalizeCode(req.Origin),
		Destination:  sanitizer.NormalizeCode(req.Destination),
		DepartAfter:  req.DepartAfter.UTC(),
		ArriveBefore: req.ArriveBefore.UTC(),
		MaxLayovers:  DefaultMaxLayovers,
		Passengers:   req.Passengers,
		OptimizeFor:  req.OptimizeFor,
	}
	if req.MaxLayovers != nil {
		q.MaxLayovers = *req.MaxLayovers
	}
	if q.Passengers == 0 {
		q.Passengers = DefaultPassengers
	}
	if q.OptimizeFor == "" {
		q.OptimizeFor = model.OptimizeBalanced
	}
	return q
}

func hasSeats(p model.Plan) bool {
	for _, leg := range p.Legs {
		if leg.AvailableSeats < p.Passengers {
			return false
		}
	}
	return true
}
