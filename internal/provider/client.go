package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"itinera/pkg/client"
	"itinera/pkg/logger"
	"itinera/pkg/model"

	"github.com/go-playground/validator/v10"
)

var (
	ErrProviderTimeout     = errors.New("provider call timed out")
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Client is a typed, validating wrapper around the provider tool endpoints.
// Every method returns a Result; raw provider payloads never leave this package.
type Client interface {
	LookupRoutes(ctx context.Context, req RoutesRequest) Result[[]model.RouteFragment]
	GetPrice(ctx context.Context, fragment model.RouteFragment, passengers int) Result[Quote]
	CheckAvailability(ctx context.Context, fragment model.RouteFragment) Result[Availability]
	AssessRisk(ctx context.Context, fragment model.RouteFragment, weather map[string]any) Result[Assessment]
	CheckSchema(ctx context.Context, schemaName string, object map[string]any) Result[SchemaCheckResponse]
}

type Options struct {
	CallTimeout time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

type httpClient struct {
	http     *client.HttpClient
	opts     Options
	validate *validator.Validate
	log      *logger.Logger
}

func NewClient(baseURL string, opts Options, log *logger.Logger) Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	hc := client.NewHttpClient(baseURL)
	// The per-call context bounds each attempt; the transport timeout is only a backstop.
	hc.HTTPClient.Timeout = opts.CallTimeout * 2

	return &httpClient{
		http:     hc,
		opts:     opts,
		validate: newValidator(),
		log:      log,
	}
}

func (c *httpClient) LookupRoutes(ctx context.Context, req RoutesRequest) Result[[]model.RouteFragment] {
	var resp RoutesResponse
	if res := invoke(ctx, c, ToolRoutes, req, &resp); !res.OK() {
		return failed[[]model.RouteFragment](res.Status, res.Err).withReasons(res.Reasons)
	}

	seen := make(map[string]struct{}, len(resp.Fragments))
	fragments := make([]model.RouteFragment, 0, len(resp.Fragments))
	for _, f := range resp.Fragments {
		if reasons := c.checkFragment(f); len(reasons) > 0 {
			c.log.Warn("Dropping faulty route fragment",
				"tool", ToolRoutes,
				"fragment_id", f.ID,
				"reasons", reasons,
			)
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		fragments = append(fragments, f)
	}
	return ok(fragments)
}

func (c *httpClient) GetPrice(ctx context.Context, fragment model.RouteFragment, passengers int) Result[Quote] {
	req := PricingRequest{
		Origin:         fragment.Origin,
		Destination:    fragment.Destination,
		Mode:           fragment.Mode,
		Provider:       fragment.Provider,
		Date:           fragment.DepartAt,
		PassengerCount: passengers,
	}

	var quote Quote
	if res := invoke(ctx, c, ToolPricing, req, &quote); !res.OK() {
		return failed[Quote](res.Status, res.Err).withReasons(res.Reasons)
	}
	if reasons := c.checkQuote(quote, passengers); len(reasons) > 0 {
		return logFault[Quote](c.log, ToolPricing, fragment, reasons)
	}
	return ok(quote)
}

func (c *httpClient) CheckAvailability(ctx context.Context, fragment model.RouteFragment) Result[Availability] {
	req := AvailabilityRequest{
		Origin:      fragment.Origin,
		Destination: fragment.Destination,
		Depart:      fragment.DepartAt,
		Mode:        fragment.Mode,
		Provider:    fragment.Provider,
	}

	var avail Availability
	if res := invoke(ctx, c, ToolAvailability, req, &avail); !res.OK() {
		return failed[Availability](res.Status, res.Err).withReasons(res.Reasons)
	}
	if reasons := c.checkAvailability(avail); len(reasons) > 0 {
		return logFault[Availability](c.log, ToolAvailability, fragment, reasons)
	}
	return ok(avail)
}

func (c *httpClient) AssessRisk(ctx context.Context, fragment model.RouteFragment, weather map[string]any) Result[Assessment] {
	req := RiskRequest{
		Provider:    fragment.Provider,
		Mode:        fragment.Mode,
		Route:       fragment.Origin + "-" + fragment.Destination,
		Date:        fragment.DepartAt,
		WeatherData: weather,
	}

	var assessment Assessment
	if res := invoke(ctx, c, ToolRisk, req, &assessment); !res.OK() {
		return failed[Assessment](res.Status, res.Err).withReasons(res.Reasons)
	}
	if reasons := c.checkAssessment(&assessment); len(reasons) > 0 {
		return logFault[Assessment](c.log, ToolRisk, fragment, reasons)
	}
	return ok(assessment)
}

func (c *httpClient) CheckSchema(ctx context.Context, schemaName string, object map[string]any) Result[SchemaCheckResponse] {
	var resp SchemaCheckResponse
	req := SchemaCheckRequest{Object: object, SchemaName: schemaName}
	if res := invoke(ctx, c, ToolValidation, req, &resp); !res.OK() {
		return failed[SchemaCheckResponse](res.Status, res.Err).withReasons(res.Reasons)
	}
	return ok(resp)
}

func logFault[T any](log *logger.Logger, tool string, fragment model.RouteFragment, reasons []string) Result[T] {
	log.Warn("Provider returned faulty data",
		"tool", tool,
		"fragment_id", fragment.ID,
		"provider", fragment.Provider,
		"reasons", reasons,
	)
	return fault[T](reasons...)
}

// invoke posts req to a tool and decodes into out. Transient failures are retried with
// jittered backoff; malformed bodies are data faults and never retried.
func invoke(ctx context.Context, c *httpClient, tool string, req, out any) Result[struct{}] {
	var last attemptResult
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		last = c.attempt(ctx, tool, req, out)
		if last.OK() || last.Status == StatusDataFault || !last.retryable {
			break
		}
		if attempt == c.opts.MaxAttempts || ctx.Err() != nil {
			break
		}

		c.log.Debug("Retrying provider call",
			"tool", tool,
			"attempt", attempt,
			"status", last.Status,
		)
		if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
			break
		}
	}

	if !last.OK() && last.Status != StatusDataFault {
		c.log.Warn("Provider call failed",
			"tool", tool,
			"status", last.Status,
			"error", last.Err,
		)
	}
	if last.Status == StatusDataFault {
		c.log.Warn("Provider returned malformed data", "tool", tool, "reasons", last.Reasons)
	}
	return last.Result
}

type attemptResult struct {
	Result[struct{}]
	retryable bool
}

func (c *httpClient) attempt(ctx context.Context, tool string, req, out any) attemptResult {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	resp, err := c.http.POST(callCtx, ToolPath(tool), req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err) {
			return attemptResult{failed[struct{}](StatusTimeout, fmt.Errorf("%w: %s", ErrProviderTimeout, tool)), ctx.Err() == nil}
		}
		if ctx.Err() != nil {
			return attemptResult{failed[struct{}](StatusUnavailable, ctx.Err()), false}
		}
		return attemptResult{failed[struct{}](StatusUnavailable, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)), true}
	}

	switch {
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return attemptResult{failed[struct{}](StatusTimeout, fmt.Errorf("%w: %s returned %d", ErrProviderTimeout, tool, resp.StatusCode)), true}
	case resp.StatusCode >= http.StatusInternalServerError:
		return attemptResult{failed[struct{}](StatusUnavailable, fmt.Errorf("%w: %s returned %d", ErrProviderUnavailable, tool, resp.StatusCode)), true}
	case resp.StatusCode >= http.StatusBadRequest:
		var te toolError
		_ = json.Unmarshal(resp.Body, &te)
		return attemptResult{failed[struct{}](StatusUnavailable, fmt.Errorf("%w: %s rejected request (%d) %s", ErrProviderUnavailable, tool, resp.StatusCode, te.Detail)), false}
	}

	if err := resp.DecodeJSON(out); err != nil {
		return attemptResult{fault[struct{}]("response body is not valid JSON"), false}
	}
	return attemptResult{ok(struct{}{}), false}
}

func (c *httpClient) backoff(attempt int) time.Duration {
	if c.opts.BackoffBase <= 0 {
		return 0
	}
	base := c.opts.BackoffBase << (attempt - 1)
	return base/2 + rand.N(base/2+1)
}

func (r Result[T]) withReasons(reasons []string) Result[T] {
	r.Reasons = reasons
	return r
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
