package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"itinera/pkg/model"
)

const defaultHealthWait = 30 * time.Second

// ItineraClient calls the public Itinera API.
type ItineraClient struct {
	httpClient *HttpClient
	userID     string
}

func NewItineraClient(baseURL string) *ItineraClient {
	return &ItineraClient{
		httpClient: NewHttpClient(baseURL),
	}
}

// AsUser sends X-User-ID on every call, which the API uses for rate limiting and
// idempotency scoping.
func (c *ItineraClient) AsUser(userID string) *ItineraClient {
	cp := *c
	cp.userID = userID
	return &cp
}

func (c *ItineraClient) headers(idempotencyKey string) map[string]string {
	h := map[string]string{}
	if c.userID != "" {
		h["X-User-ID"] = c.userID
	}
	if idempotencyKey != "" {
		h["Idempotency-Key"] = idempotencyKey
	}
	return h
}

func (c *ItineraClient) Search(ctx context.Context, body any) (*Response, error) {
	return c.httpClient.Do(ctx, http.MethodPost, "/api/search", body, c.headers(""))
}

func (c *ItineraClient) CreateBooking(ctx context.Context, body any, idempotencyKey string) (*Response, error) {
	return c.httpClient.Do(ctx, http.MethodPost, "/api/bookings", body, c.headers(idempotencyKey))
}

func (c *ItineraClient) GetBooking(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.Do(ctx, http.MethodGet, "/api/bookings/"+url.PathEscape(id), nil, c.headers(""))
}

func (c *ItineraClient) ListBookings(ctx context.Context, status model.BookingStatus, userID string, limit int, offset int64) (*Response, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.FormatInt(offset, 10))
	if status != "" {
		q.Set("status", string(status))
	}
	if userID != "" {
		q.Set("user_id", userID)
	}
	return c.httpClient.Do(ctx, http.MethodGet, "/api/bookings?"+q.Encode(), nil, c.headers(""))
}

func (c *ItineraClient) ConfirmBooking(ctx context.Context, id string, passenger model.PassengerData, idempotencyKey string) (*Response, error) {
	body := map[string]any{"passenger_data": passenger}
	return c.httpClient.Do(ctx, http.MethodPost, "/api/bookings/"+url.PathEscape(id)+"/confirm", body, c.headers(idempotencyKey))
}

func (c *ItineraClient) CancelBooking(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.Do(ctx, http.MethodDelete, "/api/bookings/"+url.PathEscape(id), nil, c.headers(""))
}

func (c *ItineraClient) Inventory(ctx context.Context, key model.InventoryKey) (*Response, error) {
	path := fmt.Sprintf("/api/inventory/%s/%s/%s/%s",
		url.PathEscape(key.Origin),
		url.PathEscape(key.Destination),
		url.PathEscape(key.Provider),
		url.PathEscape(key.TravelDate),
	)
	return c.httpClient.Do(ctx, http.MethodGet, path, nil, c.headers(""))
}

func (c *ItineraClient) WaitForHealthy(ctx context.Context) error {
	return c.httpClient.WaitForHealthy(ctx, defaultHealthWait)
}
