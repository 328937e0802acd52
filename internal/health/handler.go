package health

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	httputil "itinera/pkg/http"
	"itinera/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
)

const readyTimeout = 2 * time.Second

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

type HealthHandler struct {
	checks map[string]Check
	log    *logger.Logger
}

func NewHealthHandler(log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks: make(map[string]Check),
		log:    log,
	}
}

// WithCheck registers a readiness dependency. Not safe to call once serving.
func (h *HealthHandler) WithCheck(name string, check Check) *HealthHandler {
	h.checks[name] = check
	return h
}

func MongoCheck(client *mongo.Client) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ready"}
	status := http.StatusOK
	if len(names) > 0 {
		resp.Dependencies = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.log.Error("Dependency health check failed",
				"dependency", name,
				"error", err,
				"path", r.URL.Path,
			)
			resp.Dependencies[name] = "error"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[name] = "ok"
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// KafkaCheck dials the first reachable broker.
func KafkaCheck(brokers []string) Check {
	return func(ctx context.Context) error {
		lastErr := errors.New("no brokers configured")
		for _, broker := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", broker)
			if err != nil {
				lastErr = err
				continue
			}
			return conn.Close()
		}
		return lastErr
	}
}
