package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"itinera/pkg/config"
	"itinera/pkg/contracts"
	"itinera/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/ping", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":"pong"}`))
	})
}

func testConfig() *config.Config {
	return &config.Config{
		Port:              "0",
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    time.Second,
		IdempotencyTTL:    time.Minute,
		MaxRequestSize:    1024,
		ShutdownTimeout:   time.Second,
		Log:               logger.Discard(),
	}
}

func TestApplication_Routing(t *testing.T) {
	a := NewApplication(testConfig())
	a.AddReadinessCheck("fake", func(context.Context) error { return nil })
	a.SetApp(pingHandler{})
	defer a.idempotencyStore.Stop()
	defer a.rateLimiter.Stop()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fake":"ok"`)

	post := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/ping", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", user)
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, post("u1").Code)
	assert.NotEmpty(t, post("u1").Header().Get("X-Request-ID"))
	assert.Equal(t, http.StatusTooManyRequests, post("u1").Code)
	assert.Equal(t, http.StatusCreated, post("u2").Code)
}

func TestApplication_WorkersStopOnShutdown(t *testing.T) {
	a := NewApplication(testConfig())
	var running atomic.Int32
	a.AddWorker("probe", contracts.WorkerFunc(func(ctx context.Context) {
		running.Add(1)
		<-ctx.Done()
		running.Add(-1)
	}))
	var closed atomic.Bool
	a.OnShutdown(func(context.Context) { closed.Store(true) })
	a.SetApp()

	a.startWorkers()
	require.Eventually(t, func() bool { return running.Load() == 1 }, time.Second, 5*time.Millisecond)

	a.gracefulShutdown()

	assert.Equal(t, int32(0), running.Load())
	assert.True(t, closed.Load())
}
