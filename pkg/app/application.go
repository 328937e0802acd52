package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"itinera/internal/health"
	"itinera/pkg/config"
	"itinera/pkg/contracts"
	"itinera/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type namedWorker struct {
	name   string
	worker contracts.Worker
}

// Application owns the HTTP server, its middleware stack and the background workers
// that share its lifetime.
type Application struct {
	cfg              *config.Config
	server           *http.Server
	health           *health.HealthHandler
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.ClientRateLimiter
	healthHandler    http.Handler
	appHttpHandler   http.Handler
	workers          []namedWorker
	closers          []func(ctx context.Context)
	workersWG        sync.WaitGroup
	stopWorkers      context.CancelFunc
}

func NewApplication(cfg *config.Config) *Application {
	a := &Application{
		cfg:    cfg,
		health: health.NewHealthHandler(cfg.Log),
	}
	if cfg.Client != nil && cfg.Client.Mongo != nil {
		a.health.WithCheck("mongo", health.MongoCheck(cfg.Client.Mongo))
	}
	return a
}

// AddReadinessCheck adds a dependency to /ready. Call before SetApp.
func (a *Application) AddReadinessCheck(name string, check health.Check) {
	a.health.WithCheck(name, check)
}

// AddWorker registers a loop started with the server and cancelled on shutdown.
func (a *Application) AddWorker(name string, worker contracts.Worker) {
	a.workers = append(a.workers, namedWorker{name: name, worker: worker})
}

// OnShutdown registers cleanup run after the server and workers stop, in reverse order.
func (a *Application) OnShutdown(fn func(ctx context.Context)) {
	a.closers = append(a.closers, fn)
}

func (a *Application) SetApp(appHandlers ...contracts.Handler) {
	a.setHealthHandler()
	a.setAppHandler(appHandlers)
	a.setAppServer()
}

func (a *Application) setHealthHandler() {
	healthRouter := httprouter.New()
	a.health.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandlers []contracts.Handler) {
	appRouter := httprouter.New()
	for _, h := range appHandlers {
		h.RegisterRoutes(appRouter)
	}

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewClientRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.DefaultClientExtractor,
		a.cfg.Log,
	)

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout, a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.ClientRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack", "handlers", len(appHandlers))
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

// Handler exposes the assembled routing tree.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWorkers = cancel

	for _, w := range a.workers {
		a.workersWG.Add(1)
		go func(w namedWorker) {
			defer a.workersWG.Done()
			a.cfg.Log.Info("Background worker started", "worker", w.name)
			w.worker.Run(ctx)
			a.cfg.Log.Info("Background worker stopped", "worker", w.name)
		}(w)
	}
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	a.startWorkers()

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Error("HTTP server failed", "error", err)
		}
		a.gracefulShutdown()
		os.Exit(1)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	if a.stopWorkers != nil {
		a.stopWorkers()
	}
	done := make(chan struct{})
	go func() {
		a.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.cfg.Log.Info("Background workers stopped")
	case <-ctx.Done():
		a.cfg.Log.Warn("Background workers did not stop before the shutdown deadline")
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}

	a.cfg.Log.Info("Server stopped gracefully")
}
