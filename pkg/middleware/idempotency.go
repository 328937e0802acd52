package middleware

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	apperrors "itinera/pkg/errors"
	httputil "itinera/pkg/http"
	"itinera/pkg/logger"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotencyReplayedHeader = "Idempotent-Replayed"
)

type IdempotencyStore interface {
	Get(key string) (*CachedResponse, bool)
	Set(key string, response *CachedResponse)
	// Begin marks key as in flight; false means another request holds it.
	Begin(key string) bool
	Done(key string)
	Stop()
}

type CachedResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	CreatedAt  time.Time
}

type InMemoryIdempotencyStore struct {
	mu       sync.Mutex
	store    map[string]*CachedResponse
	inFlight map[string]struct{}
	ttl      time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewInMemoryIdempotencyStore(ttl time.Duration) *InMemoryIdempotencyStore {
	store := &InMemoryIdempotencyStore{
		store:    make(map[string]*CachedResponse),
		inFlight: make(map[string]struct{}),
		ttl:      ttl,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	go store.cleanup()

	return store
}

func (s *InMemoryIdempotencyStore) Get(key string) (*CachedResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response, exists := s.store[key]
	if !exists {
		return nil, false
	}
	if s.now().Sub(response.CreatedAt) > s.ttl {
		delete(s.store, key)
		return nil, false
	}
	return response, true
}

func (s *InMemoryIdempotencyStore) Set(key string, response *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	response.CreatedAt = s.now()
	s.store[key] = response
}

func (s *InMemoryIdempotencyStore) Begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *InMemoryIdempotencyStore) Done(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

func (s *InMemoryIdempotencyStore) cleanup() {
	ticker := time.NewTicker(max(s.ttl, time.Minute))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for key, response := range s.store {
				if now.Sub(response.CreatedAt) > s.ttl {
					delete(s.store, key)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InMemoryIdempotencyStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the stored 2xx response for a repeated Idempotency-Key on unsafe
// methods. Keys are scoped to the caller, method and path.
func Idempotency(store IdempotencyStore, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := idempotencyKey(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if cached, found := store.Get(key); found {
				replayCachedResponse(w, cached)
				return
			}

			if !store.Begin(key) {
				log.Warn("Idempotent request already in flight",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
				)
				err := apperrors.Conflict("A request with this Idempotency-Key is still in progress")
				if writeErr := httputil.WriteError(w, err); writeErr != nil {
					log.Error("failed to write error response",
						"handler", "Idempotency",
						"operation", "WriteError",
						"error", writeErr,
					)
				}
				return
			}
			defer store.Done(key)

			// A request that raced us may have finished between Get and Begin.
			if cached, found := store.Get(key); found {
				replayCachedResponse(w, cached)
				return
			}

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(capture, r)

			if capture.statusCode >= 200 && capture.statusCode < 300 {
				store.Set(key, &CachedResponse{
					StatusCode: capture.statusCode,
					Headers:    w.Header().Clone(),
					Body:       capture.body.Bytes(),
				})
			}
		})
	}
}

func idempotencyKey(r *http.Request) string {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return ""
	}
	key := r.Header.Get(IdempotencyKeyHeader)
	if key == "" {
		return ""
	}
	return r.Header.Get(UserIDHeader) + "|" + r.Method + "|" + r.URL.Path + "|" + key
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		if key == RequestIDHeader {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set(IdempotencyReplayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}
