package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	apperrors "itinera/pkg/errors"
	httputil "itinera/pkg/http"
	"itinera/pkg/logger"
)

const UserIDHeader = "X-User-ID"

type ClientExtractor func(r *http.Request) string

// ClientRateLimiter is a sliding-window limiter keyed by client identity.
type ClientRateLimiter struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	extractor ClientExtractor
	now       func() time.Time
	log       *logger.Logger
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewClientRateLimiter(limit int, window time.Duration, extractor ClientExtractor, log *logger.Logger) *ClientRateLimiter {
	if extractor == nil {
		extractor = DefaultClientExtractor
	}
	limiter := &ClientRateLimiter{
		requests:  make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		extractor: extractor,
		now:       time.Now,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *ClientRateLimiter) cleanup() {
	interval := max(rl.window, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := rl.now()
			rl.mu.Lock()
			for client, timestamps := range rl.requests {
				if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, client)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *ClientRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow records a request for client and reports whether it fits in the window.
func (rl *ClientRateLimiter) Allow(client string) bool {
	if client == "" || rl.limit <= 0 {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.requests[client]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[client] = valid
		return false
	}

	rl.requests[client] = append(valid, now)
	return true
}

func ClientRateLimit(limiter *ClientRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := limiter.extractor(r)

			if !limiter.Allow(client) {
				rejectRateLimited(w, limiter.log, r, client)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(w http.ResponseWriter, log *logger.Logger, r *http.Request, client string) {
	log.Warn("Rate limit exceeded",
		"request_id", RequestID(r.Context()),
		"client", client,
		"path", r.URL.Path,
	)

	w.Header().Set("Retry-After", "1")
	if writeErr := httputil.WriteError(w, apperrors.RateLimited()); writeErr != nil {
		log.Error("failed to write error response",
			"handler", "ClientRateLimit",
			"operation", "WriteError",
			"error", writeErr,
		)
	}
}

// DefaultClientExtractor keys on X-User-ID, falling back to the remote host.
func DefaultClientExtractor(r *http.Request) string {
	if user := r.Header.Get(UserIDHeader); user != "" {
		return "user:" + user
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return ""
	}
	return "addr:" + host
}
