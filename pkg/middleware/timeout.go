package middleware

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "itinera/pkg/errors"
	httputil "itinera/pkg/http"
	"itinera/pkg/logger"
)

// timeoutWriter buffers headers so a late handler never races the timeout response.
type timeoutWriter struct {
	w          http.ResponseWriter
	header     http.Header
	mu         sync.Mutex
	timedOut   bool
	written    bool
	statusCode int
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	if tw.timedOut || tw.written {
		return
	}
	dst := tw.w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	tw.statusCode = code
	tw.written = true
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	tw.writeHeaderLocked(http.StatusOK)
	return tw.w.Write(b)
}

// RequestTimeout bounds each request with a deadline and answers 504 when the handler
// has not started writing by then.
func RequestTimeout(timeout time.Duration, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)
			tw := &timeoutWriter{w: w, header: make(http.Header)}

			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case p := <-panicked:
				panic(p)
			case <-done:
				return
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				if tw.written {
					return
				}
				tw.timedOut = true
				if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return
				}

				log.Warn("Request timed out",
					"request_id", RequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"timeout", timeout,
				)
				if writeErr := httputil.WriteError(w, apperrors.Timeout("Request timed out")); writeErr != nil {
					log.Error("failed to write error response",
						"handler", "RequestTimeout",
						"operation", "WriteError",
						"error", writeErr,
					)
				}
			}
		})
	}
}
