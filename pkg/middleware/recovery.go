package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "itinera/pkg/errors"
	httputil "itinera/pkg/http"
	"itinera/pkg/logger"
)

func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("Panic recovered",
						"request_id", RequestID(r.Context()),
						"error", rec,
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)

					err := apperrors.Internal("Internal server error", fmt.Errorf("panic: %v", rec))
					if writeErr := httputil.WriteError(w, err); writeErr != nil {
						log.Error("failed to write error response",
							"handler", "Recovery",
							"operation", "WriteError",
							"error", writeErr,
						)
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
