package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey    contextKey = "request_id"
	RequestIDHeader            = "X-Request-ID"
)

// RequestID returns the id attached by RequestLogging, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func withRequestID(r *http.Request) (*http.Request, string) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > 64 {
		id = uuid.NewString()
	}
	return r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)), id
}
