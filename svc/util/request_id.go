package util

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the id stored by SetRequestID, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
func NewRequestID() string {
	return uuid.New().String()
}

// ParseRequestID accepts a client supplied X-Request-ID only if it is a UUID.
func ParseRequestID(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	id, err := uuid.Parse(header)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
