package core

import (
	"context"
	"fmt"
)

// Context key for the correlation id carried through a poll sweep, the
// job it enqueues, and the run it produces.
type RequestIDKey struct{}

// WithRequestID attaches a request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey{}, requestID)
}

// GetRequestID extracts the request id from the context.
func GetRequestID(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(RequestIDKey{}).(string)
	if !ok || requestID == "" {
		return "", fmt.Errorf("request id not found in context")
	}
	return requestID, nil
}
