package testutil

import (
	"context"
	"net/http"

	id "impfportal/pkg/domain"
	"impfportal/pkg/requestcontext"
)

// WithPersonID adds a person ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the personID is not a valid UUID, it will not be added to the context.
func WithPersonID(req *http.Request, personID string) *http.Request {
	if parsed, err := id.ParsePersonID(personID); err == nil {
		ctx := requestcontext.WithPersonID(req.Context(), parsed)
		return req.WithContext(ctx)
	}
	return req
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
