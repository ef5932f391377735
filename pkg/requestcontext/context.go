// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	personID := requestcontext.PersonID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithPersonID(ctx, personID)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "impfportal/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	personIDKey      struct{}
	deviceSummaryKey struct{}
	clientIPKey      struct{}
	userAgentKey     struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyPersonID      = personIDKey{}
	ContextKeyDeviceSummary = deviceSummaryKey{}
	ContextKeyClientIP      = clientIPKey{}
	ContextKeyUserAgent     = userAgentKey{}
	ContextKeyRequestID     = requestIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Auth context
// -----------------------------------------------------------------------------

// PersonID retrieves the authenticated person ID from the context.
// Returns the zero value (nil UUID) if not set.
func PersonID(ctx context.Context) id.PersonID {
	if personID, ok := ctx.Value(ContextKeyPersonID).(id.PersonID); ok {
		return personID
	}
	return id.PersonID{}
}

// WithPersonID injects a person ID into the context.
func WithPersonID(ctx context.Context, personID id.PersonID) context.Context {
	return context.WithValue(ctx, ContextKeyPersonID, personID)
}

// -----------------------------------------------------------------------------
// Device and client metadata
// -----------------------------------------------------------------------------

// DeviceSummary retrieves the parsed user-agent summary ("Firefox 128 / Linux")
// set by the device middleware. Used to enrich audit events.
func DeviceSummary(ctx context.Context) string {
	if s, ok := ctx.Value(ContextKeyDeviceSummary).(string); ok {
		return s
	}
	return ""
}

// WithDeviceSummary injects a device summary into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithDeviceSummary(ctx context.Context, summary string) context.Context {
	return context.WithValue(ctx, ContextKeyDeviceSummary, summary)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
