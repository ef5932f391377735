package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "impfportal/pkg/domain"
	"impfportal/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator. The core
// never computes authorization itself; capabilities are handed to services as
// pre-checked booleans derived from the roles claim.
type JWTClaims struct {
	PersonID string
	Roles    []string
}

// Capabilities are the pre-checked authorization outcomes handed into domain
// operations. The state machine consumes these booleans and performs no role
// lookups of its own.
type Capabilities struct {
	// Documenter allows documenting, correcting, and deleting doses.
	Documenter bool
	// OverrideEligibility allows booster documentation before the computed
	// eligibility date.
	OverrideEligibility bool
}

type contextKeyCapabilities struct{}

// ContextKeyCapabilities is exported for use in tests.
var ContextKeyCapabilities = contextKeyCapabilities{}

// GetCapabilities retrieves the caller's capabilities from the context.
func GetCapabilities(ctx context.Context) Capabilities {
	caps, ok := ctx.Value(ContextKeyCapabilities).(Capabilities)
	if !ok {
		return Capabilities{}
	}
	return caps
}

// WithCapabilities injects capabilities into the context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithCapabilities(ctx context.Context, caps Capabilities) context.Context {
	return context.WithValue(ctx, ContextKeyCapabilities, caps)
}

// GetPersonID retrieves the authenticated person ID from the context.
func GetPersonID(ctx context.Context) id.PersonID {
	return requestcontext.PersonID(ctx)
}

// capabilitiesFromRoles maps token roles onto pre-checked capability booleans.
func capabilitiesFromRoles(roles []string) Capabilities {
	var caps Capabilities
	for _, role := range roles {
		switch role {
		case "fachverantwortung", "nachdokumentation":
			caps.Documenter = true
			caps.OverrideEligibility = true
		case "dokumentation":
			caps.Documenter = true
		}
	}
	return caps
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and loads person ID plus capabilities
// into the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			personID, err := id.ParsePersonID(claims.PersonID)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid subject claim")
				return
			}

			ctx := requestcontext.WithPersonID(r.Context(), personID)
			ctx = WithCapabilities(ctx, capabilitiesFromRoles(claims.Roles))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
