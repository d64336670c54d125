package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/daytrip/daytrip/internal/api/models"
	"github.com/daytrip/daytrip/internal/auth"
)

// claimsKey is the context key for the validated token claims.
type claimsKey struct{}

// Auth rejects requests without a valid bearer token and stores the
// token claims in the request context. The client id is also recorded on
// the active span.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r.Header.Get("Authorization"))
			if problem != "" {
				writeUnauthorized(w, r, problem)
				return
			}

			claims, err := jwtService.ValidateToken(token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrTokenExpired):
				writeUnauthorized(w, r, "access token has expired")
				return
			case errors.Is(err, auth.ErrInvalidToken):
				writeUnauthorized(w, r, "invalid access token")
				return
			default:
				writeUnauthorized(w, r, "authentication failed")
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("enduser.id", claims.ClientID()))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively. A non-empty second result describes why
// the header was rejected.
func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	if token = strings.TrimSpace(rest); token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// RequireScope rejects requests whose token does not grant scope. It must
// run after Auth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !GetClaims(r.Context()).HasScope(scope) {
				models.ProblemForbidden.New(GetRequestID(r.Context()), "token lacks scope "+scope).Write(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized writes a 401 with a bearer challenge. The response
// package imports middleware, so problems are written directly here.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="daytrip"`)
	models.ProblemUnauthorized.New(GetRequestID(r.Context()), detail).Write(w, r)
}

// GetClaims retrieves the validated token claims from the context.
// Returns nil if the request is not authenticated.
func GetClaims(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(claimsKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}

// GetClientID retrieves the authenticated client ID from the context.
// Returns an empty string if not authenticated.
func GetClientID(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.ClientID()
	}
	return ""
}
