// Package auth authenticates executives with bearer tokens.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	request "claimguard/pkg/platform/middleware/request"
	"claimguard/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	ExecutiveID string
	JTI         string
}

// FailureRecorder is told about every rejected request.
type FailureRecorder func(ctx context.Context, reason string)

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's executive in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger, onFailure FailureRecorder) func(http.Handler) http.Handler {
	if onFailure == nil {
		onFailure = func(context.Context, string) {}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
					"client_ip", request.GetClientIP(ctx),
				)
				onFailure(ctx, "missing token")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil || claims.ExecutiveID == "" {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
					"client_ip", request.GetClientIP(ctx),
				)
				onFailure(ctx, "invalid token")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithExecutiveID(ctx, claims.ExecutiveID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken also accepts an access_token query parameter, which is the only
// way a browser can authenticate a websocket upgrade.
func bearerToken(r *http.Request) (string, bool) {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && after != "" {
		return after, true
	}
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t, true
	}
	return "", false
}
