package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"claimguard/pkg/requestcontext"
)

type validatorFunc func(string) (*JWTClaims, error)

func (f validatorFunc) ValidateToken(token string) (*JWTClaims, error) { return f(token) }

var validator = validatorFunc(func(token string) (*JWTClaims, error) {
	switch token {
	case "good":
		return &JWTClaims{ExecutiveID: "ceo-001", JTI: "j1"}, nil
	case "anonymous":
		return &JWTClaims{}, nil
	default:
		return nil, errors.New("bad signature")
	}
})

func TestRequireAuth(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.ExecutiveID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	var reasons []string
	mw := RequireAuth(validator, slog.New(slog.NewTextHandler(io.Discard, nil)), func(_ context.Context, reason string) {
		reasons = append(reasons, reason)
	})(next)

	tests := []struct {
		name      string
		header    string
		query     string
		status    int
		executive string
	}{
		{"bearer header", "Bearer good", "", http.StatusNoContent, "ceo-001"},
		{"query token", "", "?access_token=good", http.StatusNoContent, "ceo-001"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", "", http.StatusUnauthorized, ""},
		{"invalid", "Bearer forged", "", http.StatusUnauthorized, ""},
		{"token without executive", "Bearer anonymous", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/v1/sessions"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.executive, seen)
			if tt.status == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized","error_description":"`+descriptionFor(tt.header)+`"}`, rec.Body.String())
			}
		})
	}
	assert.Equal(t, []string{"missing token", "missing token", "invalid token", "invalid token"}, reasons)
}

func descriptionFor(header string) string {
	if header == "" || header == "Basic good" {
		return "Missing or invalid Authorization header"
	}
	return "Invalid or expired token"
}
