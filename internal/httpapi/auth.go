package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// TokenVerifier maps a bearer token to the user it belongs to.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}

// ErrInvalidToken is returned by verifiers for unknown or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// StaticVerifier authenticates against a fixed token-to-user table,
// loaded from configuration. Suitable for single-tenant and test
// deployments.
type StaticVerifier struct {
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(token string) (string, error) {
	userID, ok := v.tokens[token]
	if !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}

type contextKey string

const userIDKey contextKey = "userID"

// UserID returns the authenticated user for the request, or "" when the
// request did not pass through requireAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requireAuth rejects requests without a valid bearer token and stores
// the resolved user ID in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		userID, err := s.verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
