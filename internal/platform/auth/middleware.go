package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Authenticator wires session-token verification into HTTP middleware.
type Authenticator struct {
	verifier *SessionVerifier
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier *SessionVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// RequireSession verifies the Authorization bearer token and stores the shop identity in context.
func (a *Authenticator) RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			claims, err := a.verifier.VerifySessionToken(tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			identity := &Identity{
				ShopDomain: claims.ShopDomain(),
				UserID:     claims.Subject,
				SessionID:  claims.SessionID,
				claims:     claims,
			}
			if claims.ExpiresAt != nil {
				identity.ExpiresAt = claims.ExpiresAt.Time
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "session token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "session token invalid")
	}
}
