package auth

import (
	"context"
	"strings"
	"time"
)

// Identity captures the authenticated principal extracted from a verified session token.
type Identity struct {
	// ShopDomain is the myshopify domain of the shop the session belongs to.
	ShopDomain string
	// UserID identifies the staff member operating the admin surface.
	UserID string
	// SessionID is the platform session identifier carried in the token.
	SessionID string
	// ExpiresAt is the token expiry; handlers never see an expired identity.
	ExpiresAt time.Time

	claims *SessionClaims
}

// Claims exposes the decoded session claims associated with this identity.
func (i *Identity) Claims() *SessionClaims {
	if i == nil {
		return nil
	}
	return i.claims
}

// ShopName returns the shop subdomain without the platform suffix.
func (i *Identity) ShopName() string {
	if i == nil {
		return ""
	}
	return strings.TrimSuffix(i.ShopDomain, ".myshopify.com")
}

type contextKey string

const identityContextKey contextKey = "github.com/jmartinez0/quantity-breaks/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
