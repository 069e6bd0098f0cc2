package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	defaultLeeway = 10 * time.Second

	shopDomainSuffix = ".myshopify.com"
)

var (
	// ErrTokenExpired signals that the provided session token has expired.
	ErrTokenExpired = errors.New("auth: session token expired")
	// ErrTokenInvalid signals that the provided session token is invalid for other reasons.
	ErrTokenInvalid = errors.New("auth: session token invalid")
)

// SessionClaims models the JWT payload minted by the platform for embedded admin sessions.
type SessionClaims struct {
	jwt.RegisteredClaims

	// Dest is the origin of the shop the token was minted for.
	Dest string `json:"dest"`
	// SessionID carries the platform session identifier.
	SessionID string `json:"sid"`
}

// ShopDomain extracts the myshopify domain from the destination claim.
func (c *SessionClaims) ShopDomain() string {
	if c == nil {
		return ""
	}
	domain, err := shopDomainFromOrigin(c.Dest)
	if err != nil {
		return ""
	}
	return domain
}

// SessionVerifier validates session tokens signed with the app client secret.
type SessionVerifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// VerifierOption customises SessionVerifier behaviour.
type VerifierOption func(*SessionVerifier)

// WithLeeway widens the window accepted around exp/nbf to tolerate clock skew.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *SessionVerifier) {
		if d >= 0 {
			v.leeway = d
		}
	}
}

// WithClock overrides the time source used during validation.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *SessionVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewSessionVerifier constructs a verifier for tokens addressed to the given API key.
func NewSessionVerifier(secret, apiKey string, opts ...VerifierOption) (*SessionVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("auth: client api key is required")
	}

	v := &SessionVerifier{
		secret:   []byte(secret),
		audience: apiKey,
		leeway:   defaultLeeway,
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v, nil
}

// VerifySessionToken checks the signature and claims of a raw session token.
//
// Claim validation follows the platform contract: the signature must match the
// app client secret, exp/nbf must hold within the configured leeway, the
// audience must name the app API key, and the issuer must belong to the same
// shop as the destination claim.
func (v *SessionVerifier) VerifySessionToken(raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if token == nil || !token.Valid {
		return nil, fmt.Errorf("%w: signature rejected", ErrTokenInvalid)
	}

	now := v.now()
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: exp claim missing", ErrTokenInvalid)
	}
	if !claims.VerifyExpiresAt(now.Add(-v.leeway), true) {
		return nil, fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	if !claims.VerifyNotBefore(now.Add(v.leeway), false) {
		return nil, fmt.Errorf("%w: nbf in the future", ErrTokenInvalid)
	}
	if !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrTokenInvalid)
	}

	shop, err := shopDomainFromOrigin(claims.Dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	issuerHost, err := hostFromOrigin(claims.Issuer)
	if err != nil || !strings.EqualFold(issuerHost, shop) {
		return nil, fmt.Errorf("%w: issuer does not match destination", ErrTokenInvalid)
	}

	return claims, nil
}

func (v *SessionVerifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
	}
	return v.secret, nil
}

// shopDomainFromOrigin validates a destination origin and returns the myshopify host.
func shopDomainFromOrigin(origin string) (string, error) {
	host, err := hostFromOrigin(origin)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(host, shopDomainSuffix) {
		return "", fmt.Errorf("destination %q is not a myshopify domain", host)
	}
	if strings.TrimSuffix(host, shopDomainSuffix) == "" {
		return "", fmt.Errorf("destination %q is missing the shop name", host)
	}
	return host, nil
}

func hostFromOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", errors.New("origin is empty")
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("origin %q is not a URL", origin)
	}
	if parsed.Scheme != "https" {
		return "", fmt.Errorf("origin %q must use https", origin)
	}
	host := strings.ToLower(strings.TrimSpace(parsed.Hostname()))
	if host == "" {
		return "", fmt.Errorf("origin %q is missing a host", origin)
	}
	return host, nil
}
