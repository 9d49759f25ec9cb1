package audit

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication schemes recognised by ParseAuthorization.
const (
	AuthTypeBasic  = "Basic"
	AuthTypeBearer = "Bearer"
)

// Claim is one assertion about the authenticated caller.
type Claim struct {
	Type           string
	Value          string
	Issuer         string
	OriginalIssuer string
}

// Principal is the authenticated caller as seen by upstream auth middleware.
type Principal struct {
	Name     string
	AuthType string
	Claims   []Claim
}

// FirstClaim returns the first claim, if any. Collectors only ever inspect that one.
func (p Principal) FirstClaim() (Claim, bool) {
	if len(p.Claims) == 0 {
		return Claim{}, false
	}
	return p.Claims[0], true
}

type principalContextKey struct{}

// ContextWithPrincipal stores p for the collectors further down the chain.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// ParseAuthorization derives a principal from an Authorization header value.
// Bearer tokens are decoded without verifying the signature: the result is only
// recorded, never trusted. The token subject becomes the name and the first claim.
func ParseAuthorization(value string) (Principal, bool) {
	scheme, credentials, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok {
		return Principal{}, false
	}
	credentials = strings.TrimSpace(credentials)

	switch {
	case strings.EqualFold(scheme, AuthTypeBasic):
		raw, err := base64.StdEncoding.DecodeString(credentials)
		if err != nil {
			return Principal{}, false
		}
		user, _, _ := strings.Cut(string(raw), ":")
		if user == "" {
			return Principal{}, false
		}
		return Principal{Name: user, AuthType: AuthTypeBasic}, true

	case strings.EqualFold(scheme, AuthTypeBearer):
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(credentials, claims); err != nil {
			return Principal{}, false
		}
		sub, _ := claims.GetSubject()
		if sub == "" {
			return Principal{}, false
		}
		iss, _ := claims.GetIssuer()
		return Principal{
			Name:     sub,
			AuthType: AuthTypeBearer,
			Claims:   []Claim{{Type: "sub", Value: sub, Issuer: iss, OriginalIssuer: iss}},
		}, true
	}
	return Principal{}, false
}
