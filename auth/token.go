// Package auth validates the HMAC-signed bearer tokens issued to API
// consumers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for malformed or badly signed tokens
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned for expired tokens
	ErrTokenExpired = errors.New("token expired")
)

// Claims carries the identity embedded in an API token.
type Claims struct {
	// Subject identifies the API consumer
	Subject string

	// Scopes lists the consumer's granted scopes
	Scopes []string
}

// HasScope reports whether a scope was granted
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// tokenClaims is the JWT wire shape
type tokenClaims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HMAC-signed tokens.
type Validator struct {
	signingKey []byte
	issuer     string
}

// NewValidator creates a token validator
func NewValidator(signingKey, issuer string) *Validator {
	return &Validator{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}
}

// ValidateToken parses and verifies a bearer token
func (v *Validator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return &Claims{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
	}, nil
}

// IssueToken mints a signed token; used by provisioning tooling and tests
func (v *Validator) IssueToken(subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.signingKey)
}
