package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jacksonlee411/lease-signflow/pkg/authz"
)

// Claims are the bearer-token claims the server accepts. Subject is the caller
// id, Role one of the authz role slugs.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// TokenVerifier checks HS256 tokens minted by the identity provider (or by
// dbtool token in development).
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret string, issuer string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("server: jwt secret is required")
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}, nil
}

func (v *TokenVerifier) Verify(raw string) (authz.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return v.secret, nil }, opts...)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return authz.Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" || strings.TrimSpace(claims.Role) == "" {
		return authz.Principal{}, errors.New("token subject and role are required")
	}
	return authz.Principal{Subject: claims.Subject, Role: claims.Role, Name: claims.Name}, nil
}

// IssueToken mints an HS256 token for p that expires after ttl.
func IssueToken(secret string, issuer string, ttl time.Duration, p authz.Principal, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("server: jwt secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: strings.ToLower(strings.TrimSpace(p.Role)),
		Name: p.Name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
