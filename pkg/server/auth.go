package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/getmockd/interceptd/pkg/httputil"
)

// TokenIssuer is the issuer claim of session tokens.
const TokenIssuer = "interceptd"

var errMissingToken = errors.New("missing bearer token")

// NewToken mints an HS256 session token for subject. A zero ttl yields a
// token without expiry.
func NewToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("token secret is required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:   TokenIssuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks an HS256 session token and returns its subject.
func ValidateToken(secret []byte, tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
	)
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("token is invalid")
	}
	return claims.Subject, nil
}

// authenticate checks the bearer token when a secret is configured. It
// returns the token subject, or "" when auth is disabled.
func (s *Server) authenticate(r *http.Request) (string, error) {
	if len(s.cfg.TokenSecret) == 0 {
		return "", nil
	}
	token, ok := httputil.BearerToken(r)
	if !ok {
		return "", errMissingToken
	}
	return ValidateToken(s.cfg.TokenSecret, token)
}
