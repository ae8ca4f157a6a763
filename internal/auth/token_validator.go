package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAudience is the audience hosted auth servers stamp on user access tokens.
	DefaultAudience = "authenticated"

	bearerPrefix = "Bearer "
)

var (
	ErrMissingSigningKey   = errors.New("token validator: signing key required")
	ErrMissingAccessToken  = errors.New("token validator: token required")
	ErrInvalidAccessToken  = errors.New("token validator: invalid token")
	ErrExpiredAccessToken  = errors.New("token validator: token expired")
	ErrMissingTokenSubject = errors.New("token validator: subject required")
)

// AccessClaims mirrors the JWT payload of a user access token.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidatorConfig describes how to validate access tokens.
// Issuer is optional; Audience defaults to DefaultAudience.
type TokenValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	Clock         func() time.Time
}

// TokenValidator validates HS256 access tokens.
type TokenValidator struct {
	signingSecret []byte
	issuer        string
	audience      string
	clock         func() time.Time
}

// NewTokenValidator constructs a validator with the provided configuration.
func NewTokenValidator(cfg TokenValidatorConfig) (*TokenValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningKey
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = DefaultAudience
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        strings.TrimSpace(cfg.Issuer),
		audience:      audience,
		clock:         clock,
	}, nil
}

// ValidateToken validates the supplied JWT string and returns the parsed claims.
func (v *TokenValidator) ValidateToken(tokenString string) (AccessClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return AccessClaims{}, ErrMissingAccessToken
	}

	options := []jwt.ParserOption{
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidAccessToken, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		options...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrExpiredAccessToken
		}
		return AccessClaims{}, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return AccessClaims{}, ErrInvalidAccessToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return AccessClaims{}, ErrMissingTokenSubject
	}
	return *claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// ValidateRequest extracts the bearer token from the request and validates it.
func (v *TokenValidator) ValidateRequest(r *http.Request) (string, AccessClaims, error) {
	if r == nil {
		return "", AccessClaims{}, ErrMissingAccessToken
	}
	token := BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", AccessClaims{}, ErrMissingAccessToken
	}
	claims, err := v.ValidateToken(token)
	if err != nil {
		return "", AccessClaims{}, err
	}
	return token, claims, nil
}
