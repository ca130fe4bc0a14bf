// Package auth protects the dispatch API with service tokens. Callers
// are other services, not end users, so claims carry a caller name and
// a scope rather than a user identity.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"voice-agent-platform/internal/config"
)

// ScopeDispatch allows POST /start_call.
const ScopeDispatch = "dispatch"

// Claims is the only supported token shape for this service.
type Claims struct {
	jwt.RegisteredClaims

	Caller string `json:"caller"`
	Scope  string `json:"scope"`
}

type Manager struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth: API_JWT_SECRET is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Manager{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		tokenTTL: ttl,
	}, nil
}

// Issue mints a service token for caller with the given scope.
func (m *Manager) Issue(now time.Time, caller, scope string) (string, error) {
	if caller == "" {
		return "", errors.New("auth: caller is required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
			ID:        uuid.NewString(),
		},
		Caller: caller,
		Scope:  scope,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

// Verify parses and validates a token, requiring the given scope.
func (m *Manager) Verify(tokenString, scope string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	validator := jwt.NewValidator(opts...)
	if err := validator.Validate(claims.RegisteredClaims); err != nil {
		return Claims{}, err
	}

	if claims.Caller == "" {
		return Claims{}, errors.New("caller missing")
	}
	if claims.Scope != scope {
		return Claims{}, errors.New("scope mismatch")
	}
	return claims, nil
}
