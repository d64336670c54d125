// Package auth issues and validates the service tokens that API clients
// present as bearer credentials.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token lifetimes.
const (
	// DefaultTokenTTL is how long service tokens are valid unless the issuer
	// asks otherwise.
	DefaultTokenTTL = 24 * time.Hour

	// MaxTokenTTL bounds requested lifetimes.
	MaxTokenTTL = 90 * 24 * time.Hour

	// MinSigningKeyLength is the shortest accepted HS256 secret, in bytes.
	MinSigningKeyLength = 32
)

// Scopes granted to service tokens.
const (
	ScopePlan         = "trips:plan"
	ScopeCatalogWrite = "catalog:write"
	ScopeAdmin        = "admin"
)

// Scopes lists every known scope.
var Scopes = []string{ScopePlan, ScopeCatalogWrite, ScopeAdmin}

// Predefined JWT errors.
var (
	ErrInvalidToken    = errors.New("invalid access token")
	ErrTokenExpired    = errors.New("access token has expired")
	ErrWeakSigningKey  = errors.New("signing key too short")
	ErrUnknownScope    = errors.New("unknown scope")
	ErrMissingClientID = errors.New("client id is required")
)

// Claims are the claims of a service token. Subject holds the client id.
type Claims struct {
	jwt.RegisteredClaims

	Scopes []string `json:"scp,omitempty"`
}

// ClientID returns the client the token was issued to.
func (c *Claims) ClientID() string {
	return c.Subject
}

// HasScope reports whether the token grants scope. The admin scope grants all.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	return slices.Contains(c.Scopes, scope) || slices.Contains(c.Scopes, ScopeAdmin)
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the HS256 secret (at least MinSigningKeyLength bytes).
	SigningKey string

	// Issuer is the issuer claim for tokens (e.g., "https://api.daytrip.tw").
	Issuer string

	// Audience is the audience claim for tokens (e.g., "daytrip-api").
	Audience string
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSigningKey, MinSigningKeyLength)
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		now:        time.Now,
	}, nil
}

// IssueToken signs a token for clientID with the given scopes. A zero ttl
// uses DefaultTokenTTL; longer than MaxTokenTTL is clamped.
func (s *JWTService) IssueToken(clientID string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if clientID == "" {
		return "", time.Time{}, ErrMissingClientID
	}
	for _, sc := range scopes {
		if !slices.Contains(Scopes, sc) {
			return "", time.Time{}, fmt.Errorf("%w: %s", ErrUnknownScope, sc)
		}
	}
	switch {
	case ttl <= 0:
		ttl = DefaultTokenTTL
	case ttl > MaxTokenTTL:
		ttl = MaxTokenTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   clientID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing service token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
