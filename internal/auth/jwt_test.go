package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-secret-key-for-testing-only-0123456789"

func newTestService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{
		SigningKey: testKey,
		Issuer:     "https://api.daytrip.tw",
		Audience:   "daytrip-api",
	})
	require.NoError(t, err)
	return svc
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := newTestService(t)

	token, expiresAt, err := svc.IssueToken("itinerary-bot", []string{ScopePlan}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "itinerary-bot", claims.ClientID())
	assert.Equal(t, "https://api.daytrip.tw", claims.Issuer)
	assert.True(t, claims.HasScope(ScopePlan))
	assert.False(t, claims.HasScope(ScopeCatalogWrite))
}

func TestClaims_AdminGrantsEverything(t *testing.T) {
	c := &Claims{Scopes: []string{ScopeAdmin}}
	for _, s := range Scopes {
		assert.True(t, c.HasScope(s), s)
	}

	var none *Claims
	assert.False(t, none.HasScope(ScopePlan))
}

func TestJWTService_IssueToken_Errors(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.IssueToken("", nil, 0)
	assert.ErrorIs(t, err, ErrMissingClientID)

	_, _, err = svc.IssueToken("bot", []string{"trips:delete"}, 0)
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestJWTService_ClampsTTL(t *testing.T) {
	svc := newTestService(t)

	_, expiresAt, err := svc.IssueToken("bot", nil, 365*24*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(MaxTokenTTL), expiresAt, time.Minute)
}

func TestJWTService_Expired(t *testing.T) {
	svc := newTestService(t)
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }

	token, _, err := svc.IssueToken("bot", nil, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := newTestService(t)

	other, err := NewJWTService(JWTConfig{
		SigningKey: "another-secret-key-that-is-long-enough",
		Issuer:     "https://api.daytrip.tw",
		Audience:   "daytrip-api",
	})
	require.NoError(t, err)
	foreign, _, err := other.IssueToken("bot", nil, 0)
	require.NoError(t, err)

	wrongAudience, err := NewJWTService(JWTConfig{SigningKey: testKey, Issuer: "https://api.daytrip.tw", Audience: "other"})
	require.NoError(t, err)
	misdirected, _, err := wrongAudience.IssueToken("bot", nil, 0)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "bot"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"foreign signature", foreign},
		{"wrong audience", misdirected},
		{"alg none", unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewJWTService_WeakKey(t *testing.T) {
	_, err := NewJWTService(JWTConfig{SigningKey: "short"})
	assert.ErrorIs(t, err, ErrWeakSigningKey)
}
