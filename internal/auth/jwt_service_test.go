package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "natours/internal/errors"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, secret string, ttl time.Duration) *JWTService {
	t.Helper()
	s, err := NewJWTService(TokenConfig{Secret: []byte(secret), TTL: ttl})
	require.NoError(t, err)
	return s
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	s := newTestService(t, "test-secret", time.Hour)
	userID := uuid.New()

	token, issued, err := s.Issue(userID, t0)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, t0.Equal(issued.IssuedAtTime()))
	assert.True(t, t0.Add(time.Hour).Equal(issued.ExpiresAt.Time))

	claims, err := s.Validate(token, t0.Add(30*time.Minute))
	require.NoError(t, err)

	got, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, got)
	assert.Equal(t, t0.Unix(), claims.IssuedAtTime().Unix())
}

func TestJWTService_ValidityWindow(t *testing.T) {
	s := newTestService(t, "test-secret", time.Hour)
	token, _, err := s.Issue(uuid.New(), t0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"at issue time", t0, nil},
		{"just before expiry", t0.Add(time.Hour - time.Second), nil},
		{"at expiry", t0.Add(time.Hour), apperr.ErrTokenExpired},
		{"long after expiry", t0.Add(48 * time.Hour), apperr.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(token, tt.at)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestJWTService_RejectsOtherKey(t *testing.T) {
	oldKey := newTestService(t, "old-secret", time.Hour)
	newKey := newTestService(t, "new-secret", time.Hour)

	token, _, err := oldKey.Issue(uuid.New(), t0)
	require.NoError(t, err)

	_, err = newKey.Validate(token, t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestJWTService_RejectsMalformedAndForeignTokens(t *testing.T) {
	s := newTestService(t, "test-secret", time.Hour)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(t0),
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(t0),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		IssuedAt:  jwt.NewNumericDate(t0),
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":       "",
		"garbage":     "not.a.jwt",
		"alg none":    noneToken,
		"no expiry":   noExpiry,
		"bad subject": badSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Validate(token, t0)
			assert.ErrorIs(t, err, apperr.ErrInvalidToken)
		})
	}
}

func TestNewJWTService_RequiresSecretAndTTL(t *testing.T) {
	_, err := NewJWTService(TokenConfig{TTL: time.Hour})
	assert.Error(t, err)

	_, err = NewJWTService(TokenConfig{Secret: []byte("k")})
	assert.Error(t, err)
}

func TestResetSecret(t *testing.T) {
	plain, hash, err := NewResetSecret()
	require.NoError(t, err)

	assert.Len(t, plain, 64)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, plain, hash)
	assert.Equal(t, hash, HashResetSecret(plain))

	other, _, err := NewResetSecret()
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)
}
