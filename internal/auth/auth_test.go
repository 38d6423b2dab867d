package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/realtime/internal/config"
	"fleet-monitor/realtime/internal/logging"
)

type fakeKeys struct {
	owners map[string]string
	calls  int
	err    error
}

func (f *fakeKeys) GetAPIKey(_ context.Context, key string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.owners[key], nil
}

func TestAuthenticatorLevels(t *testing.T) {
	cfg := &config.Config{ValidAPIKeys: []string{"static-key"}, AuthCacheTTLSeconds: 60}
	keys := &fakeKeys{owners: map[string]string{"redis-key": "EV-1"}}
	a := NewAuthenticator(cfg, keys, logging.Discard())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, a.Validate(ctx, "static-key"))
	assert.Zero(t, keys.calls)

	assert.True(t, a.Validate(ctx, "redis-key"))
	assert.True(t, a.Validate(ctx, "redis-key"))
	assert.Equal(t, 1, keys.calls, "second lookup served from cache")

	now = now.Add(61 * time.Second)
	assert.True(t, a.Validate(ctx, "redis-key"))
	assert.Equal(t, 2, keys.calls, "expired cache entry goes back to the store")

	assert.False(t, a.Validate(ctx, "unknown"))
	assert.False(t, a.Validate(ctx, ""))
}

func TestAuthenticatorStoreErrorRejects(t *testing.T) {
	cfg := &config.Config{AuthCacheTTLSeconds: 60}
	a := NewAuthenticator(cfg, &fakeKeys{err: errors.New("redis down")}, logging.Discard())

	assert.False(t, a.Validate(context.Background(), "any"))
}

func TestAuthenticatorWithoutStore(t *testing.T) {
	cfg := &config.Config{ValidAPIKeys: []string{"k1", ""}, AuthCacheTTLSeconds: 60}
	a := NewAuthenticator(cfg, nil, nil)

	assert.True(t, a.Validate(context.Background(), "k1"))
	assert.False(t, a.Validate(context.Background(), "k2"))
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService([]byte("secret"), time.Hour)
	token, err := svc.GenerateToken(&User{ID: 1, Username: "admin", Role: RoleAdmin})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, issuer, claims.Issuer)
}

func TestJWTRejectsExpired(t *testing.T) {
	svc := NewJWTService([]byte("secret"), time.Minute)
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }

	token, err := svc.GenerateToken(&User{ID: 2, Username: "viewer", Role: RoleViewer})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService([]byte("one"), time.Hour).GenerateToken(&User{ID: 1, Username: "admin", Role: RoleAdmin})
	require.NoError(t, err)

	_, err = NewJWTService([]byte("two"), time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTRejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTService([]byte("secret"), time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestUserStore(t *testing.T) {
	s, err := NewUserStore("admin123", "viewer123")
	require.NoError(t, err)

	u, err := s.Authenticate("admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, u.Role)

	u, err = s.Authenticate("viewer", "viewer123")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, u.Role)
	assert.Equal(t, 2, u.ID)

	_, err = s.Authenticate("admin", "viewer123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate("root", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
