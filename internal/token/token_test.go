package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = Identity{
	UserID: "user-1",
	Email:  "alice@example.com",
	Name:   "Alice",
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func TestIssueAndVerify(t *testing.T) {
	issuer := New([]byte("secret"), 0)

	tokenString, err := issuer.Issue(testIdentity, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(tokenString, "."))

	result := issuer.Verify(tokenString)
	require.True(t, result.Valid, result.Reason)
	assert.Equal(t, "user-1", result.Claims.UserID)
	assert.Equal(t, "user-1", result.Claims.Subject)
	assert.Equal(t, "alice@example.com", result.Claims.Email)
	assert.Equal(t, "Alice", result.Claims.Name)
	assert.WithinDuration(
		t,
		result.Claims.IssuedAt.Add(DefaultTTL),
		result.Claims.ExpiresAt.Time,
		time.Second,
	)
}

func TestVerifyExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	issuer := New([]byte("secret"), 0, WithClock(clock.Now))

	tokenString, err := issuer.Issue(testIdentity, time.Second)
	require.NoError(t, err)

	assert.True(t, issuer.Verify(tokenString).Valid)

	clock.now = clock.now.Add(2 * time.Second)
	result := issuer.Verify(tokenString)
	assert.False(t, result.Valid)
	assert.Nil(t, result.Claims)
	assert.NotEmpty(t, result.Reason)
}

func TestVerifyRejects(t *testing.T) {
	issuer := New([]byte("secret"), time.Hour)
	other := New([]byte("another secret"), time.Hour)

	foreign, err := other.Issue(testIdentity, 0)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "x"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "wrong secret", token: foreign},
		{name: "alg none", token: unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := issuer.Verify(tt.token)
			assert.False(t, result.Valid)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestIssueWithoutSecret(t *testing.T) {
	_, err := New(nil, 0).Issue(testIdentity, 0)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestDecodeDoesNotVerify(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	issuer := New([]byte("secret"), 0, WithClock(clock.Now))
	other := New([]byte("another secret"), 0)

	tokenString, err := issuer.Issue(testIdentity, time.Second)
	require.NoError(t, err)

	claims := other.Decode(tokenString)
	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims.UserID)

	assert.Nil(t, other.Decode("garbage"))
}
