// Package token issues and verifies the signed, expiring bearer tokens handed
// out on registration and login.
//
// Tokens are stateless: there is no revocation list, so a token stays valid
// until it expires even if the account is deactivated in the meantime.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTTL is the token lifetime used when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// ErrEmptySecret is returned by Issue when the issuer has no signing secret.
var ErrEmptySecret = errors.New("token signing secret is empty")

// Identity is the subject a token is issued for.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Claims is the payload carried by a token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Result is the outcome of Verify. When Valid is false, Reason says why and
// Claims is nil.
type Result struct {
	Valid  bool
	Claims *Claims
	Reason string
}

// Issuer signs tokens with a process-wide symmetric secret (HS256).
type Issuer struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock replaces the time source used for iat/exp and for verification.
func WithClock(now func() time.Time) Option {
	return func(issuer *Issuer) {
		issuer.now = now
	}
}

// New creates an Issuer. A non-positive defaultTTL means DefaultTTL.
func New(secret []byte, defaultTTL time.Duration, options ...Option) *Issuer {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	issuer := &Issuer{
		secret:     secret,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, option := range options {
		option(issuer)
	}

	return issuer
}

// Issue returns a compact signed token for identity valid for ttl. A
// non-positive ttl means the issuer's default.
func (i *Issuer) Issue(identity Identity, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = i.defaultTTL
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: identity.UserID,
		Email:  identity.Email,
		Name:   identity.Name,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}

	return signed, nil
}

// Verify checks the signature and expiry of tokenString. It never fails;
// problems are reported through Result.
func (i *Issuer) Verify(tokenString string) Result {
	if tokenString == "" {
		return Result{Reason: "token is empty"}
	}

	claims := &Claims{}
	// Expiry is checked below against the issuer clock, not jwt's package clock.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return i.secret, nil
		},
	)
	if err != nil {
		return Result{Reason: err.Error()}
	}
	if !token.Valid {
		return Result{Reason: "token is invalid"}
	}

	now := i.now()
	if claims.ExpiresAt == nil || !claims.VerifyExpiresAt(now, true) {
		return Result{Reason: "token is expired"}
	}
	if !claims.VerifyIssuedAt(now, false) {
		return Result{Reason: "token used before issued"}
	}

	return Result{Valid: true, Claims: claims}
}

// Decode extracts the claims of tokenString WITHOUT checking its signature or
// expiry. The result is for inspection only and must never gate access.
func (i *Issuer) Decode(tokenString string) *Claims {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}

	return claims
}
