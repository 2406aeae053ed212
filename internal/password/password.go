// Package password hashes and verifies stored account passwords with bcrypt.
// Hashing is deliberately slow; the work factor is fixed by Cost.
package password

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor used by the package-level helpers.
const Cost = 10

var (
	// ErrHashing is returned when the bcrypt primitive fails to produce a hash.
	ErrHashing = errors.New("password hashing failed")

	// ErrVerification is returned when the bcrypt primitive fails for a reason
	// other than a mismatch or a malformed stored hash.
	ErrVerification = errors.New("password verification failed")
)

// Hasher hashes and verifies passwords with a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost. Out of range costs
// fall back to Cost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = Cost
	}

	return &Hasher{cost: cost}
}

// Hash returns a salted bcrypt hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashing, err)
	}

	return string(hashed), nil
}

// Verify reports whether plaintext matches hashed. A mismatch or a malformed
// hash is reported as false without an error.
func (h *Hasher) Verify(plaintext, hashed string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if isMismatchOrMalformed(err) {
		return false, nil
	}

	return false, fmt.Errorf("%w: %v", ErrVerification, err)
}

func isMismatchOrMalformed(err error) bool {
	var (
		prefixErr  bcrypt.InvalidHashPrefixError
		versionErr bcrypt.HashVersionTooNewError
		costErr    bcrypt.InvalidCostError
	)

	return errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) ||
		errors.Is(err, bcrypt.ErrHashTooShort) ||
		errors.As(err, &prefixErr) ||
		errors.As(err, &versionErr) ||
		errors.As(err, &costErr)
}

var defaultHasher = NewHasher(Cost)

// Hash hashes plaintext with the default cost.
func Hash(plaintext string) (string, error) {
	return defaultHasher.Hash(plaintext)
}

// Verify checks plaintext against hashed with the default hasher.
func Verify(plaintext, hashed string) (bool, error) {
	return defaultHasher.Verify(plaintext, hashed)
}

// Digest returns the hex encoded SHA-256 of data. It is a fingerprint, not a
// password hash.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}
