package security

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hash password hashes a plain text password with bcrypt.
func HashPassword(plain string) (string, error) {
	return NewBcryptHasher(bcrypt.DefaultCost).Hash(plain)
}

// helper that compares a bcrypt hash with a plaintext password.

func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(plain))
}

// prehash folds any input into 44 bytes, under bcrypt's 72 byte limit, so
// long passphrases are neither rejected nor silently truncated.
func prehash(plain string) []byte {
	sum := sha256.Sum256([]byte(plain))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// BcryptHasher hashes passwords and OTPs. Cost is configurable so tests can
// run at bcrypt.MinCost.
type BcryptHasher struct {
	cost      int
	dummyHash []byte
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	// used by Burn so a missing user costs the same as a wrong password
	dummy, _ := bcrypt.GenerateFromPassword(prehash("authhub-timing-equaliser"), cost)

	return &BcryptHasher{cost: cost, dummyHash: dummy}
}

func (h *BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(prehash(plain), h.cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify reports whether plain matches hash. A malformed hash is an error,
// a mismatch is not.
func (h *BcryptHasher) Verify(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(plain))

	if err == nil {
		return true, nil
	}

	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}

	return false, err
}

// Burn performs one throwaway comparison.
func (h *BcryptHasher) Burn(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, prehash(plain))
}
