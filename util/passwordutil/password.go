// Package passwordutil hashes and verifies local account passwords.
//
// Digests are bcrypt strings, which encode their own cost, so changing the
// configured cost never invalidates previously stored digests.
package passwordutil

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is used when no cost has been configured.
const DefaultCost = 10

// Sentinel is stored as the password of accounts created through federation.
// It is not a bcrypt digest, so no plaintext ever verifies against it.
const Sentinel = "!federated"

// MinPasswordLength is the minimum accepted plaintext length.
const MinPasswordLength = 6

var cost = DefaultCost

// SetCost changes the cost used for new hashes. Out-of-range values fall back
// to DefaultCost.
func SetCost(c int) {
	if c < bcrypt.MinCost || c > bcrypt.MaxCost {
		c = DefaultCost
	}
	cost = c
}

// GeneratePasswordHash generates a hash from a password.
func GeneratePasswordHash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

// CheckPasswordHash compares a hash and the provided password. Malformed
// hashes, including Sentinel, never match.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var dummy struct {
	sync.Mutex
	cost int
	hash []byte
}

func dummyHash() []byte {
	dummy.Lock()
	defer dummy.Unlock()
	if dummy.hash == nil || dummy.cost != cost {
		dummy.hash, _ = bcrypt.GenerateFromPassword([]byte("!no-such-account"), cost)
		dummy.cost = cost
	}
	return dummy.hash
}

// CheckDummyPasswordHash compares password against a throwaway digest at the
// current cost and always returns false. Call it when there is no stored
// digest to check, so that path costs the same as a wrong password.
func CheckDummyPasswordHash(password string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
	return false
}
