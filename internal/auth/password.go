package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength applies to new passwords only.
const MinPasswordLength = 8

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// burnPasswordCheck spends the same bcrypt work as a real comparison so
// unknown emails are not distinguishable by latency.
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
		if err == nil {
			dummyHash = string(h)
		}
	})
	if dummyHash != "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
	}
}

// HashSecret returns the storage form of an opaque credential secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretMatches compares a presented secret against a stored hash in constant time.
func SecretMatches(expectedHash, secret string) bool {
	actual := HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}

// SplitToken splits "<id>.<secret>".
func SplitToken(raw string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || id == "" || secret == "" || strings.Contains(secret, ".") {
		return "", "", errors.New("invalid token format")
	}
	return id, secret, nil
}

// JoinToken is the inverse of SplitToken.
func JoinToken(id, secret string) string {
	return id + "." + secret
}
