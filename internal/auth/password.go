// Package auth implements challenge-response verification (PBKDF2 +
// constant-time compare), a Storage-backed sliding-window rate limiter,
// and stateless HMAC session tokens. Grounded on the teacher's
// internal/auth/password.go (Argon2id hash/verify shape, generalized to
// PBKDF2) and internal/auth/auth.go (rate limiter, generalized from an
// in-memory map to Storage-backed state since rate-limit buckets must
// survive a restart).
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	pbkdf2KeyLen      = 32
	clockSkewSeconds  = 300
	maxNameLen        = 50
)

// Iterations is exposed so GET /api/auth/params can report it.
const Iterations = pbkdf2Iterations

// Challenge is the body of POST /api/auth/verify.
type Challenge struct {
	Origin    string
	Timestamp int64
	Hash      string
	Name      string
}

// deriveHash reproduces the client-side derivation:
// derived = PBKDF2-HMAC-SHA256(password, origin, iterations, 32)
// expected = SHA256(hex(derived) + ":" + timestamp) in lowercase hex.
func deriveHash(password, origin string, timestamp int64) string {
	derived := pbkdf2.Key([]byte(password), []byte(origin), pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	sum := sha256.Sum256([]byte(hex.EncodeToString(derived) + ":" + fmt.Sprintf("%d", timestamp)))
	return hex.EncodeToString(sum[:])
}

// VerifyChallenge checks c against password, given the server's current
// time. It does NOT check rate limiting — callers must check that first
// (see Limiter.Allow) so PBKDF2 is never spent on a rate-limited client.
func VerifyChallenge(c Challenge, password string, now time.Time) bool {
	if c.Name == "" || len(c.Name) > maxNameLen {
		return false
	}
	delta := now.Unix() - c.Timestamp
	if delta < 0 {
		delta = -delta
	}
	if delta > clockSkewSeconds {
		return false
	}
	expected := deriveHash(password, c.Origin, c.Timestamp)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(c.Hash)) == 1
}
