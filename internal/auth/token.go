package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

const tokenValidity = 30 * 24 * time.Hour

func sign(secret []byte, message string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

// CreateToken builds the 3-part session token format from §3:
// "<unix>.<base64url(name)>.<base64url(HMAC-SHA256(secret, unix.nameB64))>".
func CreateToken(name string, secret []byte, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	nameB64 := base64.RawURLEncoding.EncodeToString([]byte(name))
	sig := sign(secret, ts+"."+nameB64)
	return ts + "." + nameB64 + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// VerifyToken accepts both the 3-part form and the legacy 2-part form
// "<unix>.<sig>" (no name, signed over just the timestamp). Returns the
// name (empty for the legacy form) and whether the token is valid and
// unexpired as of now.
func VerifyToken(token string, secret []byte, now time.Time) (name string, ok bool) {
	parts := strings.Split(token, ".")
	switch len(parts) {
	case 2:
		return verifyLegacyToken(parts, secret, now)
	case 3:
		return verifyNamedToken(parts, secret, now)
	default:
		return "", false
	}
}

func parseTimestamp(s string) (int64, bool) {
	ts, err := strconv.ParseInt(s, 10, 64)
	return ts, err == nil
}

func withinValidity(ts int64, now time.Time) bool {
	issued := time.Unix(ts, 0)
	if now.Before(issued) {
		return false
	}
	return now.Sub(issued) <= tokenValidity
}

func verifyLegacyToken(parts []string, secret []byte, now time.Time) (string, bool) {
	ts, ok := parseTimestamp(parts[0])
	if !ok || !withinValidity(ts, now) {
		return "", false
	}
	expectedSig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}
	expected := sign(secret, parts[0])
	if subtle.ConstantTimeCompare(expected, expectedSig) != 1 {
		return "", false
	}
	return "", true
}

func verifyNamedToken(parts []string, secret []byte, now time.Time) (string, bool) {
	ts, ok := parseTimestamp(parts[0])
	if !ok || !withinValidity(ts, now) {
		return "", false
	}
	nameBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", false
	}
	expected := sign(secret, parts[0]+"."+parts[1])
	if subtle.ConstantTimeCompare(expected, sig) != 1 {
		return "", false
	}
	return string(nameBytes), true
}
