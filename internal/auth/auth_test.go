package auth

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arrbridge/internal/storage"
	"arrbridge/internal/store"
)

func TestVerifyChallengeRoundTrip(t *testing.T) {
	now := time.Now()
	password := "hunter2hunter2"
	c := Challenge{Origin: "https://example.com", Timestamp: now.Unix(), Name: "alice"}
	c.Hash = deriveHash(password, c.Origin, c.Timestamp)

	require.True(t, VerifyChallenge(c, password, now))
	require.False(t, VerifyChallenge(c, "wrong-password", now))
}

func TestVerifyChallengeRejectsClockSkew(t *testing.T) {
	now := time.Now()
	password := "hunter2hunter2"
	c := Challenge{Origin: "https://example.com", Timestamp: now.Add(-400 * time.Second).Unix(), Name: "alice"}
	c.Hash = deriveHash(password, c.Origin, c.Timestamp)
	require.False(t, VerifyChallenge(c, password, now))
}

func TestVerifyChallengeRejectsEmptyOrLongName(t *testing.T) {
	now := time.Now()
	password := "hunter2hunter2"
	c := Challenge{Origin: "https://example.com", Timestamp: now.Unix()}
	c.Hash = deriveHash(password, c.Origin, c.Timestamp)
	require.False(t, VerifyChallenge(c, password, now))

	c.Name = strings51()
	c.Hash = deriveHash(password, c.Origin, c.Timestamp)
	require.False(t, VerifyChallenge(c, password, now))
}

func strings51() string {
	b := make([]byte, 51)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("supersecret")
	now := time.Now()
	token := CreateToken("alice", secret, now)

	name, ok := VerifyToken(token, secret, now)
	require.True(t, ok)
	require.Equal(t, "alice", name)

	_, ok = VerifyToken(token, secret, now.Add(31*24*time.Hour))
	require.False(t, ok)

	_, ok = VerifyToken(token, secret, now.Add(29*24*time.Hour))
	require.True(t, ok)
}

func TestTokenLegacyTwoPartForm(t *testing.T) {
	secret := []byte("supersecret")
	legacy := "1234567890." + base64.RawURLEncoding.EncodeToString(sign(secret, "1234567890"))
	name, ok := VerifyToken(legacy, secret, time.Unix(1234567890, 0).Add(time.Hour))
	require.True(t, ok)
	require.Empty(t, name)
}

func TestTokenRejectsTamperedSignature(t *testing.T) {
	secret := []byte("supersecret")
	now := time.Now()
	token := CreateToken("alice", secret, now)
	tampered := token[:len(token)-1] + "x"
	_, ok := VerifyToken(tampered, secret, now)
	require.False(t, ok)
}

func TestRateLimitIntegration(t *testing.T) {
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	s := store.New(db)

	l := NewLimiter(s, RateLimitConfig{Enabled: true, MaxAttempts: 2, Window: time.Second})
	ip := "10.0.0.1"

	allowed, err := l.Allow(ip)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, l.RecordFailure(ip))
	require.NoError(t, l.RecordFailure(ip))

	allowed, err = l.Allow(ip)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, l.Clear(ip))
	allowed, err = l.Allow(ip)
	require.NoError(t, err)
	require.True(t, allowed)
}
