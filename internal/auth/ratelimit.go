package auth

import (
	"time"

	"arrbridge/internal/store"
)

// RateLimitConfig holds the three fixed configuration knobs from §4.6.
type RateLimitConfig struct {
	Enabled     bool
	MaxAttempts int64
	Window      time.Duration
}

// DefaultRateLimitConfig matches the documented defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Enabled: false, MaxAttempts: 5, Window: 900 * time.Second}
}

// Limiter is the Storage-backed sliding-window counter. Unlike the
// teacher's in-process authRateLimiter (a mutex-guarded map), this state
// lives in Storage so it survives a process restart and is shared across
// any number of server instances.
type Limiter struct {
	store  *store.Store
	config RateLimitConfig
}

func NewLimiter(s *store.Store, cfg RateLimitConfig) *Limiter {
	return &Limiter{store: s, config: cfg}
}

// Allow reports whether ip may attempt verification right now. When rate
// limiting is disabled it always allows.
func (l *Limiter) Allow(ip string) (bool, error) {
	if !l.config.Enabled {
		return true, nil
	}
	return l.store.RateLimitStatus(ip, l.config.MaxAttempts, l.config.Window)
}

// RecordFailure increments ip's bucket after a failed verification.
func (l *Limiter) RecordFailure(ip string) error {
	if !l.config.Enabled {
		return nil
	}
	return l.store.RecordFailedAttempt(ip, l.config.Window)
}

// Clear deletes ip's bucket after a successful verification.
func (l *Limiter) Clear(ip string) error {
	if !l.config.Enabled {
		return nil
	}
	return l.store.ClearRateLimit(ip)
}
