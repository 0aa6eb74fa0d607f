package store

import (
	"time"

	"arrbridge/internal/storage"
)

// RecordFailedAttempt atomically increments the failed-attempt counter for
// ip, seeding first_attempt on first use and extending ttl to
// now+window+60s — this is the same Update primitive as request
// fulfillment (Design Note 2), here used as an upsert rather than a
// conditional transition.
func (s *Store) RecordFailedAttempt(ip string, window time.Duration) error {
	now := time.Now().Unix()
	key := rateLimitKey(ip)

	existing, err := s.db.Get(key)
	firstAttempt := now
	if err == nil {
		if v, ok := existing["first_attempt"]; ok {
			firstAttempt = toInt64(v)
		}
	} else if err != storage.ErrNotFound {
		return err
	}

	_, err = s.db.Update(storage.UpdateInput{
		Key: key,
		Set: map[string]any{
			"first_attempt": firstAttempt,
			"last_attempt":  now,
			"ttl":           now + int64(window.Seconds()) + 60,
		},
		Add: map[string]int64{"failed_attempts": 1},
	})
	return err
}

// RateLimitStatus reports whether ip is currently allowed to attempt
// verification, per the sliding-window rule in the auth component: absent
// or window-expired => allowed; failed_attempts >= max => denied.
func (s *Store) RateLimitStatus(ip string, maxAttempts int64, window time.Duration) (allowed bool, err error) {
	item, err := s.db.Get(rateLimitKey(ip))
	if err == storage.ErrNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	firstAttempt := toInt64(item["first_attempt"])
	if time.Now().Unix()-firstAttempt > int64(window.Seconds()) {
		return true, nil
	}
	failedAttempts := toInt64(item["failed_attempts"])
	return failedAttempts < maxAttempts, nil
}

// ClearRateLimit deletes the bucket for ip — called on a successful
// verification.
func (s *Store) ClearRateLimit(ip string) error {
	return s.db.Delete(rateLimitKey(ip))
}
