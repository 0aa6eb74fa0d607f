package store

import (
	"arrbridge/internal/models"
	"arrbridge/internal/storage"
)

// PutPushSubscription stores (overwrites) the one active subscription for
// a user name.
func (s *Store) PutPushSubscription(sub *models.PushSubscription) error {
	item := storage.Item{
		"endpoint":   sub.Endpoint,
		"keys.p256dh": sub.P256dh,
		"keys.auth":   sub.Auth,
	}
	return s.db.Put(pushKey(sub.UserName), item)
}

// GetPushSubscription looks up the active subscription for a user name.
func (s *Store) GetPushSubscription(userName string) (*models.PushSubscription, error) {
	item, err := s.db.Get(pushKey(userName))
	if err != nil {
		return nil, err
	}
	sub := &models.PushSubscription{UserName: userName}
	sub.Endpoint, _ = item["endpoint"].(string)
	sub.P256dh, _ = item["keys.p256dh"].(string)
	sub.Auth, _ = item["keys.auth"].(string)
	return sub, nil
}

// DeletePushSubscription removes a user's subscription — called on
// unsubscribe and when the Notifier observes a stale (404/410) endpoint.
func (s *Store) DeletePushSubscription(userName string) error {
	return s.db.Delete(pushKey(userName))
}
