package notifier

import (
	"context"
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"arrbridge/internal/models"
	"arrbridge/internal/storage"
	"arrbridge/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.New(db)
}

func genVAPIDKeys(t *testing.T) (privB64, pubB64 string) {
	t.Helper()
	curve := elliptic.P256()
	priv, x, y, err := elliptic.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	pub := elliptic.Marshal(curve, x, y)
	return base64.RawURLEncoding.EncodeToString(priv), base64.RawURLEncoding.EncodeToString(pub)
}

func genSubscriberKeys(t *testing.T) (p256dhB64, authB64 string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), base64.RawURLEncoding.EncodeToString(auth)
}

func TestNotifyNoSubscriptionIsNoop(t *testing.T) {
	s := newTestStore(t)
	priv, pub := genVAPIDKeys(t)
	n, err := New(s, priv, pub, "mailto:ops@example.com")
	require.NoError(t, err)

	err = n.Notify(context.Background(), &models.Request{RequestedBy: "alice", Title: "X"})
	require.NoError(t, err)
}

func TestNotifySendsEncryptedMessage(t *testing.T) {
	s := newTestStore(t)
	priv, pub := genVAPIDKeys(t)
	p256dh, authSecret := genSubscriberKeys(t)

	var gotAuth, gotEncoding string
	var bodyLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotEncoding = r.Header.Get("Content-Encoding")
		body, _ := io.ReadAll(r.Body)
		bodyLen = len(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	require.NoError(t, s.PutPushSubscription(&models.PushSubscription{
		UserName: "alice", Endpoint: srv.URL, P256dh: p256dh, Auth: authSecret,
	}))

	n, err := New(s, priv, pub, "mailto:ops@example.com")
	require.NoError(t, err)

	err = n.Notify(context.Background(), &models.Request{
		MediaType: models.Movie, TMDBID: 603, Title: "The Matrix", RequestedBy: "alice",
	})
	require.NoError(t, err)
	require.Contains(t, gotAuth, "vapid t=")
	require.Equal(t, "aes128gcm", gotEncoding)
	require.Greater(t, bodyLen, 16+4+1+65)
}

func TestNotifyPrunesStaleSubscription(t *testing.T) {
	s := newTestStore(t)
	priv, pub := genVAPIDKeys(t)
	p256dh, authSecret := genSubscriberKeys(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	require.NoError(t, s.PutPushSubscription(&models.PushSubscription{
		UserName: "alice", Endpoint: srv.URL, P256dh: p256dh, Auth: authSecret,
	}))

	n, err := New(s, priv, pub, "mailto:ops@example.com")
	require.NoError(t, err)

	err = n.Notify(context.Background(), &models.Request{Title: "X", RequestedBy: "alice"})
	require.NoError(t, err)

	_, err = s.GetPushSubscription("alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}
