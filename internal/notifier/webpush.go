// Package notifier implements the Web Push fulfillment notifier: RFC 8188
// aes128gcm content encryption and RFC 8292 VAPID authentication, byte-
// exact per the original Python reference (webpush.py) since push
// endpoints (FCM/Mozilla/Apple) reject anything that deviates from the
// wire format. Shaped after the teacher's multi-channel
// internal/notifier.Notifier, reduced to the one channel the system names.
package notifier

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"arrbridge/internal/httputil"
	"arrbridge/internal/models"
	"arrbridge/internal/store"
)

const recordSize = 4096

// Notifier sends Web Push messages for newly-fulfilled requests.
type Notifier struct {
	store      *store.Store
	http       *http.Client
	privateKey *ecdsa.PrivateKey
	publicKey  []byte // 65-byte uncompressed point
	subject    string
}

// New constructs a Notifier from a VAPID key pair. vapidPrivateKeyB64 is a
// base64url (no padding) encoded P-256 private scalar, matching the
// VAPID_PRIVATE_KEY/VAPID_PUBLIC_KEY environment convention; subject is
// the operator-supplied "mailto:" or URL claim.
func New(s *store.Store, vapidPrivateKeyB64, vapidPublicKeyB64, subject string) (*Notifier, error) {
	priv, err := parseVAPIDPrivateKey(vapidPrivateKeyB64)
	if err != nil {
		return nil, fmt.Errorf("notifier: parsing VAPID private key: %w", err)
	}
	pub, err := base64.RawURLEncoding.DecodeString(vapidPublicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("notifier: parsing VAPID public key: %w", err)
	}
	return &Notifier{
		store:      s,
		http:       httputil.NewClientWithTimeout(httputil.DefaultTimeout),
		privateKey: priv,
		publicKey:  pub,
		subject:    subject,
	}, nil
}

func parseVAPIDPrivateKey(b64 string) (*ecdsa.PrivateKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	curve := elliptic.P256()
	priv := new(ecdsa.PrivateKey)
	priv.Curve = curve
	priv.D = new(big.Int).SetBytes(raw)
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(raw)
	return priv, nil
}

// pushPayload is the JSON body delivered to the client's service worker.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	Icon  string `json:"icon,omitempty"`
	Image string `json:"image,omitempty"`
}

func buildPayload(r *models.Request) pushPayload {
	p := pushPayload{
		Title: fmt.Sprintf("%s is now available", r.Title),
		Body:  "Your request has been added to the library.",
		Tag:   fmt.Sprintf("fulfilled-%s-%d", r.MediaType, r.TMDBID),
	}
	if r.PosterPath != "" {
		posterURL := "https://image.tmdb.org/t/p/w300" + r.PosterPath
		p.Icon = posterURL
		p.Image = posterURL
	}
	return p
}

// Notify looks up the requester's subscription and sends an encrypted Web
// Push message. A missing subscription is a silent no-op. A stale
// (404/410) endpoint is pruned from storage. Notifier never retries and
// never returns an error for delivery failures, which it logs instead; it
// returns an error for storage failures looking up or deleting the
// subscription and for failures encoding or encrypting the payload.
func (n *Notifier) Notify(ctx context.Context, r *models.Request) error {
	if r.RequestedBy == "" {
		return nil
	}
	sub, err := n.store.GetPushSubscription(r.RequestedBy)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	body, err := json.Marshal(buildPayload(r))
	if err != nil {
		return fmt.Errorf("notifier: encoding payload: %w", err)
	}

	record, err := n.encrypt(body, sub.P256dh, sub.Auth)
	if err != nil {
		return fmt.Errorf("notifier: encrypting: %w", err)
	}

	if err := n.send(ctx, sub.Endpoint, record); err != nil {
		if isStaleSubscription(err) {
			return n.store.DeletePushSubscription(r.RequestedBy)
		}
		log.Printf("notifier: push to %s failed: %v", r.RequestedBy, err)
		return nil // delivery failures never fail the caller
	}
	return nil
}

type staleSubscriptionError struct{ status int }

func (e *staleSubscriptionError) Error() string {
	return fmt.Sprintf("push endpoint returned %d", e.status)
}

func isStaleSubscription(err error) bool {
	var se *staleSubscriptionError
	return errors.As(err, &se)
}

func (n *Notifier) send(ctx context.Context, endpoint string, record []byte) error {
	jwtStr, err := n.vapidJWT(endpoint)
	if err != nil {
		return fmt.Errorf("notifier: signing VAPID JWT: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(record))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("TTL", "86400")
	req.Header.Set("Authorization", fmt.Sprintf("vapid t=%s, k=%s", jwtStr, base64.RawURLEncoding.EncodeToString(n.publicKey)))

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer httputil.DrainBody(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &staleSubscriptionError{status: resp.StatusCode}
	default:
		return fmt.Errorf("notifier: push endpoint returned %d", resp.StatusCode)
	}
}

// vapidJWT signs an ES256 JWT with claims {aud, exp, sub} per RFC 8292.
// golang-jwt/jwt's ES256 signer emits the raw r||s 64-byte signature
// format RFC 8292 requires directly — no DER-to-raw conversion needed.
func (n *Notifier) vapidJWT(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	claims := jwt.MapClaims{
		"aud": u.Scheme + "://" + u.Host,
		"exp": time.Now().Add(12 * time.Hour).Unix(),
		"sub": n.subject,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(n.privateKey)
}

// encrypt implements RFC 8188 aes128gcm. The salt and the ephemeral server
// keypair are fresh per message. Layout: salt(16) || rs(4 BE) || idlen(1)
// || server_pub(65) || ciphertext.
func (n *Notifier) encrypt(plaintext []byte, p256dhB64, authB64 string) ([]byte, error) {
	userPub, err := base64.RawURLEncoding.DecodeString(p256dhB64)
	if err != nil {
		return nil, fmt.Errorf("decoding p256dh: %w", err)
	}
	authSecret, err := base64.RawURLEncoding.DecodeString(authB64)
	if err != nil {
		return nil, fmt.Errorf("decoding auth secret: %w", err)
	}

	curve := ecdh.P256()
	userKey, err := curve.NewPublicKey(userPub)
	if err != nil {
		return nil, fmt.Errorf("parsing subscriber public key: %w", err)
	}
	serverPriv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	serverPub := serverPriv.PublicKey().Bytes()

	sharedSecret, err := serverPriv.ECDH(userKey)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	ikmInfo := make([]byte, 0, len("WebPush: info\x00")+len(userPub)+len(serverPub))
	ikmInfo = append(ikmInfo, "WebPush: info\x00"...)
	ikmInfo = append(ikmInfo, userPub...)
	ikmInfo = append(ikmInfo, serverPub...)
	ikm, err := hkdfExpand(authSecret, sharedSecret, ikmInfo, 32)
	if err != nil {
		return nil, err
	}

	cek, err := hkdfExpand(salt, ikm, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, err
	}
	nonce, err := hkdfExpand(salt, ikm, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, err
	}

	padded := append(append([]byte{}, plaintext...), 0x02)

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, padded, nil)

	header := make([]byte, 16+4+1+len(serverPub))
	copy(header, salt)
	binary.BigEndian.PutUint32(header[16:20], recordSize)
	header[20] = byte(len(serverPub))
	copy(header[21:], serverPub)

	return append(header, ciphertext...), nil
}

// hkdfExpand runs HKDF-SHA256 extract-then-expand to derive n bytes.
func hkdfExpand(salt, ikm, info []byte, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
