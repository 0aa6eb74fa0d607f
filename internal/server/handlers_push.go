package server

import (
	"net/http"

	"arrbridge/internal/apperr"
	"arrbridge/internal/models"
)

type pushSubscribeBody struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// handlePushSubscribe stores the subscription under the name carried by the
// caller's session token — "Bearer + name" in the endpoint table means the
// subscription owner is whoever the bearer token identifies, not a
// client-supplied field the caller could spoof.
func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	name := userNameFromContext(r.Context())
	var body pushSubscribeBody
	if err := decodeJSON(r, &body); err != nil || name == "" || body.Endpoint == "" {
		writeError(w, apperr.ErrBadInput)
		return
	}
	sub := &models.PushSubscription{
		UserName: name,
		Endpoint: body.Endpoint,
		P256dh:   body.Keys.P256dh,
		Auth:     body.Keys.Auth,
	}
	if err := s.store.PutPushSubscription(sub); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	name := userNameFromContext(r.Context())
	if name == "" {
		writeError(w, apperr.ErrBadInput)
		return
	}
	if err := s.store.DeletePushSubscription(name); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handlePushStatus(w http.ResponseWriter, r *http.Request) {
	name := userNameFromContext(r.Context())
	if name == "" {
		writeError(w, apperr.ErrBadInput)
		return
	}
	_, err := s.store.GetPushSubscription(name)
	writeJSON(w, http.StatusOK, map[string]bool{"subscribed": err == nil})
}
