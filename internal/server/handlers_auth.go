package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"arrbridge/internal/apperr"
	"arrbridge/internal/auth"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"iterations": auth.Iterations})
}

type verifyRequest struct {
	Origin    string `json:"origin"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
	Name      string `json:"name"`
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	Token string `json:"token"`
	Name  string `json:"name"`
}

// handleAuthVerify implements the "rate limit check happens before PBKDF2
// is spent" ordering: a client already over budget never reaches
// VerifyChallenge.
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	allowed, err := s.limiter.Allow(ip)
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeError(w, apperr.ErrRateLimited)
		return
	}

	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.ErrBadInput)
		return
	}

	challenge := auth.Challenge{Origin: req.Origin, Timestamp: req.Timestamp, Hash: req.Hash, Name: req.Name}
	if !auth.VerifyChallenge(challenge, s.cfg.PresharedPassword, time.Now()) {
		if err := s.limiter.RecordFailure(ip); err != nil {
			writeError(w, err)
			return
		}
		writeError(w, apperr.ErrAuth)
		return
	}

	if err := s.limiter.Clear(ip); err != nil {
		writeError(w, err)
		return
	}

	token := auth.CreateToken(req.Name, []byte(s.cfg.AppSecretKey), time.Now())
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true, Token: token, Name: req.Name})
}

// clientIP prefers X-Forwarded-For's first hop, falling back to
// RemoteAddr — matching the teacher's reverse-proxy deployment shape.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return fwd[:i]
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
