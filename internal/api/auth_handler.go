package api

import (
	"net/http"
)

// ChallengeRequest starts a wallet login
type ChallengeRequest struct {
	Address string `json:"address"`
}

// VerifyRequest answers a challenge with a personal_sign signature
type VerifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// handleChallenge handles POST /api/auth/challenge
func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, err := parseAddress(req.Address)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.sessions.Challenge(addr))
}

// handleVerify handles POST /api/auth/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, err := parseAddress(req.Address)
	if err != nil {
		writeErr(w, err)
		return
	}
	if req.Signature == "" {
		writeError(w, http.StatusBadRequest, "signature is required")
		return
	}

	sess, err := s.sessions.Verify(addr, req.Signature)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
