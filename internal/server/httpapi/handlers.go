package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stko/zuul-ac/internal/common"
	"github.com/stko/zuul-ac/internal/models"
	"github.com/stko/zuul-ac/internal/server/auth"
)

// defaultEventWait bounds an event long-poll when the worker does not ask
// for a specific wait.
const defaultEventWait = 25 * time.Second

type sessionRequest struct {
	Peer   string `json:"peer"`
	Secret string `json:"secret"`
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.sharedSecret)) != 1 {
		s.log.Warn(r.Context(), "session denied", "peer", req.Peer)
		writeError(w, http.StatusUnauthorized, common.ErrInvalidSecret.Error())
		return
	}

	token, err := auth.GenerateToken(req.Peer, s.jwtSecret, s.sessionValidity)
	if err != nil {
		s.log.Error(r.Context(), "cannot mint session token", "error", err)
		writeError(w, http.StatusInternalServerError, "session setup failed")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: uuid.NewString(),
		Token:     token,
	})
}

// authenticate requires a valid Bearer session token on every request.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := auth.PeerFromToken(token, s.jwtSecret); err != nil {
			writeError(w, http.StatusUnauthorized, common.ErrInvalidToken.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var env models.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid envelope")
		return
	}

	reply, err := s.core.HandleMessage(r.Context(), env)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, common.ErrUnknownMessageType) {
			s.log.Warn(r.Context(), "message rejected", "type", env.Type, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	wait := defaultEventWait
	if raw := r.URL.Query().Get("wait"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			wait = time.Duration(seconds) * time.Second
		}
	}

	env, ok := s.bus.Next(r.Context(), wait)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

type otpRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.core.RequestCredential(r.Context(), req.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIDCard(w http.ResponseWriter, r *http.Request) {
	requestor := r.URL.Query().Get("requestor")
	receiver := r.URL.Query().Get("receiver")
	if requestor == "" || receiver == "" {
		writeError(w, http.StatusBadRequest, "requestor and receiver are required")
		return
	}

	token, err := s.core.IssueIDCard(r.Context(), requestor, receiver)
	if err != nil {
		s.log.Error(r.Context(), "id card issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "id card issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, models.IDCardResult{Token: token})
}

type changedResponse struct {
	Changed []models.Identity `json:"changed"`
}

func (s *Server) handleAddFollower(w http.ResponseWriter, r *http.Request) {
	sponsorID := chi.URLParam(r, "userID")

	var follower models.Identity
	if err := json.NewDecoder(r.Body).Decode(&follower); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	changed, err := s.core.AddDelegation(r.Context(), sponsorID, follower)
	if err != nil {
		writeError(w, delegationStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Server) handleRevokeFollower(w http.ResponseWriter, r *http.Request) {
	sponsorID := chi.URLParam(r, "userID")
	followerID := chi.URLParam(r, "followerID")

	changed, err := s.core.RevokeDelegation(r.Context(), sponsorID, followerID)
	if err != nil {
		writeError(w, delegationStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Server) handleListFollowers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Followers(chi.URLParam(r, "userID")))
}

func (s *Server) handleListSponsors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Sponsors(chi.URLParam(r, "userID")))
}

func delegationStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrUnknownUser):
		return http.StatusNotFound
	case errors.Is(err, common.ErrNotEntitled):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
