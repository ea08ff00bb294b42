package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type sessionOpenRequest struct {
	Owner  string `json:"owner"`
	Stake  int64  `json:"stake"`
	Family string `json:"family"`
}

type sessionRevealRequest struct {
	Owner     string `json:"owner"`
	Selection int    `json:"selection"`
}

type sessionCashoutRequest struct {
	Owner string `json:"owner"`
}

func (s *Server) openSession(w http.ResponseWriter, r *http.Request) {
	var req sessionOpenRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	snap, err := s.sessionSvc.Open(r.Context(), req.Owner, req.Stake, req.Family)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session id")
		return
	}
	snap, err := s.sessionSvc.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) revealSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session id")
		return
	}
	var req sessionRevealRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	result, err := s.sessionSvc.Reveal(r.Context(), id, req.Owner, req.Selection)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) cashoutSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "sessionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid session id")
		return
	}
	var req sessionCashoutRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	snap, err := s.sessionSvc.Cashout(r.Context(), id, req.Owner)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) listOwnerSessions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "ownerId")
	if owner == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "owner required")
		return
	}
	snaps := s.sessionSvc.ListByOwner(r.Context(), owner)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"owner":    owner,
		"sessions": snaps,
	})
}
