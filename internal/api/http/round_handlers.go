package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type roundOpenRequest struct {
	Family string `json:"family"`
}

type placeBetRequest struct {
	Participant string `json:"participant"`
	Amount      int64  `json:"amount"`
	Category    string `json:"category"`
}

func (s *Server) openRound(w http.ResponseWriter, r *http.Request) {
	var req roundOpenRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	snap, err := s.roundSvc.Open(r.Context(), req.Family)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "roundId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid round id")
		return
	}
	snap, err := s.roundSvc.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "roundId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid round id")
		return
	}
	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	snap, err := s.roundSvc.PlaceBet(r.Context(), id, req.Participant, req.Amount, req.Category)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) closeRound(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "roundId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid round id")
		return
	}
	snap, err := s.roundSvc.Close(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "accountId")
	if account == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "account required")
		return
	}
	balance, err := s.ledger.Balance(r.Context(), account)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"balance": balance,
	})
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// deposit credits an account directly. Funding normally arrives from an
// upstream wallet service; this endpoint stands in for it.
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "accountId")
	if account == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "account required")
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "amount must be positive")
		return
	}
	if err := s.ledger.Credit(r.Context(), account, req.Amount); err != nil {
		respondDomainError(w, err)
		return
	}
	balance, err := s.ledger.Balance(r.Context(), account)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"balance": balance,
	})
}

func (s *Server) listMovements(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "accountId")
	if account == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "account required")
		return
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	records, err := s.auditSvc.ListByAccount(r.Context(), account, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account":   account,
		"movements": records,
	})
}
