package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	appAudit "github.com/stake-engine/stake-engine/internal/application/audit"
	appRound "github.com/stake-engine/stake-engine/internal/application/round"
	appSession "github.com/stake-engine/stake-engine/internal/application/session"
	"github.com/stake-engine/stake-engine/internal/domain/ledger"
	"github.com/stake-engine/stake-engine/internal/domain/round"
	"github.com/stake-engine/stake-engine/internal/domain/wager"
	"github.com/stake-engine/stake-engine/internal/infrastructure/sse"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessionSvc *appSession.Service
	roundSvc   *appRound.Service
	auditSvc   *appAudit.Service
	ledger     ledger.Ledger
	sseHub     *sse.Hub
	apiKeyHash string
}

func NewServer(
	sessionSvc *appSession.Service,
	roundSvc *appRound.Service,
	auditSvc *appAudit.Service,
	ledg ledger.Ledger,
	sseHub *sse.Hub,
	apiKeyHash string,
) *Server {
	return &Server{
		sessionSvc: sessionSvc,
		roundSvc:   roundSvc,
		auditSvc:   auditSvc,
		ledger:     ledg,
		sseHub:     sseHub,
		apiKeyHash: apiKeyHash,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.openSession)
			r.Get("/{sessionId}", s.getSession)
			r.Post("/{sessionId}/reveal", s.revealSession)
			r.Post("/{sessionId}/cashout", s.cashoutSession)
		})

		r.Get("/owners/{ownerId}/sessions", s.listOwnerSessions)

		r.Route("/rounds", func(r chi.Router) {
			r.Post("/", s.openRound)
			r.Get("/{roundId}", s.getRound)
			r.Post("/{roundId}/bets", s.placeBet)
			r.Post("/{roundId}/close", s.closeRound)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{accountId}/balance", s.getBalance)
			r.Get("/{accountId}/movements", s.listMovements)
			r.Post("/{accountId}/deposit", s.deposit)
		})

		r.Get("/events", s.sseEndpoint)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helpers

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps engine sentinels to stable error envelopes.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		respondError(w, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, wager.ErrInvalidStake):
		respondError(w, http.StatusBadRequest, "INVALID_STAKE", err.Error())
	case errors.Is(err, wager.ErrInvalidSelection):
		respondError(w, http.StatusBadRequest, "INVALID_SELECTION", err.Error())
	case errors.Is(err, wager.ErrUnknownFamily):
		respondError(w, http.StatusBadRequest, "UNKNOWN_FAMILY", err.Error())
	case errors.Is(err, wager.ErrSessionNotFound), errors.Is(err, round.ErrRoundNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, wager.ErrNotOwner):
		respondError(w, http.StatusForbidden, "NOT_OWNER", err.Error())
	case errors.Is(err, wager.ErrAlreadySettled), errors.Is(err, round.ErrAlreadyDrawn):
		respondError(w, http.StatusConflict, "ALREADY_SETTLED", err.Error())
	case errors.Is(err, wager.ErrConcurrentOperation):
		respondError(w, http.StatusConflict, "CONCURRENT_OPERATION", err.Error())
	case errors.Is(err, round.ErrNotAcceptingBets):
		respondError(w, http.StatusConflict, "ROUND_CLOSED", err.Error())
	case errors.Is(err, ledger.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
