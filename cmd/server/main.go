package main

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/stake-engine/stake-engine/internal/api/http"
	appAudit "github.com/stake-engine/stake-engine/internal/application/audit"
	appReaper "github.com/stake-engine/stake-engine/internal/application/reaper"
	appRound "github.com/stake-engine/stake-engine/internal/application/round"
	appSession "github.com/stake-engine/stake-engine/internal/application/session"
	"github.com/stake-engine/stake-engine/internal/clock"
	"github.com/stake-engine/stake-engine/internal/config"
	domainaudit "github.com/stake-engine/stake-engine/internal/domain/audit"
	"github.com/stake-engine/stake-engine/internal/domain/ledger"
	"github.com/stake-engine/stake-engine/internal/domain/outcome"
	"github.com/stake-engine/stake-engine/internal/infrastructure/memstore"
	"github.com/stake-engine/stake-engine/internal/infrastructure/postgres"
	"github.com/stake-engine/stake-engine/internal/infrastructure/sse"
	"github.com/stake-engine/stake-engine/internal/riskbook"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	book, err := riskbook.Load(cfg.RiskTablesPath)
	if err != nil {
		log.Fatalf("risk tables error: %v", err)
	}

	// ledger and audit backends
	var (
		ledg      ledger.Ledger
		auditRepo domainaudit.Repository
	)
	switch cfg.LedgerBackend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		ledg = postgres.NewLedger(pool)
		auditRepo = postgres.NewAuditRepository(pool)
	default:
		ledg = memstore.NewLedger()
		auditRepo = memstore.NewAuditRepository()
		logger.Warn().Msg("memory ledger backend, balances are not durable")
	}

	var rng outcome.RNG = outcome.CryptoRNG()
	if cfg.RNGSeed != 0 {
		rng = outcome.SeededRNG(cfg.RNGSeed)
		logger.Warn().Uint64("seed", cfg.RNGSeed).Msg("seeded rng, draws are replayable")
	}

	clk := clock.System{}
	sseHub := sse.NewHub()

	// services
	auditSvc := appAudit.NewService(auditRepo, clk, logger, loadHexKey(cfg.AuditSignKey))
	sessionSvc := appSession.NewService(
		memstore.NewSessionStore(), ledg, book, auditSvc, sseHub, clk, rng,
		cfg.SessionTimeout, logger,
	)
	roundSvc := appRound.NewService(
		memstore.NewRoundStore(), ledg, book, auditSvc, sseHub, clk, rng,
		cfg.RoundWindow, logger,
	)

	// API server
	apiServer := httpapi.NewServer(sessionSvc, roundSvc, auditSvc, ledg, sseHub, cfg.APIKeyHash)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	reaperCtx, stopReaper := context.WithCancel(ctx)
	reaper := appReaper.New(sessionSvc, roundSvc, cfg.ReaperInterval, cfg.Retention, logger)
	go reaper.Run(reaperCtx)

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopReaper()
	sseHub.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func loadHexKey(hexStr string) []byte {
	if hexStr == "" {
		return nil
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil
	}
	return b
}
