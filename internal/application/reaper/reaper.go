// Package reaper runs the periodic maintenance pass: expiring stale sessions,
// closing lapsed rounds, re-driving stuck settlements, and purging terminal
// records past their retention.
package reaper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SessionSweeper is the session-side maintenance surface.
type SessionSweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (expired, purged int)
}

// RoundSweeper is the round-side maintenance surface.
type RoundSweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (closed, resumed, purged int)
}

// Reaper drives both sweepers on a fixed interval.
type Reaper struct {
	sessions  SessionSweeper
	rounds    RoundSweeper
	interval  time.Duration
	retention time.Duration
	logger    zerolog.Logger
}

// New creates a reaper. interval and retention must be positive.
func New(sessions SessionSweeper, rounds RoundSweeper, interval, retention time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{
		sessions:  sessions,
		rounds:    rounds,
		interval:  interval,
		retention: retention,
		logger:    logger.With().Str("service", "reaper").Logger(),
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single maintenance pass.
func (r *Reaper) SweepOnce(ctx context.Context) {
	expired, sessPurged := r.sessions.Sweep(ctx, r.retention)
	closed, resumed, roundPurged := r.rounds.Sweep(ctx, r.retention)
	if expired+sessPurged+closed+resumed+roundPurged > 0 {
		r.logger.Info().
			Int("expiredSessions", expired).
			Int("closedRounds", closed).
			Int("resumedRounds", resumed).
			Int("purged", sessPurged+roundPurged).
			Msg("sweep complete")
	}
}
