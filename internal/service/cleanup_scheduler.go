package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chatforge/authcore/internal/observability"
	"github.com/chatforge/authcore/internal/repository"
)

// CleanupScheduler purges expired sessions, revocation records, and
// stale login attempts on a fixed cadence, plus one delayed run shortly
// after start. Overlapping triggers are dropped, not queued: a run
// already in flight makes a second pass pure waste.
type CleanupScheduler struct {
	sessions         *SessionRegistry
	revocations      *RevocationList
	attempts         repository.LoginAttemptRepository
	interval         time.Duration
	initialDelay     time.Duration
	attemptRetention time.Duration
	logger           *slog.Logger

	running atomic.Bool
}

func NewCleanupScheduler(
	sessions *SessionRegistry,
	revocations *RevocationList,
	attempts repository.LoginAttemptRepository,
	interval, initialDelay, attemptRetention time.Duration,
	logger *slog.Logger,
) *CleanupScheduler {
	return &CleanupScheduler{
		sessions:         sessions,
		revocations:      revocations,
		attempts:         attempts,
		interval:         interval,
		initialDelay:     initialDelay,
		attemptRetention: attemptRetention,
		logger:           logger,
	}
}

// Start drives cleanup until ctx is cancelled. It blocks; callers run
// it in its own goroutine.
func (s *CleanupScheduler) Start(ctx context.Context) {
	initial := time.NewTimer(s.initialDelay)
	defer initial.Stop()
	select {
	case <-ctx.Done():
		return
	case <-initial.C:
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single cleanup pass. It returns false when a pass
// was already in flight. Failures are logged per collection and never
// abort the other purges.
func (s *CleanupScheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.DebugContext(ctx, "cleanup already running, skipping trigger")
		return false
	}
	defer s.running.Store(false)

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		purged, err := s.sessions.DeleteExpired(gctx)
		s.report(gctx, "sessions", purged, err)
		return nil
	})
	g.Go(func() error {
		purged, err := s.revocations.DeleteExpired(gctx)
		s.report(gctx, "revoked_tokens", purged, err)
		return nil
	})
	g.Go(func() error {
		purged, err := s.attempts.DeleteOlderThan(time.Now().Add(-s.attemptRetention))
		s.report(gctx, "login_attempts", purged, err)
		return nil
	})

	_ = g.Wait()
	s.logger.InfoContext(ctx, "cleanup pass finished",
		slog.Duration("elapsed", time.Since(started)))
	return true
}

func (s *CleanupScheduler) report(ctx context.Context, collection string, purged int64, err error) {
	if err != nil {
		observability.RecordCleanupRun(ctx, collection, "error", 0)
		s.logger.ErrorContext(ctx, "cleanup failed",
			slog.String("collection", collection),
			slog.String("error", err.Error()))
		return
	}
	observability.RecordCleanupRun(ctx, collection, "success", purged)
	if purged > 0 {
		s.logger.InfoContext(ctx, "cleanup purged records",
			slog.String("collection", collection),
			slog.Int64("purged", purged))
	}
}
