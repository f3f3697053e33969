package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/observability"
	"github.com/chatforge/authcore/internal/repository"
)

// LoginThrottle locks out repeated failed logins per (email, ip) pair.
// The counter is derived from the login_attempts table on every check,
// so the lock releases itself as failures age out of the window.
type LoginThrottle struct {
	attempts  repository.LoginAttemptRepository
	threshold int
	window    time.Duration
	logger    *slog.Logger
}

func NewLoginThrottle(attempts repository.LoginAttemptRepository, threshold int, window time.Duration, logger *slog.Logger) *LoginThrottle {
	return &LoginThrottle{
		attempts:  attempts,
		threshold: threshold,
		window:    window,
		logger:    logger,
	}
}

// Check reports whether the pair is currently locked out.
func (t *LoginThrottle) Check(ctx context.Context, email, ip string) error {
	count, err := t.attempts.CountRecentFailures(email, ip, time.Now().Add(-t.window))
	if err != nil {
		t.logger.ErrorContext(ctx, "login throttle check failed",
			slog.String("error", err.Error()))
		return ErrInfrastructure
	}
	if count >= int64(t.threshold) {
		observability.SecurityEvent(ctx, "login_lockout_active",
			slog.String("email", email),
			slog.String("ip", ip),
			slog.Int64("recent_failures", count))
		return ErrAccountLocked
	}
	return nil
}

// RecordFailure appends a failed attempt for the pair.
func (t *LoginThrottle) RecordFailure(ctx context.Context, email, ip, userAgent, reason string) {
	attempt := &domain.LoginAttempt{
		Email:         email,
		IP:            ip,
		UserAgent:     userAgent,
		Success:       false,
		FailureReason: &reason,
	}
	if err := t.attempts.Insert(attempt); err != nil {
		t.logger.ErrorContext(ctx, "failed to record login failure",
			slog.String("error", err.Error()))
	}
}

// RecordSuccess appends a successful attempt. Successes are kept for
// audit but never count toward the lockout threshold.
func (t *LoginThrottle) RecordSuccess(ctx context.Context, email, ip, userAgent string) {
	attempt := &domain.LoginAttempt{
		Email:     email,
		IP:        ip,
		UserAgent: userAgent,
		Success:   true,
	}
	if err := t.attempts.Insert(attempt); err != nil {
		t.logger.ErrorContext(ctx, "failed to record login success",
			slog.String("error", err.Error()))
	}
}
