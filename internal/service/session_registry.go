package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/repository"
)

// SessionView is the caller-facing projection of a session record.
type SessionView struct {
	ID             string    `json:"id"`
	Device         string    `json:"device"`
	IP             string    `json:"ip"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// SessionRegistry is the single source of truth for session liveness.
type SessionRegistry struct {
	sessions   repository.SessionRepository
	sessionTTL time.Duration
	logger     *slog.Logger
}

func NewSessionRegistry(sessions repository.SessionRepository, sessionTTL time.Duration, logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions:   sessions,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// Create inserts an active session with an absolute expiry and returns
// its id.
func (r *SessionRegistry) Create(ctx context.Context, userID uint, ip, userAgent string) (string, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Device:         userAgent,
		IP:             ip,
		Active:         true,
		LastActivityAt: now,
		ExpiresAt:      now.Add(r.sessionTTL),
	}
	if err := r.sessions.Create(session); err != nil {
		return "", err
	}
	return session.ID, nil
}

// Touch bumps last-activity. Best effort: a missed timestamp update
// must never fail an otherwise-valid request.
func (r *SessionRegistry) Touch(ctx context.Context, sessionID string) {
	if err := r.sessions.TouchActivity(sessionID, time.Now().UTC()); err != nil {
		r.logger.WarnContext(ctx, "session touch failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}

// IsActive reports whether the session exists, is flagged active, and
// has not passed its absolute expiry. An expired-but-still-flagged
// session counts as inactive even before cleanup removes it.
func (r *SessionRegistry) IsActive(ctx context.Context, sessionID string) (bool, error) {
	session, err := r.sessions.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if !session.Active {
		return false, nil
	}
	if !session.ExpiresAt.After(time.Now()) {
		return false, nil
	}
	return true, nil
}

// Invalidate flags the session inactive. Idempotent.
func (r *SessionRegistry) Invalidate(ctx context.Context, sessionID, reason string) error {
	return r.sessions.Deactivate(sessionID, reason)
}

// InvalidateOwned flags the session inactive after confirming it
// belongs to the user. Unknown and foreign session ids report the same
// error so callers cannot probe other users' sessions.
func (r *SessionRegistry) InvalidateOwned(ctx context.Context, userID uint, sessionID, reason string) error {
	session, err := r.sessions.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	if session.UserID != userID {
		return ErrUnauthorized
	}
	return r.sessions.Deactivate(sessionID, reason)
}

// InvalidateAllForUser flags every active session for the user
// inactive, e.g. for "log out everywhere" on suspected compromise.
func (r *SessionRegistry) InvalidateAllForUser(ctx context.Context, userID uint, reason string) (int64, error) {
	return r.sessions.DeactivateByUserID(userID, reason)
}

// ListForUser returns the user's live sessions, newest first.
func (r *SessionRegistry) ListForUser(ctx context.Context, userID uint) ([]SessionView, error) {
	sessions, err := r.sessions.ListActiveByUserID(userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, SessionView{
			ID:             s.ID,
			Device:         s.Device,
			IP:             s.IP,
			CreatedAt:      s.CreatedAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAt,
		})
	}
	return views, nil
}

// DeleteExpired removes sessions past absolute expiry. Called by the
// cleanup scheduler, never from the request path.
func (r *SessionRegistry) DeleteExpired(ctx context.Context) (int64, error) {
	return r.sessions.DeleteExpired(time.Now())
}
