package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatforge/authcore/internal/observability"
	"github.com/chatforge/authcore/internal/security"
)

const (
	reasonLogout           = "logout"
	reasonLogoutEverywhere = "logout_everywhere"
	reasonSessionRevoked   = "revoked_by_user"

	failureInvalidCredentials = "invalid_credentials"
	failureAccountLocked      = "account_locked"
	failureInvalidTwoFactor   = "invalid_2fa_code"
)

// RequestMeta carries the connection attributes recorded with every
// login attempt and session.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is the outcome of the first login step. Exactly one of
// Tokens or ChallengeID is set: accounts with 2FA enabled get a
// challenge id and no tokens until the second factor is verified.
type LoginResult struct {
	Tokens      *security.TokenPair
	ChallengeID string
}

// AccessToken is a freshly minted access token, returned by Refresh.
type AccessToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// AuthService orchestrates login, refresh, logout, and request
// verification on top of the leaf services.
type AuthService struct {
	verifier             CredentialVerifier
	tokens               *security.TokenManager
	throttle             *LoginThrottle
	sessions             *SessionRegistry
	revocations          *RevocationList
	twoFactor            *TwoFactorGate
	challenges           ChallengeStore
	challengeTTL         time.Duration
	challengeMaxAttempts int
	logger               *slog.Logger
}

func NewAuthService(
	verifier CredentialVerifier,
	tokens *security.TokenManager,
	throttle *LoginThrottle,
	sessions *SessionRegistry,
	revocations *RevocationList,
	twoFactor *TwoFactorGate,
	challenges ChallengeStore,
	challengeTTL time.Duration,
	challengeMaxAttempts int,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		verifier:             verifier,
		tokens:               tokens,
		throttle:             throttle,
		sessions:             sessions,
		revocations:          revocations,
		twoFactor:            twoFactor,
		challenges:           challenges,
		challengeTTL:         challengeTTL,
		challengeMaxAttempts: challengeMaxAttempts,
		logger:               logger,
	}
}

// Login runs the first step of authentication. The lockout check runs
// before the credential check so a locked caller learns nothing about
// whether the password was correct.
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (*LoginResult, error) {
	if err := s.throttle.Check(ctx, email, meta.IP); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.throttle.RecordFailure(ctx, email, meta.IP, meta.UserAgent, failureAccountLocked)
			observability.RecordAuthLogin("password", "locked")
		}
		return nil, err
	}

	user, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.throttle.RecordFailure(ctx, email, meta.IP, meta.UserAgent, failureInvalidCredentials)
			observability.RecordAuthLogin("password", "failure")
			return nil, ErrInvalidCredentials
		}
		return nil, ErrInfrastructure
	}

	enabled, err := s.twoFactor.IsEnabled(ctx, user.ID)
	if err != nil {
		return nil, ErrInfrastructure
	}
	if enabled {
		// No session or tokens yet: a stolen password alone must not
		// produce a usable credential.
		challenge := &LoginChallenge{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Email:     user.Email,
			Role:      user.Role,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			CreatedAt: time.Now().UTC(),
			ExpiresAt: time.Now().UTC().Add(s.challengeTTL),
		}
		if err := s.challenges.Put(ctx, challenge); err != nil {
			return nil, ErrInfrastructure
		}
		observability.RecordAuthLogin("password", "awaiting_second_factor")
		return &LoginResult{ChallengeID: challenge.ID}, nil
	}

	return s.completeLogin(ctx, user.ID, user.Email, user.Role, meta, "password")
}

// CompleteTwoFactorLogin runs the second step: a challenge id from
// Login plus a one-time code. Repeated failures count toward the same
// lockout window as password failures.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	challenge, err := s.challenges.Bump(ctx, challengeID)
	if err != nil {
		if errors.Is(err, ErrChallengeExpired) {
			return nil, ErrChallengeExpired
		}
		return nil, ErrInfrastructure
	}
	meta := RequestMeta{IP: challenge.IP, UserAgent: challenge.UserAgent}

	if challenge.Attempts > s.challengeMaxAttempts {
		_ = s.challenges.Delete(ctx, challengeID)
		observability.SecurityEvent(ctx, "2fa_challenge_attempts_exhausted",
			slog.Uint64("user_id", uint64(challenge.UserID)),
			slog.String("ip", challenge.IP))
		return nil, ErrChallengeExpired
	}

	if err := s.throttle.Check(ctx, challenge.Email, challenge.IP); err != nil {
		return nil, err
	}

	if err := s.twoFactor.Verify(ctx, challenge.UserID, code); err != nil {
		if errors.Is(err, ErrInvalidTwoFactorCode) || errors.Is(err, ErrTwoFactorNotEnabled) {
			s.throttle.RecordFailure(ctx, challenge.Email, challenge.IP, challenge.UserAgent, failureInvalidTwoFactor)
			observability.RecordAuthLogin("2fa", "failure")
			return nil, err
		}
		return nil, ErrInfrastructure
	}

	if _, err := s.challenges.Consume(ctx, challengeID); err != nil && !errors.Is(err, ErrChallengeExpired) {
		return nil, ErrInfrastructure
	}
	return s.completeLogin(ctx, challenge.UserID, challenge.Email, challenge.Role, meta, "2fa")
}

func (s *AuthService) completeLogin(ctx context.Context, userID uint, email, role string, meta RequestMeta, method string) (*LoginResult, error) {
	sessionID, err := s.sessions.Create(ctx, userID, meta.IP, meta.UserAgent)
	if err != nil {
		return nil, ErrInfrastructure
	}
	pair, err := s.tokens.Issue(userID, role, sessionID)
	if err != nil {
		return nil, ErrInfrastructure
	}
	s.throttle.RecordSuccess(ctx, email, meta.IP, meta.UserAgent)
	observability.RecordAuthLogin(method, "success")
	s.logger.InfoContext(ctx, "login succeeded",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("session_id", sessionID),
		slog.String("method", method))
	return &LoginResult{Tokens: pair}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated, so it stays valid for its full
// lifetime until logout or revocation.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AccessToken, error) {
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		observability.RecordAuthRefresh("invalid_token")
		return nil, ErrInvalidRefreshToken
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordAuthRefresh("invalid_token")
		return nil, ErrInvalidRefreshToken
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ErrInfrastructure
	}
	if revoked {
		// A revoked refresh token showing up again is a strong
		// compromise signal.
		observability.SecurityEvent(ctx, "revoked_refresh_token_presented",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("jti", claims.ID),
			slog.String("session_id", claims.SessionID))
		observability.RecordAuthRefresh("revoked")
		return nil, ErrTokenRevoked
	}

	active, err := s.sessions.IsActive(ctx, claims.SessionID)
	if err != nil {
		return nil, ErrInfrastructure
	}
	if !active {
		observability.RecordAuthRefresh("session_expired")
		return nil, ErrSessionExpired
	}

	token, jti, expiresAt, err := s.tokens.IssueAccess(userID, claims.Role, claims.SessionID)
	if err != nil {
		return nil, ErrInfrastructure
	}
	s.sessions.Touch(ctx, claims.SessionID)
	observability.RecordAuthRefresh("success")
	return &AccessToken{Token: token, JTI: jti, ExpiresAt: expiresAt}, nil
}

// Logout revokes the presented token and invalidates its session.
// Expired tokens can still be logged out: only the signature is
// checked, not the expiry.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.tokens.ExtractForLogout(rawToken)
	if err != nil {
		observability.RecordAuthLogout("invalid_token")
		return ErrUnauthorized
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordAuthLogout("invalid_token")
		return ErrUnauthorized
	}

	expiresAt := time.Now()
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.revocations.Revoke(ctx, claims.ID, userID, expiresAt, reasonLogout); err != nil {
		return ErrInfrastructure
	}
	if err := s.sessions.Invalidate(ctx, claims.SessionID, reasonLogout); err != nil {
		return ErrInfrastructure
	}
	observability.RecordAuthLogout("success")
	s.logger.InfoContext(ctx, "logout",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("session_id", claims.SessionID))
	return nil
}

// LogoutEverywhere invalidates all of the user's active sessions.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID uint) (int64, error) {
	count, err := s.sessions.InvalidateAllForUser(ctx, userID, reasonLogoutEverywhere)
	if err != nil {
		return 0, ErrInfrastructure
	}
	observability.SecurityEvent(ctx, "logout_everywhere",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int64("sessions_invalidated", count))
	return count, nil
}

// VerifyRequest validates an access token for a protected request.
// Every failure collapses to ErrUnauthorized outward; the reason is
// kept in logs only, so token probing yields no oracle.
func (s *AuthService) VerifyRequest(ctx context.Context, accessToken string) (*security.Claims, error) {
	claims, err := s.tokens.ParseAccessToken(accessToken)
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "invalid_token", "codec")
		return nil, ErrUnauthorized
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, ErrInfrastructure
	}
	if revoked {
		observability.SecurityEvent(ctx, "revoked_access_token_presented",
			slog.String("jti", claims.ID),
			slog.String("session_id", claims.SessionID))
		observability.RecordAccessTokenValidation(ctx, "revoked", "revocation_list")
		return nil, ErrUnauthorized
	}

	active, err := s.sessions.IsActive(ctx, claims.SessionID)
	if err != nil {
		return nil, ErrInfrastructure
	}
	if !active {
		observability.RecordAccessTokenValidation(ctx, "session_inactive", "session_registry")
		return nil, ErrUnauthorized
	}

	s.sessions.Touch(ctx, claims.SessionID)
	observability.RecordAccessTokenValidation(ctx, "success", "engine")
	return claims, nil
}

// Sessions lists the caller's live sessions.
func (s *AuthService) Sessions(ctx context.Context, userID uint) ([]SessionView, error) {
	views, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, ErrInfrastructure
	}
	return views, nil
}

// RevokeSession ends one of the caller's sessions by id, e.g. from the
// active sessions view. Tokens bound to the session die with it.
func (s *AuthService) RevokeSession(ctx context.Context, userID uint, sessionID string) error {
	if err := s.sessions.InvalidateOwned(ctx, userID, sessionID, reasonSessionRevoked); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		return ErrInfrastructure
	}
	observability.SecurityEvent(ctx, "session_revoked_by_user",
		slog.Uint64("user_id", uint64(userID)),
		slog.String("session_id", sessionID))
	return nil
}
