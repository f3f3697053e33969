package service

import "errors"

// Sentinel errors returned by the authentication services. Handlers map
// these onto HTTP statuses and stable error codes; everything else is
// treated as an infrastructure failure.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountLocked        = errors.New("account temporarily locked")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrSessionExpired       = errors.New("session expired")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrTwoFactorNotEnabled  = errors.New("two-factor authentication not enabled")
	ErrTwoFactorEnabled     = errors.New("two-factor authentication already enabled")
	ErrTwoFactorRequired    = errors.New("two-factor verification required")
	ErrChallengeExpired     = errors.New("two-factor challenge expired")
	ErrInfrastructure       = errors.New("infrastructure error")
)

// ErrorCode returns the wire-level code for an error. Unknown errors
// collapse to infrastructure_error so internals never leak to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, ErrInvalidRefreshToken):
		return "invalid_refresh_token"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidTwoFactorCode):
		return "invalid_2fa_code"
	case errors.Is(err, ErrTwoFactorNotEnabled):
		return "2fa_not_enabled"
	case errors.Is(err, ErrTwoFactorEnabled):
		return "2fa_already_enabled"
	case errors.Is(err, ErrTwoFactorRequired):
		return "2fa_required"
	case errors.Is(err, ErrChallengeExpired):
		return "challenge_expired"
	default:
		return "infrastructure_error"
	}
}
