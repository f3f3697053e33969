package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrUnexpectedType   = errors.New("unexpected token type")
	ErrMalformedSubject = errors.New("malformed token subject")
	ErrMissingSessionID = errors.New("token carries no session id")
)

// Claims is the single closed claim shape for both token types. The
// TokenType discriminator plus distinct signing secrets keep access and
// refresh tokens non-interchangeable.
type Claims struct {
	TokenType string `json:"token_type"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrMalformedSubject
	}
	return uint(id), nil
}

// TokenPair is the result of a single issue call. Both tokens embed the
// same session id but carry distinct jtis, so either can be revoked
// without touching the other.
type TokenPair struct {
	AccessToken      string
	AccessJTI        string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshJTI       string
	RefreshExpiresAt time.Time
	SessionID        string
}

// TokenManager signs and verifies access and refresh tokens. It is a pure
// cryptographic codec: revocation and session liveness are layered on by
// the auth service.
type TokenManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenManager(issuer, audience, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// Issue mints an access/refresh token pair for the given subject and
// session. Each token gets a fresh jti.
func (m *TokenManager) Issue(userID uint, role, sessionID string) (*TokenPair, error) {
	now := time.Now()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()
	accessExp := now.Add(m.accessTTL)
	refreshExp := now.Add(m.refreshTTL)

	access, err := m.sign(TokenTypeAccess, userID, role, sessionID, accessJTI, now, accessExp, m.accessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(TokenTypeRefresh, userID, role, sessionID, refreshJTI, now, refreshExp, m.refreshSecret)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessJTI:        accessJTI,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshJTI:       refreshJTI,
		RefreshExpiresAt: refreshExp,
		SessionID:        sessionID,
	}, nil
}

// IssueAccess mints only a new access token for an existing session, used
// by the refresh flow. The refresh token itself is not rotated.
func (m *TokenManager) IssueAccess(userID uint, role, sessionID string) (token string, jti string, expiresAt time.Time, err error) {
	now := time.Now()
	jti = uuid.NewString()
	expiresAt = now.Add(m.accessTTL)
	token, err = m.sign(TokenTypeAccess, userID, role, sessionID, jti, now, expiresAt, m.accessSecret)
	return token, jti, expiresAt, err
}

func (m *TokenManager) sign(tokenType string, userID uint, role, sessionID, jti string, now, expiresAt time.Time, secret []byte) (string, error) {
	claims := Claims{
		TokenType: tokenType,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *TokenManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, m.accessSecret, TokenTypeAccess)
}

func (m *TokenManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, m.refreshSecret, TokenTypeRefresh)
}

func (m *TokenManager) parse(raw string, secret []byte, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, ErrUnexpectedType
	}
	if claims.SessionID == "" {
		return nil, ErrMissingSessionID
	}
	return claims, nil
}

// ExtractForLogout recovers claims from a token whose signature checks out
// but which may already be expired. Logout of an expired token must still
// land its jti on the revocation list and close the session.
func (m *TokenManager) ExtractForLogout(raw string) (*Claims, error) {
	for _, secret := range [][]byte{m.accessSecret, m.refreshSecret} {
		claims := &Claims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing algorithm")
			}
			return secret, nil
		}, jwt.WithoutClaimsValidation())
		if err != nil || !tok.Valid {
			continue
		}
		if claims.ID == "" || claims.SessionID == "" {
			return nil, ErrMissingSessionID
		}
		return claims, nil
	}
	return nil, ErrInvalidToken
}
