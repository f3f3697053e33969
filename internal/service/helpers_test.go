package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/repository"
	"github.com/chatforge/authcore/internal/security"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// authFixture wires a complete engine against in-memory stores.
type authFixture struct {
	db          *gorm.DB
	users       repository.UserRepository
	attempts    repository.LoginAttemptRepository
	twoFactor   repository.TwoFactorRepository
	tokens      *security.TokenManager
	throttle    *LoginThrottle
	sessions    *SessionRegistry
	revocations *RevocationList
	gate        *TwoFactorGate
	challenges  ChallengeStore
	auth        *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	db := newTestDB(t)
	logger := testLogger()

	users := repository.NewUserRepository(db)
	attempts := repository.NewLoginAttemptRepository(db)
	twoFactorRepo := repository.NewTwoFactorRepository(db)

	tokens := security.NewTokenManager("authcore-test", "chat-app",
		"test-access-secret-0123456789", "test-refresh-secret-0123456789",
		15*time.Minute, 7*24*time.Hour)
	throttle := NewLoginThrottle(attempts, 5, 15*time.Minute, logger)
	sessions := NewSessionRegistry(repository.NewSessionRepository(db), 30*24*time.Hour, logger)
	revocations := NewRevocationList(repository.NewRevocationRepository(db), nil, logger)
	gate := NewTwoFactorGate(twoFactorRepo, security.NewTOTPManager(security.TOTPConfig{Issuer: "authcore-test", Skew: 1}), 10, 8, logger)
	challenges := NewMemoryChallengeStore()

	auth := NewAuthService(
		NewDirectoryCredentialVerifier(users),
		tokens, throttle, sessions, revocations, gate, challenges,
		5*time.Minute, 5, logger)

	return &authFixture{
		db:          db,
		users:       users,
		attempts:    attempts,
		twoFactor:   twoFactorRepo,
		tokens:      tokens,
		throttle:    throttle,
		sessions:    sessions,
		revocations: revocations,
		gate:        gate,
		challenges:  challenges,
		auth:        auth,
	}
}

func (f *authFixture) createUser(t *testing.T, email, password string) *domain.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &domain.User{Email: email, PasswordHash: hash, Role: domain.RoleUser}
	if err := f.users.Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// enrollTwoFactor enables 2FA for the user and returns the shared
// secret plus the plaintext backup codes.
func (f *authFixture) enrollTwoFactor(t *testing.T, userID uint) (string, []string) {
	t.Helper()
	ctx := context.Background()
	enrollment, err := f.gate.GenerateSecret(ctx, userID, "test@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	if err := f.gate.Enable(ctx, userID, totpCodeAt(t, enrollment.Secret, time.Now())); err != nil {
		t.Fatalf("enable 2fa: %v", err)
	}
	return enrollment.Secret, enrollment.BackupCodes
}

// totpCodeAt computes the RFC 6238 code for a secret at a point in
// time, mirroring what an authenticator app would display.
func totpCodeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	counter := at.Unix() / 30
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		int(sum[offset+1])<<16 |
		int(sum[offset+2])<<8 |
		int(sum[offset+3])
	return fmt.Sprintf("%06d", bin%1_000_000)
}
