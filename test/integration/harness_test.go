package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/http/handler"
	"github.com/chatforge/authcore/internal/http/router"
	"github.com/chatforge/authcore/internal/repository"
	"github.com/chatforge/authcore/internal/security"
	"github.com/chatforge/authcore/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	URL  string
	Gate *service.TwoFactorGate
}

// newAuthTestServer boots the fully wired engine over an in-memory
// store and a miniredis-backed Redis, the same topology production
// runs with Redis enabled.
func newAuthTestServer(t *testing.T) (*testServer, func()) {
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
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := repository.NewUserRepository(db)
	tokens := security.NewTokenManager("authcore-itest", "chat-app",
		"itest-access-secret-0123456789", "itest-refresh-secret-0123456789",
		15*time.Minute, 7*24*time.Hour)
	throttle := service.NewLoginThrottle(repository.NewLoginAttemptRepository(db), 5, 15*time.Minute, logger)
	sessions := service.NewSessionRegistry(repository.NewSessionRepository(db), 30*24*time.Hour, logger)
	revocations := service.NewRevocationList(repository.NewRevocationRepository(db), client, logger)
	gate := service.NewTwoFactorGate(repository.NewTwoFactorRepository(db),
		security.NewTOTPManager(security.TOTPConfig{Issuer: "authcore-itest", Skew: 1}), 10, 8, logger)

	auth := service.NewAuthService(
		service.NewDirectoryCredentialVerifier(users),
		tokens, throttle, sessions, revocations, gate,
		service.NewRedisChallengeStore(client), 5*time.Minute, 5, logger)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(auth),
		TwoFactorHandler: handler.NewTwoFactorHandler(gate),
		Verifier:         auth,
		Logger:           logger,
	})
	srv := httptest.NewServer(h)

	hash, err := security.HashPassword("Valid#Pass1234")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := users.Create(&domain.User{Email: "itest@example.com", PasswordHash: hash, Role: domain.RoleUser}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return &testServer{URL: srv.URL, Gate: gate}, srv.Close
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, envelope) {
	t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}
