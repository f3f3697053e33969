package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/chatforge/authcore/internal/config"
	"github.com/chatforge/authcore/internal/http/handler"
	"github.com/chatforge/authcore/internal/http/middleware"
	"github.com/chatforge/authcore/internal/http/router"
	"github.com/chatforge/authcore/internal/observability"
	"github.com/chatforge/authcore/internal/repository"
	"github.com/chatforge/authcore/internal/security"
	"github.com/chatforge/authcore/internal/service"
)

const httpReadHeaderTimeout = 5 * time.Second

var providerSet = wire.NewSet(
	provideLogger,
	provideObservabilityRuntime,
	provideDB,
	provideRedis,
	provideTokenManager,
	provideTOTPManager,
	repository.NewUserRepository,
	repository.NewSessionRepository,
	repository.NewRevocationRepository,
	repository.NewLoginAttemptRepository,
	repository.NewTwoFactorRepository,
	provideCredentialVerifier,
	provideLoginThrottle,
	provideSessionRegistry,
	provideRevocationList,
	provideTwoFactorGate,
	provideChallengeStore,
	provideAuthService,
	provideCleanupScheduler,
	handler.NewAuthHandler,
	handler.NewTwoFactorHandler,
	provideRouter,
	provideHTTPServer,
	New,
)

func provideLogger(ctx context.Context, cfg *config.Config) (*slog.Logger, func(), error) {
	logger, lp, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if lp != nil {
			_ = lp.Shutdown(context.Background())
		}
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

func provideObservabilityRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, nil)
}

func provideDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := repository.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}

// provideRedis returns nil when Redis is disabled; the revocation list
// and challenge store both degrade gracefully without it.
func provideRedis(cfg *config.Config) *redis.Client {
	if !cfg.RedisEnabled {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
}

func provideTokenManager(cfg *config.Config) *security.TokenManager {
	return security.NewTokenManager(cfg.JWTIssuer, cfg.JWTAudience,
		cfg.JWTAccessSecret, cfg.JWTRefreshSecret,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func provideTOTPManager(cfg *config.Config) *security.TOTPManager {
	return security.NewTOTPManager(security.TOTPConfig{
		Issuer: cfg.TwoFactorIssuer,
		Skew:   cfg.TwoFactorSkew,
	})
}

func provideCredentialVerifier(users repository.UserRepository) service.CredentialVerifier {
	return service.NewDirectoryCredentialVerifier(users)
}

func provideLoginThrottle(cfg *config.Config, attempts repository.LoginAttemptRepository, logger *slog.Logger) *service.LoginThrottle {
	return service.NewLoginThrottle(attempts, cfg.LockoutThreshold, cfg.LockoutWindow, logger)
}

func provideSessionRegistry(cfg *config.Config, sessions repository.SessionRepository, logger *slog.Logger) *service.SessionRegistry {
	return service.NewSessionRegistry(sessions, cfg.SessionTTL, logger)
}

func provideRevocationList(store repository.RevocationRepository, cache *redis.Client, logger *slog.Logger) *service.RevocationList {
	return service.NewRevocationList(store, cache, logger)
}

func provideTwoFactorGate(cfg *config.Config, configs repository.TwoFactorRepository, totp *security.TOTPManager, logger *slog.Logger) *service.TwoFactorGate {
	return service.NewTwoFactorGate(configs, totp, cfg.BackupCodeCount, cfg.BackupCodeLength, logger)
}

func provideChallengeStore(cfg *config.Config, client *redis.Client) service.ChallengeStore {
	if client != nil {
		return service.NewRedisChallengeStore(client)
	}
	return service.NewMemoryChallengeStore()
}

func provideAuthService(
	cfg *config.Config,
	verifier service.CredentialVerifier,
	tokens *security.TokenManager,
	throttle *service.LoginThrottle,
	sessions *service.SessionRegistry,
	revocations *service.RevocationList,
	gate *service.TwoFactorGate,
	challenges service.ChallengeStore,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(verifier, tokens, throttle, sessions, revocations, gate, challenges,
		cfg.ChallengeTTL, cfg.ChallengeMaxAttempts, logger)
}

func provideCleanupScheduler(
	cfg *config.Config,
	sessions *service.SessionRegistry,
	revocations *service.RevocationList,
	attempts repository.LoginAttemptRepository,
	logger *slog.Logger,
) *service.CleanupScheduler {
	return service.NewCleanupScheduler(sessions, revocations, attempts,
		cfg.CleanupInterval, cfg.CleanupInitialDelay, cfg.AttemptRetention, logger)
}

func provideRouter(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	twoFactorHandler *handler.TwoFactorHandler,
	auth *service.AuthService,
	logger *slog.Logger,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:      authHandler,
		TwoFactorHandler: twoFactorHandler,
		Verifier:         auth,
		Logger:           logger,
		EnableOTelHTTP:   cfg.OTELTracingEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}
}

var _ middleware.RequestVerifier = (*service.AuthService)(nil)
