package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable of the engine and its surface. All values
// come from the environment with production-safe defaults; secrets have no
// defaults and must be set.
type Config struct {
	Environment string
	HTTPAddr    string
	LogLevelRaw string

	StoreDriver string
	StoreDSN    string

	RedisEnabled bool
	RedisAddr    string
	RedisDB      int

	JWTIssuer        string
	JWTAudience      string
	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	SessionTTL time.Duration

	LockoutThreshold int
	LockoutWindow    time.Duration
	AttemptRetention time.Duration

	TwoFactorIssuer      string
	TwoFactorSkew        int
	BackupCodeCount      int
	BackupCodeLength     int
	ChallengeTTL         time.Duration
	ChallengeMaxAttempts int

	CleanupInterval     time.Duration
	CleanupInitialDelay time.Duration

	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		LogLevelRaw: getEnv("LOG_LEVEL", "info"),

		StoreDriver: getEnv("STORE_DRIVER", "postgres"),
		StoreDSN:    getEnv("STORE_DSN", ""),

		RedisEnabled: getBool("REDIS_ENABLED", true),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getInt("REDIS_DB", 0),

		JWTIssuer:        getEnv("JWT_ISSUER", "authcore"),
		JWTAudience:      getEnv("JWT_AUDIENCE", "chatforge"),
		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),
		AccessTokenTTL:   getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		SessionTTL: getDuration("SESSION_TTL", 30*24*time.Hour),

		LockoutThreshold: getInt("LOCKOUT_THRESHOLD", 5),
		LockoutWindow:    getDuration("LOCKOUT_WINDOW", 15*time.Minute),
		AttemptRetention: getDuration("ATTEMPT_RETENTION", 24*time.Hour),

		TwoFactorIssuer:      getEnv("TWOFACTOR_ISSUER", "ChatForge"),
		TwoFactorSkew:        getInt("TWOFACTOR_SKEW", 1),
		BackupCodeCount:      getInt("BACKUP_CODE_COUNT", 10),
		BackupCodeLength:     getInt("BACKUP_CODE_LENGTH", 8),
		ChallengeTTL:         getDuration("TWOFACTOR_CHALLENGE_TTL", 5*time.Minute),
		ChallengeMaxAttempts: getInt("TWOFACTOR_CHALLENGE_MAX_ATTEMPTS", 5),

		CleanupInterval:     getDuration("CLEANUP_INTERVAL", time.Hour),
		CleanupInitialDelay: getDuration("CLEANUP_INITIAL_DELAY", time.Minute),

		OTELMetricsEnabled:        getBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        getBool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           getBool("OTEL_LOGS_ENABLED", false),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "authcore"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", "development"),
		OTELMetricsExportInterval: getDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Environment, "invalid", classifyConfigError(err))
		return nil, err
	}
	recordConfigValidationEvent(context.Background(), cfg.Environment, "valid", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return fmt.Errorf("validate config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("validate config: access and refresh secrets must differ")
	}
	if c.StoreDriver != "postgres" && c.StoreDriver != "sqlite" {
		return fmt.Errorf("validate config: unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDSN == "" {
		return fmt.Errorf("validate config: STORE_DSN is required")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.SessionTTL <= 0 {
		return fmt.Errorf("validate config: token and session TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("validate config: access TTL must be shorter than refresh TTL")
	}
	if c.LockoutThreshold <= 0 || c.LockoutWindow <= 0 {
		return fmt.Errorf("validate config: lockout threshold and window must be positive")
	}
	if c.AttemptRetention < c.LockoutWindow {
		return fmt.Errorf("validate config: ATTEMPT_RETENTION must cover the lockout window")
	}
	if c.ChallengeTTL <= 0 || c.ChallengeMaxAttempts <= 0 {
		return fmt.Errorf("validate config: challenge TTL and attempt cap must be positive")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("validate config: CLEANUP_INTERVAL must be positive")
	}
	return nil
}

// LogLevel maps the configured level name onto slog levels, defaulting to
// info for unknown values.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevelRaw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}
