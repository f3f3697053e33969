package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/repository"
)

const revocationKeyPrefix = "authcore:revoked:"

// RevocationList tracks revoked token identifiers until their natural
// expiry. The store is authoritative; when a Redis client is supplied
// the list additionally write-through caches revocations so the hot
// path usually resolves without a database round trip. A nil client
// disables the cache entirely.
type RevocationList struct {
	store  repository.RevocationRepository
	cache  *redis.Client
	logger *slog.Logger
}

func NewRevocationList(store repository.RevocationRepository, cache *redis.Client, logger *slog.Logger) *RevocationList {
	return &RevocationList{store: store, cache: cache, logger: logger}
}

// Revoke records the jti. Idempotent: a jti already present keeps its
// original reason and timestamp.
func (l *RevocationList) Revoke(ctx context.Context, jti string, userID uint, expiresAt time.Time, reason string) error {
	record := &domain.RevokedToken{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
	}
	if err := l.store.InsertIfAbsent(record); err != nil {
		return err
	}
	if l.cache != nil {
		ttl := time.Until(expiresAt)
		if ttl > 0 {
			if err := l.cache.Set(ctx, revocationKeyPrefix+jti, reason, ttl).Err(); err != nil {
				l.logger.WarnContext(ctx, "revocation cache write failed",
					slog.String("jti", jti),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

// IsRevoked reports whether the jti has been revoked. Cache misses and
// cache errors both fall through to the store, so the cache can only
// make the answer faster, never different.
func (l *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if l.cache != nil {
		_, err := l.cache.Get(ctx, revocationKeyPrefix+jti).Result()
		switch {
		case err == nil:
			return true, nil
		case err != redis.Nil:
			l.logger.WarnContext(ctx, "revocation cache read failed",
				slog.String("jti", jti),
				slog.String("error", err.Error()))
		}
	}
	record, err := l.store.FindByJTI(jti)
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	if l.cache != nil {
		if ttl := time.Until(record.ExpiresAt); ttl > 0 {
			if err := l.cache.Set(ctx, revocationKeyPrefix+jti, record.Reason, ttl).Err(); err != nil {
				l.logger.WarnContext(ctx, "revocation cache backfill failed",
					slog.String("jti", jti),
					slog.String("error", err.Error()))
			}
		}
	}
	return true, nil
}

// DeleteExpired prunes records whose tokens have expired on their own.
// Pruning earlier would reopen a revoked token.
func (l *RevocationList) DeleteExpired(ctx context.Context) (int64, error) {
	return l.store.DeleteExpired(time.Now())
}
