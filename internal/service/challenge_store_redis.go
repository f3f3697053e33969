package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "authcore:challenge:"

// RedisChallengeStore persists pending login challenges in Redis so
// the two 2FA login steps can land on different instances. Records
// carry their own TTL; Redis expiry is the source of truth.
type RedisChallengeStore struct {
	client *redis.Client
}

func NewRedisChallengeStore(client *redis.Client) *RedisChallengeStore {
	return &RedisChallengeStore{client: client}
}

func (s *RedisChallengeStore) Put(ctx context.Context, challenge *LoginChallenge) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal login challenge: %w", err)
	}
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return ErrChallengeExpired
	}
	return s.client.Set(ctx, challengeKeyPrefix+challenge.ID, payload, ttl).Err()
}

func (s *RedisChallengeStore) Bump(ctx context.Context, id string) (*LoginChallenge, error) {
	challenge, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	challenge.Attempts++
	payload, err := json.Marshal(challenge)
	if err != nil {
		return nil, fmt.Errorf("marshal login challenge: %w", err)
	}
	// KeepTTL preserves the original expiry across attempt bumps.
	if err := s.client.Set(ctx, challengeKeyPrefix+id, payload, redis.KeepTTL).Err(); err != nil {
		return nil, err
	}
	return challenge, nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, id string) (*LoginChallenge, error) {
	challenge, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.client.Del(ctx, challengeKeyPrefix+id).Err(); err != nil {
		return nil, err
	}
	return challenge, nil
}

func (s *RedisChallengeStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, challengeKeyPrefix+id).Err()
}

func (s *RedisChallengeStore) get(ctx context.Context, id string) (*LoginChallenge, error) {
	raw, err := s.client.Get(ctx, challengeKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrChallengeExpired
	}
	if err != nil {
		return nil, err
	}
	var challenge LoginChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, fmt.Errorf("unmarshal login challenge: %w", err)
	}
	return &challenge, nil
}
