package service

import (
	"context"
	"sync"
	"time"
)

// LoginChallenge is the transient record bridging the two steps of a
// 2FA login. It exists only between a successful password check and
// the one-time-code submission; no session or token exists yet.
type LoginChallenge struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeStore holds pending login challenges. Implementations must
// expire records at ExpiresAt and make Consume remove the record so a
// challenge id is single-use.
type ChallengeStore interface {
	Put(ctx context.Context, challenge *LoginChallenge) error
	// Bump increments the attempt counter and returns the updated
	// record, or ErrChallengeExpired when the challenge is gone.
	Bump(ctx context.Context, id string) (*LoginChallenge, error)
	Consume(ctx context.Context, id string) (*LoginChallenge, error)
	Delete(ctx context.Context, id string) error
}

// MemoryChallengeStore keeps challenges in process memory. Suitable for
// single-instance deployments that run without Redis.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*LoginChallenge
}

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{challenges: make(map[string]*LoginChallenge)}
}

func (s *MemoryChallengeStore) Put(ctx context.Context, challenge *LoginChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *challenge
	s.challenges[challenge.ID] = &cp
	return nil
}

func (s *MemoryChallengeStore) Bump(ctx context.Context, id string) (*LoginChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.live(id)
	if c == nil {
		return nil, ErrChallengeExpired
	}
	c.Attempts++
	cp := *c
	return &cp, nil
}

func (s *MemoryChallengeStore) Consume(ctx context.Context, id string) (*LoginChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.live(id)
	if c == nil {
		return nil, ErrChallengeExpired
	}
	delete(s.challenges, id)
	return c, nil
}

func (s *MemoryChallengeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, id)
	return nil
}

// live returns the challenge if present and unexpired, evicting it when
// stale. Callers hold s.mu.
func (s *MemoryChallengeStore) live(id string) *LoginChallenge {
	c, ok := s.challenges[id]
	if !ok {
		return nil
	}
	if !c.ExpiresAt.After(time.Now()) {
		delete(s.challenges, id)
		return nil
	}
	return c
}
