package domain

import "time"

// RevokedToken denylists a single token by its jti until the token would
// have expired on its own. Records are pruned only at or after ExpiresAt;
// pruning earlier would reopen a revoked token.
type RevokedToken struct {
	JTI       string    `gorm:"primaryKey;size:64" json:"jti"`
	UserID    uint      `gorm:"index" json:"user_id"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	Reason    string    `gorm:"size:64" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
