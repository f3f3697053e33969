package domain

import "time"

// Session is a logical continuous login. It outlives individual access
// tokens and ends either by explicit invalidation or by reaching its
// absolute expiry. Active transitions to false exactly once.
type Session struct {
	ID             string     `gorm:"primaryKey;size:64" json:"id"`
	UserID         uint       `gorm:"index;not null" json:"user_id"`
	Device         string     `gorm:"size:512" json:"device"`
	IP             string     `gorm:"size:64" json:"ip"`
	Active         bool       `gorm:"index;not null" json:"active"`
	LastActivityAt time.Time  `gorm:"not null" json:"last_activity_at"`
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedReason  *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
