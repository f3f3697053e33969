package domain

import "time"

// TwoFactorConfig holds a user's TOTP enrollment. The secret and backup
// codes live and die together: disabling deletes the whole row so a reader
// can never observe a disabled config with a still-usable secret.
//
// BackupCodes is a JSON array of SHA-256 hex digests; a consumed code is
// removed from the array. LastUsedCounter records the most recent accepted
// TOTP time step so a code cannot be replayed within its step.
type TwoFactorConfig struct {
	UserID          uint       `gorm:"primaryKey" json:"user_id"`
	Secret          string     `gorm:"size:128;not null" json:"-"`
	BackupCodes     string     `gorm:"type:text" json:"-"`
	Enabled         bool       `gorm:"not null" json:"enabled"`
	EnabledAt       *time.Time `json:"enabled_at,omitempty"`
	LastUsedCounter int64      `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
