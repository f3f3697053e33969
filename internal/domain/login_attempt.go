package domain

import "time"

// LoginAttempt is an append-only audit record. Attempts are never mutated
// after insertion; lockout state is derived by counting recent failures.
type LoginAttempt struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Email         string    `gorm:"index:idx_login_attempts_email_ip;size:256;not null" json:"email"`
	IP            string    `gorm:"index:idx_login_attempts_email_ip;size:64" json:"ip"`
	UserAgent     string    `gorm:"size:512" json:"user_agent"`
	Success       bool      `gorm:"not null" json:"success"`
	FailureReason *string   `gorm:"size:64" json:"failure_reason,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}
