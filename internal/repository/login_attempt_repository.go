package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/observability"
)

type LoginAttemptRepository interface {
	Insert(attempt *domain.LoginAttempt) error
	CountRecentFailures(email, ip string, since time.Time) (int64, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

type GormLoginAttemptRepository struct{ db *gorm.DB }

func NewLoginAttemptRepository(db *gorm.DB) LoginAttemptRepository {
	return &GormLoginAttemptRepository{db: db}
}

// Insert appends an attempt record. Attempts are append-only; there is no
// update path, so concurrent logins never contend on a shared counter.
func (r *GormLoginAttemptRepository) Insert(attempt *domain.LoginAttempt) error {
	err := r.db.Create(attempt).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_attempt", "insert", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "login_attempt", "insert", "success")
	return nil
}

// CountRecentFailures counts failed attempts for the exact (email, ip)
// pair since the given instant.
func (r *GormLoginAttemptRepository) CountRecentFailures(email, ip string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&domain.LoginAttempt{}).
		Where("email = ? AND ip = ? AND success = ? AND created_at >= ?", email, ip, false, since).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_attempt", "count_recent_failures", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "login_attempt", "count_recent_failures", "success")
	return count, nil
}

func (r *GormLoginAttemptRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&domain.LoginAttempt{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "login_attempt", "delete_older_than", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "login_attempt", "delete_older_than", "success")
	return res.RowsAffected, nil
}
