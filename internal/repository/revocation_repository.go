package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/observability"
)

type RevocationRepository interface {
	InsertIfAbsent(record *domain.RevokedToken) error
	FindByJTI(jti string) (*domain.RevokedToken, error)
	DeleteExpired(before time.Time) (int64, error)
}

type GormRevocationRepository struct{ db *gorm.DB }

func NewRevocationRepository(db *gorm.DB) RevocationRepository {
	return &GormRevocationRepository{db: db}
}

// InsertIfAbsent records a revocation exactly once. A second revoke of the
// same jti is a no-op and does not overwrite the original reason.
func (r *GormRevocationRepository) InsertIfAbsent(record *domain.RevokedToken) error {
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "revoked_token", "insert_if_absent", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "revoked_token", "insert_if_absent", "success")
	return nil
}

func (r *GormRevocationRepository) FindByJTI(jti string) (*domain.RevokedToken, error) {
	var record domain.RevokedToken
	err := r.db.Where("jti = ?", jti).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "revoked_token", "find_by_jti", "not_found")
			return nil, nil
		}
		observability.RecordRepositoryOperation(context.Background(), "revoked_token", "find_by_jti", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "revoked_token", "find_by_jti", "success")
	return &record, nil
}

// DeleteExpired prunes records whose token would have expired on its own.
// Records with a future expiry are never touched here.
func (r *GormRevocationRepository) DeleteExpired(before time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", before).Delete(&domain.RevokedToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "revoked_token", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "revoked_token", "delete_expired", "success")
	return res.RowsAffected, nil
}
