package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/observability"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(s *domain.Session) error
	FindByID(id string) (*domain.Session, error)
	ListActiveByUserID(userID uint) ([]domain.Session, error)
	TouchActivity(id string, at time.Time) error
	Deactivate(id, reason string) error
	DeactivateByUserID(userID uint, reason string) (int64, error)
	DeleteExpired(before time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByID(id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, time.Now()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "success")
	return sessions, nil
}

// TouchActivity moves last_activity_at forward. The timestamp guard keeps
// concurrent touches monotonic without a lock.
func (r *GormSessionRepository) TouchActivity(id string, at time.Time) error {
	err := r.db.Model(&domain.Session{}).
		Where("id = ? AND last_activity_at < ?", id, at).
		Update("last_activity_at", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "touch_activity", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "touch_activity", "success")
	return nil
}

// Deactivate clears the active flag. The WHERE active guard makes repeated
// calls no-ops, so the flag only ever moves active to inactive.
func (r *GormSessionRepository) Deactivate(id, reason string) error {
	now := time.Now().UTC()
	err := r.db.Model(&domain.Session{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{"active": false, "revoked_at": now, "revoked_reason": reason}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "deactivate", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "deactivate", "success")
	return nil
}

func (r *GormSessionRepository) DeactivateByUserID(userID uint, reason string) (int64, error) {
	now := time.Now().UTC()
	res := r.db.Model(&domain.Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Updates(map[string]any{"active": false, "revoked_at": now, "revoked_reason": reason})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_by_user_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_by_user_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) DeleteExpired(before time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", before).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "delete_expired", "success")
	return res.RowsAffected, nil
}
