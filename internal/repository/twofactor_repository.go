package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chatforge/authcore/internal/domain"
	"github.com/chatforge/authcore/internal/observability"
)

var ErrTwoFactorNotFound = errors.New("two-factor config not found")

type TwoFactorRepository interface {
	Upsert(cfg *domain.TwoFactorConfig) error
	FindByUserID(userID uint) (*domain.TwoFactorConfig, error)
	AdvanceCounter(userID uint, counter int64) (bool, error)
	SwapBackupCodes(userID uint, current, next string) (bool, error)
	ReplaceBackupCodes(userID uint, next string) error
	Delete(userID uint) error
}

type GormTwoFactorRepository struct{ db *gorm.DB }

func NewTwoFactorRepository(db *gorm.DB) TwoFactorRepository {
	return &GormTwoFactorRepository{db: db}
}

// Upsert writes the whole config row atomically. Secret, backup codes and
// the enabled flag always change together.
func (r *GormTwoFactorRepository) Upsert(cfg *domain.TwoFactorConfig) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(cfg).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "upsert", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "upsert", "success")
	return nil
}

func (r *GormTwoFactorRepository) FindByUserID(userID uint) (*domain.TwoFactorConfig, error) {
	var cfg domain.TwoFactorConfig
	err := r.db.Where("user_id = ?", userID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "find_by_user_id", "not_found")
			return nil, ErrTwoFactorNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "find_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "find_by_user_id", "success")
	return &cfg, nil
}

// AdvanceCounter records the time step of an accepted code. The guard
// makes acceptance single-use: of two concurrent verifications of the
// same code, exactly one row update lands.
func (r *GormTwoFactorRepository) AdvanceCounter(userID uint, counter int64) (bool, error) {
	res := r.db.Model(&domain.TwoFactorConfig{}).
		Where("user_id = ? AND enabled = ? AND last_used_counter < ?", userID, true, counter).
		Update("last_used_counter", counter)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "advance_counter", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "advance_counter", "success")
	return res.RowsAffected > 0, nil
}

// SwapBackupCodes replaces the stored set only while it still matches
// the set the caller read, so a concurrently consumed code cannot be
// spent twice.
func (r *GormTwoFactorRepository) SwapBackupCodes(userID uint, current, next string) (bool, error) {
	res := r.db.Model(&domain.TwoFactorConfig{}).
		Where("user_id = ? AND backup_codes = ?", userID, current).
		Update("backup_codes", next)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "swap_backup_codes", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "swap_backup_codes", "success")
	return res.RowsAffected > 0, nil
}

// ReplaceBackupCodes overwrites the set unconditionally, leaving the
// rest of the row untouched.
func (r *GormTwoFactorRepository) ReplaceBackupCodes(userID uint, next string) error {
	err := r.db.Model(&domain.TwoFactorConfig{}).
		Where("user_id = ?", userID).
		Update("backup_codes", next).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "replace_backup_codes", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "replace_backup_codes", "success")
	return nil
}

// Delete removes the row entirely. Disable goes through here so no reader
// can observe a disabled config with a leftover secret.
func (r *GormTwoFactorRepository) Delete(userID uint) error {
	err := r.db.Where("user_id = ?", userID).Delete(&domain.TwoFactorConfig{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "delete", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "twofactor_config", "delete", "success")
	return nil
}
