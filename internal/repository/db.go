package repository

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chatforge/authcore/internal/domain"
)

// Open connects to the credential store and migrates the record
// collections the engine owns. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the four engine collections plus the
// reference user directory.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.Session{},
		&domain.RevokedToken{},
		&domain.LoginAttempt{},
		&domain.TwoFactorConfig{},
		&domain.User{},
	); err != nil {
		return fmt.Errorf("migrate credential store: %w", err)
	}
	return nil
}
