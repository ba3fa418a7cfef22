package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationStripHandlePrefix    = "2024-06-10_strip_handle_at_prefix"
	migrationNormalizeAccountMail = "2024-06-18_normalize_account_email"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationStripHandlePrefix, apply: stripHandlePrefix},
		{name: migrationNormalizeAccountMail, apply: normalizeAccountEmail},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// stripHandlePrefix removes the "@" that older rows stored in front of handles.
func stripHandlePrefix(db *gorm.DB) error {
	return db.Exec("UPDATE user_submissions SET social_media_handle = ltrim(social_media_handle, '@') WHERE social_media_handle LIKE '@%'").Error
}

func normalizeAccountEmail(db *gorm.DB) error {
	return db.Exec("UPDATE user_accounts SET user_email = lower(trim(user_email)) WHERE user_email <> lower(trim(user_email))").Error
}
