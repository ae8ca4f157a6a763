package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillRecipeTotalMinutes = "2024-10-01_backfill_recipe_total_minutes"
	migrationNormalizeProfileRoles      = "2024-10-08_normalize_profile_roles"
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
		{name: migrationBackfillRecipeTotalMinutes, apply: backfillRecipeTotalMinutes},
		{name: migrationNormalizeProfileRoles, apply: normalizeProfileRoles},
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

// Rows imported from older exports carry a zero or stale total.
func backfillRecipeTotalMinutes(db *gorm.DB) error {
	return db.Model(&RecipeRecord{}).
		Where("total_minutes <> prep_minutes + cook_minutes").
		Update("total_minutes", gorm.Expr("prep_minutes + cook_minutes")).Error
}

func normalizeProfileRoles(db *gorm.DB) error {
	return db.Model(&ProfileRecord{}).
		Where("role NOT IN ?", []string{"reader", "editor"}).
		Update("role", "reader").Error
}
