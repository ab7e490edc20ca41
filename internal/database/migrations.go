package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationUnpinReplies         = "2026-10-01_unpin_replies"
	migrationFlattenNestedReplies = "2026-10-01_flatten_nested_replies"

	maxFlattenPasses = 16
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
		{name: migrationUnpinReplies, apply: unpinReplies},
		{name: migrationFlattenNestedReplies, apply: flattenNestedReplies},
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
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Only top-level comments may carry a pin.
func unpinReplies(db *gorm.DB) error {
	return db.Model(&social.Comment{}).
		Where("parent_id IS NOT NULL AND is_pinned = ?", true).
		Update("is_pinned", false).Error
}

// Moves replies-to-replies up one level per pass until every reply points at a
// top-level comment.
func flattenNestedReplies(db *gorm.DB) error {
	for pass := 0; pass < maxFlattenPasses; pass++ {
		result := db.Exec(`UPDATE comments
SET parent_id = (SELECT parent.parent_id FROM comments AS parent WHERE parent.id = comments.parent_id)
WHERE parent_id IN (SELECT nested.id FROM comments AS nested WHERE nested.parent_id IS NOT NULL)`)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
	}
	return fmt.Errorf("reply chains deeper than %d levels", maxFlattenPasses)
}
