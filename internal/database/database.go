package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/readinglist"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/social"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the configured store. SQLite is limited to a single connection so
// writers are serialized by the pool.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if logger != nil {
		logger.Info("database opened", zap.String("driver", driver))
	}
	return db, nil
}

// Models lists every table the application owns.
func Models() []any {
	models := make([]any, 0, 12)
	models = append(models, content.Models()...)
	models = append(models, social.Models()...)
	models = append(models, readinglist.Models()...)
	models = append(models, users.Models()...)
	models = append(models, &migrationRecord{})
	return models
}

// Migrate creates or updates the schema and applies pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	if err := applyMigrations(db, logger); err != nil {
		return err
	}
	if logger != nil {
		logger.Info("database initialized")
	}
	return nil
}
