package social

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	catalogOwner = domain.UserID("owner-1")
	commenter    = domain.UserID("commenter-1")
	bystander    = domain.UserID("bystander-1")
)

type sequentialIDs struct {
	next atomic.Int64
}

func (g *sequentialIDs) NewID() (string, error) {
	return fmt.Sprintf("c-%03d", g.next.Add(1)), nil
}

func tickingClock(start time.Time) func() time.Time {
	var ticks atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(ticks.Add(1)) * time.Minute)
	}
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:social_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(append(content.Models(), Models()...)...))
	return db
}

func newTestService(t *testing.T, log *zap.Logger) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      tickingClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		IDProvider: &sequentialIDs{},
		Logger:     log,
	})
	require.NoError(t, err)
	return service, db
}

func seedCatalog(t *testing.T, db *gorm.DB, id string, public bool) content.Catalog {
	t.Helper()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	catalog := content.Catalog{
		ID:        id,
		AuthorID:  catalogOwner.String(),
		Title:     "Catalog " + id,
		IsPublic:  public,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&catalog).Error)
	return catalog
}

func mustComment(t *testing.T, service *Service, actor domain.UserID, catalogID, text, parentID string) Comment {
	t.Helper()
	result, err := service.CreateComment(t.Context(), actor, catalogID, CommentInput{Content: text, ParentID: parentID})
	require.NoError(t, err)
	return result.Comment
}
