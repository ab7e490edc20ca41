package content

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	testAuthor = domain.UserID("author-1")
	testReader = domain.UserID("reader-1")
)

type sequentialIDs struct {
	prefix string
	next   atomic.Int64
}

func (g *sequentialIDs) NewID() (string, error) {
	return fmt.Sprintf("%s-%03d", g.prefix, g.next.Add(1)), nil
}

func tickingClock(start time.Time) func() time.Time {
	var ticks atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(ticks.Add(1)) * time.Second)
	}
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:content_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(Models()...))

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      tickingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		IDProvider: &sequentialIDs{prefix: "id"},
	})
	require.NoError(t, err)
	return service, db
}

func mustCatalog(t *testing.T, service *Service, public bool) Catalog {
	t.Helper()
	result, err := service.CreateCatalog(t.Context(), testAuthor, CatalogInput{Title: "Field Notes", IsPublic: public})
	require.NoError(t, err)
	return result.Catalog
}

func mustChapter(t *testing.T, service *Service, catalogID, title string) Chapter {
	t.Helper()
	result, err := service.CreateChapter(t.Context(), testAuthor, catalogID, ChapterInput{Title: title})
	require.NoError(t, err)
	return result.Chapter
}

func chapterNumbers(t *testing.T, db *gorm.DB, catalogID string) map[string]int {
	t.Helper()
	var chapters []Chapter
	require.NoError(t, db.Where("catalog_id = ?", catalogID).Find(&chapters).Error)
	numbers := make(map[string]int, len(chapters))
	for _, chapter := range chapters {
		numbers[chapter.ID] = chapter.ChapterNumber
	}
	return numbers
}

func pageNumbers(t *testing.T, db *gorm.DB, chapterID string) map[string]int {
	t.Helper()
	var pages []Page
	require.NoError(t, db.Where("chapter_id = ?", chapterID).Find(&pages).Error)
	numbers := make(map[string]int, len(pages))
	for _, page := range pages {
		numbers[page.ID] = page.PageNumber
	}
	return numbers
}

var errInjectedWrite = errors.New("injected write failure")

// failPositionAssignments makes every CASE position update on db fail, leaving the parking
// statement that precedes it to run normally.
func failPositionAssignments(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_position_assignment", func(tx *gorm.DB) {
		values, ok := tx.Statement.Dest.(map[string]interface{})
		if !ok {
			return
		}
		for _, value := range values {
			if expr, ok := value.(clause.Expr); ok && strings.HasPrefix(expr.SQL, "CASE") {
				_ = tx.AddError(errInjectedWrite)
			}
		}
	}))
}
