// Package content owns catalogs, chapters and pages and keeps chapter and page positions
// dense under insert, delete and reorder.
package content

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew            = "content.service.new"
	opCreateCatalog         = "content.create_catalog"
	opUpdateCatalog         = "content.update_catalog"
	opDeleteCatalog         = "content.delete_catalog"
	opGetCatalog            = "content.get_catalog"
	opListCatalogs          = "content.list_catalogs"
	opToggleCatalogLike     = "content.toggle_catalog_like"
	opCreateChapter         = "content.create_chapter"
	opUpdateChapterTitle    = "content.update_chapter_title"
	opAttachChapterDocument = "content.attach_chapter_document"
	opDeleteChapter         = "content.delete_chapter"
	opReorderChapters       = "content.reorder_chapters"
	opGetChapter            = "content.get_chapter"
	opSavePage              = "content.save_page"
	opDeletePage            = "content.delete_page"

	reasonMissingDatabase = "missing_database"
	reasonMissingActor    = "missing_actor"
	reasonNotOwner        = "not_owner"
	reasonCatalogMissing  = "catalog_missing"
	reasonChapterMissing  = "chapter_missing"
	reasonPageMissing     = "page_missing"
	reasonQueryFailed     = "query_failed"
	reasonWriteFailed     = "write_failed"
	reasonIDFailed        = "id_generation_failed"
)

// ServiceConfig describes the dependencies of the content engine.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider domain.IDProvider
	Logger     *zap.Logger
}

// Service implements the content ordering engine.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider domain.IDProvider
	validator  *validation.Validator
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, domain.Storage(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, domain.Storage(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		validator:  validation.New(),
		logger:     logger,
	}, nil
}

func (s *Service) begin(ctx context.Context, operation string) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return nil, domain.Storage(operation, reasonMissingDatabase, errMissingDatabase)
	}
	return s.db.WithContext(ctx), nil
}

// transact runs fn in a single transaction. Errors already shaped as *domain.Error pass
// through; anything else is reported as a storage failure.
func (s *Service) transact(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	db, err := s.begin(ctx, operation)
	if err != nil {
		return err
	}
	txErr := db.Transaction(fn)
	if txErr == nil {
		return nil
	}
	var domainErr *domain.Error
	if errors.As(txErr, &domainErr) {
		return txErr
	}
	s.logError(operation, reasonWriteFailed, txErr)
	return domain.Storage(operation, reasonWriteFailed, txErr)
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) newID(operation string) (string, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, reasonIDFailed, err)
		return "", domain.Storage(operation, reasonIDFailed, err)
	}
	return id, nil
}

// loadCatalog fetches a catalog, optionally taking a row lock for the rest of the
// transaction. SQLite ignores the locking clause; its single connection already serializes
// writers.
func (s *Service) loadCatalog(tx *gorm.DB, operation, catalogID string, lock bool) (Catalog, error) {
	query := tx
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var catalog Catalog
	err := query.Where("id = ?", catalogID).Take(&catalog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Catalog{}, domain.NotFound(operation, reasonCatalogMissing, "catalog not found")
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
		return Catalog{}, domain.Storage(operation, reasonQueryFailed, err)
	}
	return catalog, nil
}

func (s *Service) loadChapter(tx *gorm.DB, operation, chapterID string, lock bool) (Chapter, error) {
	query := tx
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var chapter Chapter
	err := query.Where("id = ?", chapterID).Take(&chapter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Chapter{}, domain.NotFound(operation, reasonChapterMissing, "chapter not found")
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("chapter_id", chapterID))
		return Chapter{}, domain.Storage(operation, reasonQueryFailed, err)
	}
	return chapter, nil
}

// loadOwnedChapter locks the chapter and verifies the actor owns its catalog.
func (s *Service) loadOwnedChapter(tx *gorm.DB, operation string, actor domain.UserID, chapterID string) (Chapter, Catalog, error) {
	if err := requireActor(operation, actor); err != nil {
		return Chapter{}, Catalog{}, err
	}
	chapter, err := s.loadChapter(tx, operation, chapterID, true)
	if err != nil {
		return Chapter{}, Catalog{}, err
	}
	catalog, err := s.loadCatalog(tx, operation, chapter.CatalogID, false)
	if err != nil {
		return Chapter{}, Catalog{}, err
	}
	if err := requireOwner(operation, catalog, actor); err != nil {
		return Chapter{}, Catalog{}, err
	}
	return chapter, catalog, nil
}

func (s *Service) listChapters(tx *gorm.DB, operation, catalogID string) ([]Chapter, error) {
	var chapters []Chapter
	if err := tx.Where("catalog_id = ?", catalogID).
		Order("chapter_number ASC").
		Find(&chapters).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
		return nil, domain.Storage(operation, reasonQueryFailed, err)
	}
	return chapters, nil
}

func (s *Service) listPages(tx *gorm.DB, operation, chapterID string) ([]Page, error) {
	var pages []Page
	if err := tx.Where("chapter_id = ?", chapterID).
		Order("page_number ASC").
		Find(&pages).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("chapter_id", chapterID))
		return nil, domain.Storage(operation, reasonQueryFailed, err)
	}
	return pages, nil
}

func requireActor(operation string, actor domain.UserID) error {
	if actor.IsAnonymous() {
		return domain.Unauthorized(operation, reasonMissingActor, "sign in required")
	}
	return nil
}

func requireOwner(operation string, catalog Catalog, actor domain.UserID) error {
	if err := requireActor(operation, actor); err != nil {
		return err
	}
	if catalog.AuthorID != actor.String() {
		return domain.Unauthorized(operation, reasonNotOwner, "only the catalog author can do this")
	}
	return nil
}

func canView(catalog Catalog, viewer domain.UserID) bool {
	return catalog.VisibleTo(viewer)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("content service error", attrs...)
}
