// Package social implements catalog comments, pinning and the per-user like/dislike state
// machine on comments.
package social

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
)

const (
	opServiceNew      = "social.service.new"
	opCreateComment   = "social.create_comment"
	opDeleteComment   = "social.delete_comment"
	opTogglePin       = "social.toggle_pin_comment"
	opToggleLike      = "social.toggle_like"
	opToggleDislike   = "social.toggle_dislike"
	opReactionOf      = "social.reaction_of"
	opListComments    = "social.list_comments"
	reasonMissingDB   = "missing_database"
	reasonNoActor     = "missing_actor"
	reasonForbidden   = "forbidden"
	reasonNoCatalog   = "catalog_missing"
	reasonNoComment   = "comment_missing"
	reasonNoParent    = "parent_missing"
	reasonQueryFailed = "query_failed"
	reasonWriteFailed = "write_failed"
	reasonIDFailed    = "id_generation_failed"

	// maxAncestorHops bounds the walk to a top-level comment when stored rows nest deeper
	// than one level.
	maxAncestorHops = 16
)

// ServiceConfig describes the dependencies of the social engine.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider domain.IDProvider
	Logger     *zap.Logger
}

// Service manages comments and reactions.
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
		return nil, domain.Storage(opServiceNew, reasonMissingDB, errMissingDatabase)
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
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		validator:  validation.New(),
		logger:     logger,
	}, nil
}

func (s *Service) transact(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return domain.Storage(operation, reasonMissingDB, errMissingDatabase)
	}
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	s.logError(operation, reasonWriteFailed, err)
	return domain.Storage(operation, reasonWriteFailed, err)
}

func (s *Service) loadCatalog(tx *gorm.DB, operation, catalogID string) (content.Catalog, error) {
	var catalog content.Catalog
	err := tx.Where("id = ?", catalogID).Take(&catalog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return content.Catalog{}, domain.NotFound(operation, reasonNoCatalog, "catalog not found")
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
		return content.Catalog{}, domain.Storage(operation, reasonQueryFailed, err)
	}
	return catalog, nil
}

// loadComment fetches a comment under a row lock together with its catalog.
func (s *Service) loadComment(tx *gorm.DB, operation, commentID string) (Comment, content.Catalog, error) {
	var comment Comment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, content.Catalog{}, domain.NotFound(operation, reasonNoComment, "comment not found")
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("comment_id", commentID))
		return Comment{}, content.Catalog{}, domain.Storage(operation, reasonQueryFailed, err)
	}
	catalog, err := s.loadCatalog(tx, operation, comment.CatalogID)
	if err != nil {
		return Comment{}, content.Catalog{}, err
	}
	return comment, catalog, nil
}

func requireActor(operation string, actor domain.UserID) error {
	if actor.IsAnonymous() {
		return domain.Unauthorized(operation, reasonNoActor, "sign in required")
	}
	return nil
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
	s.logger.Error("social service error", attrs...)
}
