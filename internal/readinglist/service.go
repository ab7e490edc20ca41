// Package readinglist keeps each user's bookmarked catalogs and the groups they are filed
// under.
package readinglist

import (
	"context"
	"errors"
	"strings"
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
	opServiceNew   = "readinglist.service.new"
	opToggle       = "readinglist.toggle"
	opCreateGroup  = "readinglist.create_group"
	opUpdateGroup  = "readinglist.update_group"
	opDeleteGroup  = "readinglist.delete_group"
	opListGroups   = "readinglist.list_groups"
	opListEntries  = "readinglist.list_entries"
	opContains     = "readinglist.contains"
	reasonNoUser   = "missing_user"
	reasonNoGroup  = "group_missing"
	reasonQuery    = "query_failed"
	reasonWrite    = "write_failed"
	reasonNameUsed = "duplicate_name"
	reasonExists   = "entry_exists"
)

// ServiceConfig describes the dependencies of the reading list engine.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider domain.IDProvider
	Logger     *zap.Logger
}

// Service manages reading list entries and groups.
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
		return nil, domain.Storage(opServiceNew, "missing_database", errMissingDatabase)
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

// Toggle adds, moves or removes the user's entry for catalogID. An empty groupID means
// ungrouped. The outcome depends on the current entry: none is added, one in a different
// group is moved, one already in the requested group is removed.
func (s *Service) Toggle(ctx context.Context, user domain.UserID, catalogID, groupID string) (ToggleResult, error) {
	if err := requireUser(opToggle, user); err != nil {
		return ToggleResult{}, err
	}
	groupID = strings.TrimSpace(groupID)

	var result ToggleResult
	err := s.transact(ctx, opToggle, func(tx *gorm.DB) error {
		var catalog content.Catalog
		err := tx.Where("id = ?", catalogID).Take(&catalog).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !catalog.VisibleTo(user)) {
			return domain.NotFound(opToggle, "catalog_missing", "catalog not found")
		}
		if err != nil {
			return err
		}
		if groupID != "" {
			if _, err := s.ownedGroup(tx, opToggle, user, groupID); err != nil {
				return err
			}
		}

		var existing Entry
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND catalog_id = ?", user.String(), catalogID).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			id, err := s.idProvider.NewID()
			if err != nil {
				return err
			}
			entry := Entry{
				ID:        id,
				UserID:    user.String(),
				CatalogID: catalogID,
				GroupID:   optional(groupID),
				CreatedAt: s.clock().UTC(),
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			result = ToggleResult{Outcome: OutcomeAdded, Entry: &entry}
		case err != nil:
			return err
		case groupOf(existing) != groupID:
			existing.GroupID = optional(groupID)
			if err := tx.Model(&Entry{}).Where("id = ?", existing.ID).Update("group_id", existing.GroupID).Error; err != nil {
				return err
			}
			result = ToggleResult{Outcome: OutcomeMoved, Entry: &existing}
		default:
			if err := tx.Delete(&Entry{}, "id = ?", existing.ID).Error; err != nil {
				return err
			}
			result = ToggleResult{Outcome: OutcomeRemoved}
		}
		return nil
	})
	if err != nil {
		return ToggleResult{}, err
	}
	result.Affected = domain.NewAffected(domain.ReadingList(user.String()))
	return result, nil
}

// Contains reports whether the user has bookmarked catalogID.
func (s *Service) Contains(ctx context.Context, user domain.UserID, catalogID string) (bool, error) {
	if user.IsAnonymous() {
		return false, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ? AND catalog_id = ?", user.String(), catalogID).
		Count(&count).Error; err != nil {
		s.logError(opContains, reasonQuery, err, zap.String("catalog_id", catalogID))
		return false, domain.Storage(opContains, reasonQuery, err)
	}
	return count > 0, nil
}

// ListEntries returns the user's entries newest first. Catalogs that became private to the
// user are left out.
func (s *Service) ListEntries(ctx context.Context, user domain.UserID) ([]EntryView, error) {
	if err := requireUser(opListEntries, user); err != nil {
		return nil, err
	}
	type row struct {
		Entry
		CatalogTitle    string
		CatalogAuthorID string
		CoverImageURL   string
		GroupName       *string
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("reading_list_entries AS e").
		Select("e.id, e.user_id, e.catalog_id, e.group_id, e.created_at, " +
			"c.title AS catalog_title, c.author_id AS catalog_author_id, c.cover_image_url AS cover_image_url, " +
			"g.name AS group_name").
		Joins("JOIN catalogs c ON c.id = e.catalog_id").
		Joins("LEFT JOIN reading_list_groups g ON g.id = e.group_id").
		Where("e.user_id = ?", user.String()).
		Where("c.is_public = ? OR c.author_id = ?", true, user.String()).
		Order("e.created_at DESC").
		Order("e.id DESC").
		Scan(&rows).Error
	if err != nil {
		s.logError(opListEntries, reasonQuery, err)
		return nil, domain.Storage(opListEntries, reasonQuery, err)
	}
	views := make([]EntryView, len(rows))
	for i, r := range rows {
		views[i] = EntryView{
			Entry:           r.Entry,
			CatalogTitle:    r.CatalogTitle,
			CatalogAuthorID: r.CatalogAuthorID,
			CoverImageURL:   r.CoverImageURL,
		}
		if r.GroupName != nil {
			views[i].GroupName = *r.GroupName
		}
	}
	return views, nil
}

func (s *Service) transact(ctx context.Context, operation string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicateConflict(operation, err)
	}
	s.logError(operation, reasonWrite, err)
	return domain.Storage(operation, reasonWrite, err)
}

// duplicateConflict names the unique index an operation can collide on. Toggle races on
// (user, catalog); the group operations on (user, name).
func duplicateConflict(operation string, err error) error {
	if operation == opToggle {
		return domain.Conflict(operation, reasonExists, "catalog is already in the reading list", err)
	}
	return domain.Conflict(operation, reasonNameUsed, "a group with this name already exists", err)
}

func requireUser(operation string, user domain.UserID) error {
	if user.IsAnonymous() {
		return domain.Unauthorized(operation, reasonNoUser, "sign in required")
	}
	return nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func groupOf(entry Entry) string {
	if entry.GroupID == nil {
		return ""
	}
	return *entry.GroupID
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := append([]zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}, fields...)
	s.logger.Error("reading list service error", attrs...)
}
