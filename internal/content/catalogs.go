package content

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cascadeStep struct {
	table     string
	statement string
}

// catalogCascade removes rows that reference a catalog, including rows owned by the social
// and reading list engines. Those are addressed by table name so content does not import
// its peers; tables that were never migrated are skipped.
var catalogCascade = []cascadeStep{
	{"comment_likes", "DELETE FROM comment_likes WHERE comment_id IN (SELECT id FROM comments WHERE catalog_id = ?)"},
	{"comment_dislikes", "DELETE FROM comment_dislikes WHERE comment_id IN (SELECT id FROM comments WHERE catalog_id = ?)"},
	{"comments", "DELETE FROM comments WHERE catalog_id = ?"},
	{"reading_list_entries", "DELETE FROM reading_list_entries WHERE catalog_id = ?"},
	{"catalog_likes", "DELETE FROM catalog_likes WHERE catalog_id = ?"},
	{"pages", "DELETE FROM pages WHERE chapter_id IN (SELECT id FROM chapters WHERE catalog_id = ?)"},
	{"chapters", "DELETE FROM chapters WHERE catalog_id = ?"},
}

func normalizeCatalogInput(input CatalogInput) CatalogInput {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Category = strings.TrimSpace(input.Category)
	input.CoverImageURL = strings.TrimSpace(input.CoverImageURL)
	return input
}

// CreateCatalog stores a new catalog authored by actor.
func (s *Service) CreateCatalog(ctx context.Context, actor domain.UserID, input CatalogInput) (CatalogResult, error) {
	if err := requireActor(opCreateCatalog, actor); err != nil {
		return CatalogResult{}, err
	}
	input = normalizeCatalogInput(input)
	if err := s.validator.Struct(opCreateCatalog, input); err != nil {
		return CatalogResult{}, err
	}
	id, err := s.newID(opCreateCatalog)
	if err != nil {
		return CatalogResult{}, err
	}

	now := s.now()
	catalog := Catalog{
		ID:            id,
		AuthorID:      actor.String(),
		Title:         input.Title,
		Description:   input.Description,
		Category:      input.Category,
		IsPublic:      input.IsPublic,
		CoverImageURL: input.CoverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.transact(ctx, opCreateCatalog, func(tx *gorm.DB) error {
		return tx.Create(&catalog).Error
	})
	if err != nil {
		return CatalogResult{}, err
	}
	return CatalogResult{
		Catalog:  catalog,
		Affected: domain.NewAffected(domain.Catalog(catalog.ID), domain.CatalogList(actor.String())),
	}, nil
}

// UpdateCatalog replaces the catalog metadata. Only the author may update it.
func (s *Service) UpdateCatalog(ctx context.Context, actor domain.UserID, catalogID string, input CatalogInput) (CatalogResult, error) {
	input = normalizeCatalogInput(input)
	var updated Catalog
	err := s.transact(ctx, opUpdateCatalog, func(tx *gorm.DB) error {
		catalog, err := s.loadCatalog(tx, opUpdateCatalog, catalogID, true)
		if err != nil {
			return err
		}
		if err := requireOwner(opUpdateCatalog, catalog, actor); err != nil {
			return err
		}
		if err := s.validator.Struct(opUpdateCatalog, input); err != nil {
			return err
		}
		catalog.Title = input.Title
		catalog.Description = input.Description
		catalog.Category = input.Category
		catalog.IsPublic = input.IsPublic
		if input.CoverImageURL != "" {
			catalog.CoverImageURL = input.CoverImageURL
		}
		catalog.UpdatedAt = s.now()
		if err := tx.Save(&catalog).Error; err != nil {
			return err
		}
		updated = catalog
		return nil
	})
	if err != nil {
		return CatalogResult{}, err
	}
	return CatalogResult{
		Catalog:  updated,
		Affected: domain.NewAffected(domain.Catalog(updated.ID), domain.CatalogList(updated.AuthorID)),
	}, nil
}

// DeleteCatalog removes the catalog together with its chapters, pages, comments, reactions,
// likes and reading list entries.
func (s *Service) DeleteCatalog(ctx context.Context, actor domain.UserID, catalogID string) (DeleteResult, error) {
	affected := domain.NewAffected(domain.Catalog(catalogID), domain.CatalogList(actor.String()), domain.Comments(catalogID))
	err := s.transact(ctx, opDeleteCatalog, func(tx *gorm.DB) error {
		catalog, err := s.loadCatalog(tx, opDeleteCatalog, catalogID, true)
		if err != nil {
			return err
		}
		if err := requireOwner(opDeleteCatalog, catalog, actor); err != nil {
			return err
		}

		if tx.Migrator().HasTable("reading_list_entries") {
			var readers []string
			if err := tx.Table("reading_list_entries").
				Where("catalog_id = ?", catalogID).
				Pluck("user_id", &readers).Error; err != nil {
				return err
			}
			for _, reader := range readers {
				affected.Add(domain.ReadingList(reader))
			}
		}
		chapters, err := s.listChapters(tx, opDeleteCatalog, catalogID)
		if err != nil {
			return err
		}
		for _, chapter := range chapters {
			affected.Add(domain.Chapter(chapter.ID))
		}

		for _, step := range catalogCascade {
			if !tx.Migrator().HasTable(step.table) {
				continue
			}
			if err := tx.Exec(step.statement, catalogID).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&Catalog{}, "id = ?", catalogID).Error
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Affected: affected}, nil
}

// GetCatalog returns the catalog with its chapters ordered by position. Private catalogs
// are reported as missing to everyone but their author.
func (s *Service) GetCatalog(ctx context.Context, viewer domain.UserID, catalogID string) (CatalogDetail, error) {
	db, err := s.begin(ctx, opGetCatalog)
	if err != nil {
		return CatalogDetail{}, err
	}
	catalog, err := s.loadCatalog(db, opGetCatalog, catalogID, false)
	if err != nil {
		return CatalogDetail{}, err
	}
	if !canView(catalog, viewer) {
		return CatalogDetail{}, domain.NotFound(opGetCatalog, reasonCatalogMissing, "catalog not found")
	}
	chapters, err := s.listChapters(db, opGetCatalog, catalogID)
	if err != nil {
		return CatalogDetail{}, err
	}
	likeCount, liked, err := s.catalogLikeState(db, opGetCatalog, catalogID, viewer)
	if err != nil {
		return CatalogDetail{}, err
	}
	var commentCount int64
	if db.Migrator().HasTable("comments") {
		if err := db.Table("comments").Where("catalog_id = ?", catalogID).Count(&commentCount).Error; err != nil {
			s.logError(opGetCatalog, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
			return CatalogDetail{}, domain.Storage(opGetCatalog, reasonQueryFailed, err)
		}
	}
	return CatalogDetail{
		Catalog:      catalog,
		Chapters:     chapters,
		LikeCount:    likeCount,
		LikedByUser:  liked,
		CommentCount: commentCount,
	}, nil
}

// ListPublicCatalogs returns public catalogs, newest first.
func (s *Service) ListPublicCatalogs(ctx context.Context) ([]CatalogSummary, error) {
	return s.listCatalogs(ctx, "is_public = ?", true)
}

// ListCatalogsByAuthor returns every catalog written by author, newest first.
func (s *Service) ListCatalogsByAuthor(ctx context.Context, author domain.UserID) ([]CatalogSummary, error) {
	if err := requireActor(opListCatalogs, author); err != nil {
		return nil, err
	}
	return s.listCatalogs(ctx, "author_id = ?", author.String())
}

type catalogCountRow struct {
	CatalogID string
	Total     int64
}

func (s *Service) listCatalogs(ctx context.Context, condition string, value any) ([]CatalogSummary, error) {
	db, err := s.begin(ctx, opListCatalogs)
	if err != nil {
		return nil, err
	}
	var catalogs []Catalog
	if err := db.Where(condition, value).
		Order("created_at DESC").
		Order("id DESC").
		Find(&catalogs).Error; err != nil {
		s.logError(opListCatalogs, reasonQueryFailed, err)
		return nil, domain.Storage(opListCatalogs, reasonQueryFailed, err)
	}
	if len(catalogs) == 0 {
		return []CatalogSummary{}, nil
	}

	ids := make([]string, len(catalogs))
	for i, catalog := range catalogs {
		ids[i] = catalog.ID
	}
	chapterCounts, err := s.countBy(db, &Chapter{}, ids)
	if err != nil {
		return nil, err
	}
	likeCounts, err := s.countBy(db, &CatalogLike{}, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]CatalogSummary, len(catalogs))
	for i, catalog := range catalogs {
		summaries[i] = CatalogSummary{
			Catalog:      catalog,
			ChapterCount: chapterCounts[catalog.ID],
			LikeCount:    likeCounts[catalog.ID],
		}
	}
	return summaries, nil
}

func (s *Service) countBy(db *gorm.DB, model any, catalogIDs []string) (map[string]int64, error) {
	var rows []catalogCountRow
	if err := db.Model(model).
		Select("catalog_id, COUNT(*) AS total").
		Where("catalog_id IN ?", catalogIDs).
		Group("catalog_id").
		Scan(&rows).Error; err != nil {
		s.logError(opListCatalogs, reasonQueryFailed, err)
		return nil, domain.Storage(opListCatalogs, reasonQueryFailed, err)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.CatalogID] = row.Total
	}
	return counts, nil
}

// ToggleCatalogLike adds the actor's like when absent and removes it when present.
func (s *Service) ToggleCatalogLike(ctx context.Context, actor domain.UserID, catalogID string) (LikeResult, error) {
	if err := requireActor(opToggleCatalogLike, actor); err != nil {
		return LikeResult{}, err
	}
	var result LikeResult
	err := s.transact(ctx, opToggleCatalogLike, func(tx *gorm.DB) error {
		catalog, err := s.loadCatalog(tx, opToggleCatalogLike, catalogID, true)
		if err != nil {
			return err
		}
		if !canView(catalog, actor) {
			return domain.NotFound(opToggleCatalogLike, reasonCatalogMissing, "catalog not found")
		}

		var existing CatalogLike
		lookup := tx.Where("user_id = ? AND catalog_id = ?", actor.String(), catalogID).Take(&existing)
		switch {
		case errors.Is(lookup.Error, gorm.ErrRecordNotFound):
			like := CatalogLike{UserID: actor.String(), CatalogID: catalogID, CreatedAt: s.now()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
			result.Liked = true
		case lookup.Error != nil:
			return lookup.Error
		default:
			if err := tx.Delete(&CatalogLike{}, "user_id = ? AND catalog_id = ?", actor.String(), catalogID).Error; err != nil {
				return err
			}
			result.Liked = false
		}

		count, _, err := s.catalogLikeState(tx, opToggleCatalogLike, catalogID, domain.Anonymous)
		if err != nil {
			return err
		}
		result.LikeCount = count
		return nil
	})
	if err != nil {
		return LikeResult{}, err
	}
	result.Affected = domain.NewAffected(domain.Catalog(catalogID))
	return result, nil
}

func (s *Service) catalogLikeState(db *gorm.DB, operation, catalogID string, viewer domain.UserID) (int64, bool, error) {
	var count int64
	if err := db.Model(&CatalogLike{}).Where("catalog_id = ?", catalogID).Count(&count).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
		return 0, false, domain.Storage(operation, reasonQueryFailed, err)
	}
	if viewer.IsAnonymous() || count == 0 {
		return count, false, nil
	}
	var mine int64
	if err := db.Model(&CatalogLike{}).
		Where("catalog_id = ? AND user_id = ?", catalogID, viewer.String()).
		Count(&mine).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("catalog_id", catalogID))
		return 0, false, domain.Storage(operation, reasonQueryFailed, err)
	}
	return count, mine > 0, nil
}
