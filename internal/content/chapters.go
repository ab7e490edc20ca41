package content

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateChapter appends a chapter to the catalog. A chapter without a document reference is
// seeded with a single placeholder page.
func (s *Service) CreateChapter(ctx context.Context, actor domain.UserID, catalogID string, input ChapterInput) (ChapterResult, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.DocumentURL = strings.TrimSpace(input.DocumentURL)

	var result ChapterResult
	err := s.transact(ctx, opCreateChapter, func(tx *gorm.DB) error {
		catalog, err := s.loadCatalog(tx, opCreateChapter, catalogID, true)
		if err != nil {
			return err
		}
		if err := requireOwner(opCreateChapter, catalog, actor); err != nil {
			return err
		}
		if err := s.validator.Struct(opCreateChapter, input); err != nil {
			return err
		}

		// Deleting a chapter leaves a gap, so the next position is max+1 rather than count+1.
		var highest struct{ Highest int }
		if err := tx.Model(&Chapter{}).
			Select("COALESCE(MAX(chapter_number), 0) AS highest").
			Where("catalog_id = ?", catalogID).
			Scan(&highest).Error; err != nil {
			return err
		}

		chapterID, err := s.newID(opCreateChapter)
		if err != nil {
			return err
		}
		now := s.now()
		chapter := Chapter{
			ID:            chapterID,
			CatalogID:     catalogID,
			Title:         input.Title,
			ChapterNumber: highest.Highest + 1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if input.DocumentURL != "" {
			documentURL := input.DocumentURL
			chapter.DocumentURL = &documentURL
		}
		if err := tx.Create(&chapter).Error; err != nil {
			return err
		}
		result.Chapter = chapter
		result.Affected = domain.NewAffected(domain.Catalog(catalogID), domain.Chapter(chapterID))

		if chapter.HasDocument() {
			result.Pages = []Page{}
			return nil
		}
		pageID, err := s.newID(opCreateChapter)
		if err != nil {
			return err
		}
		page := Page{
			ID:         pageID,
			ChapterID:  chapterID,
			PageNumber: 1,
			Content:    DefaultPageContent,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(&page).Error; err != nil {
			return err
		}
		result.Pages = []Page{page}
		result.Affected.Add(domain.Page(pageID))
		return nil
	})
	if err != nil {
		return ChapterResult{}, err
	}
	return result, nil
}

// UpdateChapterTitle renames a chapter.
func (s *Service) UpdateChapterTitle(ctx context.Context, actor domain.UserID, chapterID, title string) (ChapterResult, error) {
	input := chapterTitleInput{Title: strings.TrimSpace(title)}
	var result ChapterResult
	err := s.transact(ctx, opUpdateChapterTitle, func(tx *gorm.DB) error {
		chapter, _, err := s.loadOwnedChapter(tx, opUpdateChapterTitle, actor, chapterID)
		if err != nil {
			return err
		}
		if err := s.validator.Struct(opUpdateChapterTitle, input); err != nil {
			return err
		}
		chapter.Title = input.Title
		chapter.UpdatedAt = s.now()
		if err := tx.Model(&Chapter{}).Where("id = ?", chapter.ID).Updates(map[string]any{
			"title":      chapter.Title,
			"updated_at": chapter.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		result.Chapter = chapter
		result.Affected = domain.NewAffected(domain.Catalog(chapter.CatalogID), domain.Chapter(chapter.ID))
		return nil
	})
	if err != nil {
		return ChapterResult{}, err
	}
	return result, nil
}

// AttachChapterDocument points the chapter at an externally stored document. The chapter's
// pages are dropped since a document chapter has none.
func (s *Service) AttachChapterDocument(ctx context.Context, actor domain.UserID, chapterID, documentURL string) (ChapterResult, error) {
	input := documentInput{DocumentURL: strings.TrimSpace(documentURL)}
	var result ChapterResult
	err := s.transact(ctx, opAttachChapterDocument, func(tx *gorm.DB) error {
		chapter, _, err := s.loadOwnedChapter(tx, opAttachChapterDocument, actor, chapterID)
		if err != nil {
			return err
		}
		if err := s.validator.Struct(opAttachChapterDocument, input); err != nil {
			return err
		}
		var pageIDs []string
		if err := tx.Model(&Page{}).Where("chapter_id = ?", chapter.ID).Pluck("id", &pageIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("chapter_id = ?", chapter.ID).Delete(&Page{}).Error; err != nil {
			return err
		}
		chapter.DocumentURL = &input.DocumentURL
		chapter.UpdatedAt = s.now()
		if err := tx.Model(&Chapter{}).Where("id = ?", chapter.ID).Updates(map[string]any{
			"document_url": input.DocumentURL,
			"updated_at":   chapter.UpdatedAt,
		}).Error; err != nil {
			return err
		}
		result.Chapter = chapter
		result.Affected = domain.NewAffected(domain.Catalog(chapter.CatalogID), domain.Chapter(chapter.ID))
		for _, pageID := range pageIDs {
			result.Affected.Add(domain.Page(pageID))
		}
		return nil
	})
	if err != nil {
		return ChapterResult{}, err
	}
	return result, nil
}

// DeleteChapter removes a chapter and its pages. Sibling positions are left as they are;
// the next ReorderChapters closes any gap.
func (s *Service) DeleteChapter(ctx context.Context, actor domain.UserID, chapterID string) (DeleteResult, error) {
	var affected domain.Affected
	err := s.transact(ctx, opDeleteChapter, func(tx *gorm.DB) error {
		chapter, _, err := s.loadOwnedChapter(tx, opDeleteChapter, actor, chapterID)
		if err != nil {
			return err
		}
		var pageIDs []string
		if err := tx.Model(&Page{}).Where("chapter_id = ?", chapterID).Pluck("id", &pageIDs).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Page{}, "chapter_id = ?", chapterID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&Chapter{}, "id = ?", chapterID).Error; err != nil {
			return err
		}
		affected = domain.NewAffected(domain.Catalog(chapter.CatalogID), domain.Chapter(chapterID))
		for _, pageID := range pageIDs {
			affected.Add(domain.Page(pageID))
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return DeleteResult{Affected: affected}, nil
}

// ReorderChapters assigns chapter_number = index+1 following orderedChapterIDs, which must be
// a permutation of every chapter in the catalog.
func (s *Service) ReorderChapters(ctx context.Context, actor domain.UserID, catalogID string, orderedChapterIDs []string) (ReorderResult, error) {
	var result ReorderResult
	err := s.transact(ctx, opReorderChapters, func(tx *gorm.DB) error {
		catalog, err := s.loadCatalog(tx, opReorderChapters, catalogID, true)
		if err != nil {
			return err
		}
		if err := requireOwner(opReorderChapters, catalog, actor); err != nil {
			return err
		}

		var existing []string
		if err := tx.Model(&Chapter{}).Where("catalog_id = ?", catalogID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if mismatch := permutationMismatch(existing, orderedChapterIDs); mismatch != "" {
			return domain.Validation(opReorderChapters, "invalid_permutation", mismatch)
		}

		if err := assignPositions(tx, chapterPositions, catalogID, orderedChapterIDs); err != nil {
			s.logError(opReorderChapters, reasonWriteFailed, err, zap.String("catalog_id", catalogID))
			return domain.Storage(opReorderChapters, reasonWriteFailed, err)
		}

		chapters, err := s.listChapters(tx, opReorderChapters, catalogID)
		if err != nil {
			return err
		}
		result.Chapters = chapters
		result.Affected = domain.NewAffected(domain.Catalog(catalogID))
		for _, chapter := range chapters {
			result.Affected.Add(domain.Chapter(chapter.ID))
		}
		return nil
	})
	if err != nil {
		return ReorderResult{}, err
	}
	return result, nil
}

// GetChapter returns a chapter with its pages ordered by position.
func (s *Service) GetChapter(ctx context.Context, viewer domain.UserID, chapterID string) (ChapterDetail, error) {
	db, err := s.begin(ctx, opGetChapter)
	if err != nil {
		return ChapterDetail{}, err
	}
	chapter, err := s.loadChapter(db, opGetChapter, chapterID, false)
	if err != nil {
		return ChapterDetail{}, err
	}
	catalog, err := s.loadCatalog(db, opGetChapter, chapter.CatalogID, false)
	if err != nil {
		return ChapterDetail{}, err
	}
	if !canView(catalog, viewer) {
		return ChapterDetail{}, domain.NotFound(opGetChapter, reasonChapterMissing, "chapter not found")
	}
	pages, err := s.listPages(db, opGetChapter, chapterID)
	if err != nil {
		return ChapterDetail{}, err
	}
	return ChapterDetail{Catalog: catalog, Chapter: chapter, Pages: pages}, nil
}

// GetOwnedChapter checks that actor may attach a document to the chapter. Callers use it
// before storing the document bytes.
func (s *Service) GetOwnedChapter(ctx context.Context, actor domain.UserID, chapterID string) (Chapter, error) {
	var chapter Chapter
	err := s.transact(ctx, opAttachChapterDocument, func(tx *gorm.DB) error {
		loaded, _, err := s.loadOwnedChapter(tx, opAttachChapterDocument, actor, chapterID)
		chapter = loaded
		return err
	})
	if err != nil {
		return Chapter{}, err
	}
	return chapter, nil
}
