package content

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SavePage writes content at (chapterID, pageNumber), replacing the page already there or
// creating one. Other pages never shift. pageNumber may be at most count+1 so an append
// keeps the ordering dense.
func (s *Service) SavePage(ctx context.Context, actor domain.UserID, chapterID string, pageNumber int, content string) (PageResult, error) {
	var result PageResult
	err := s.transact(ctx, opSavePage, func(tx *gorm.DB) error {
		chapter, _, err := s.loadOwnedChapter(tx, opSavePage, actor, chapterID)
		if err != nil {
			return err
		}
		if err := s.validator.Struct(opSavePage, pageInput{PageNumber: pageNumber}); err != nil {
			return err
		}
		if chapter.HasDocument() {
			return domain.Validation(opSavePage, "document_chapter", "chapter is backed by a document and has no pages")
		}

		var count int64
		if err := tx.Model(&Page{}).Where("chapter_id = ?", chapterID).Count(&count).Error; err != nil {
			return err
		}
		if int64(pageNumber) > count+1 {
			return domain.Validation(opSavePage, "page_number_out_of_range",
				fmt.Sprintf("page number must be between 1 and %d", count+1))
		}

		pageID, err := s.newID(opSavePage)
		if err != nil {
			return err
		}
		now := s.now()
		page := Page{
			ID:         pageID,
			ChapterID:  chapterID,
			PageNumber: pageNumber,
			Content:    content,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chapter_id"}, {Name: "page_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
		}).Create(&page).Error; err != nil {
			return err
		}

		var stored Page
		if err := tx.Where("chapter_id = ? AND page_number = ?", chapterID, pageNumber).Take(&stored).Error; err != nil {
			return err
		}
		result.Page = stored
		result.Created = stored.ID == pageID
		result.Affected = domain.NewAffected(domain.Chapter(chapterID), domain.Page(stored.ID))
		return nil
	})
	if err != nil {
		return PageResult{}, err
	}
	return result, nil
}

// DeletePage removes a page and renumbers the survivors 1..M-1 in their previous order. The
// last page of a chapter cannot be deleted.
func (s *Service) DeletePage(ctx context.Context, actor domain.UserID, chapterID, pageID string) (DeletePageResult, error) {
	var result DeletePageResult
	err := s.transact(ctx, opDeletePage, func(tx *gorm.DB) error {
		if _, _, err := s.loadOwnedChapter(tx, opDeletePage, actor, chapterID); err != nil {
			return err
		}
		pages, err := s.listPages(tx, opDeletePage, chapterID)
		if err != nil {
			return err
		}

		survivors := make([]Page, 0, len(pages))
		found := false
		for _, page := range pages {
			if page.ID == pageID {
				found = true
				continue
			}
			survivors = append(survivors, page)
		}
		if !found {
			return domain.NotFound(opDeletePage, reasonPageMissing, "page not found")
		}
		if len(survivors) == 0 {
			return domain.Validation(opDeletePage, "last_page", "a chapter must keep at least one page")
		}

		if err := tx.Delete(&Page{}, "id = ? AND chapter_id = ?", pageID, chapterID).Error; err != nil {
			return err
		}
		if err := assignPositions(tx, pagePositions, chapterID, pageIDsByPosition(survivors)); err != nil {
			s.logError(opDeletePage, reasonWriteFailed, err, zap.String("chapter_id", chapterID))
			return domain.Storage(opDeletePage, reasonWriteFailed, err)
		}

		renumbered, err := s.listPages(tx, opDeletePage, chapterID)
		if err != nil {
			return err
		}
		result.Pages = renumbered
		result.Affected = domain.NewAffected(domain.Chapter(chapterID), domain.Page(pageID))
		for _, page := range renumbered {
			result.Affected.Add(domain.Page(page.ID))
		}
		return nil
	})
	if err != nil {
		return DeletePageResult{}, err
	}
	return result, nil
}

// ListPages returns the pages of a chapter ordered by position.
func (s *Service) ListPages(ctx context.Context, viewer domain.UserID, chapterID string) ([]Page, error) {
	detail, err := s.GetChapter(ctx, viewer, chapterID)
	if err != nil {
		return nil, err
	}
	return detail.Pages, nil
}
