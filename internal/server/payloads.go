package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/readinglist"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/social"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/users"
)

type catalogPayload struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	IsPublic      bool      `json:"is_public"`
	CoverImageURL string    `json:"cover_image_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type catalogSummaryPayload struct {
	catalogPayload
	ChapterCount int64 `json:"chapter_count"`
	LikeCount    int64 `json:"like_count"`
}

type catalogDetailPayload struct {
	catalogPayload
	Chapters     []chapterPayload `json:"chapters"`
	LikeCount    int64            `json:"like_count"`
	LikedByUser  bool             `json:"liked_by_user"`
	CommentCount int64            `json:"comment_count"`
}

type chapterPayload struct {
	ID            string    `json:"id"`
	CatalogID     string    `json:"catalog_id"`
	Title         string    `json:"title"`
	ChapterNumber int       `json:"chapter_number"`
	DocumentURL   string    `json:"document_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type pagePayload struct {
	ID         string    `json:"id"`
	ChapterID  string    `json:"chapter_id"`
	PageNumber int       `json:"page_number"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type commentPayload struct {
	ID             string           `json:"id"`
	CatalogID      string           `json:"catalog_id"`
	AuthorID       string           `json:"author_id"`
	AuthorName     string           `json:"author_name,omitempty"`
	Content        string           `json:"content"`
	ParentID       string           `json:"parent_id,omitempty"`
	IsPinned       bool             `json:"is_pinned"`
	CreatedAt      time.Time        `json:"created_at"`
	Likes          int64            `json:"likes"`
	Dislikes       int64            `json:"dislikes"`
	ViewerReaction string           `json:"viewer_reaction"`
	Replies        []commentPayload `json:"replies,omitempty"`
}

type groupPayload struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type entryPayload struct {
	ID              string    `json:"id"`
	CatalogID       string    `json:"catalog_id"`
	CatalogTitle    string    `json:"catalog_title"`
	CatalogAuthorID string    `json:"catalog_author_id"`
	CoverImageURL   string    `json:"cover_image_url,omitempty"`
	GroupID         string    `json:"group_id,omitempty"`
	GroupName       string    `json:"group_name,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func newCatalogPayload(catalog content.Catalog) catalogPayload {
	return catalogPayload{
		ID:            catalog.ID,
		AuthorID:      catalog.AuthorID,
		Title:         catalog.Title,
		Description:   catalog.Description,
		Category:      catalog.Category,
		IsPublic:      catalog.IsPublic,
		CoverImageURL: catalog.CoverImageURL,
		CreatedAt:     catalog.CreatedAt,
		UpdatedAt:     catalog.UpdatedAt,
	}
}

func newCatalogSummaries(summaries []content.CatalogSummary) []catalogSummaryPayload {
	payloads := make([]catalogSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		payloads = append(payloads, catalogSummaryPayload{
			catalogPayload: newCatalogPayload(summary.Catalog),
			ChapterCount:   summary.ChapterCount,
			LikeCount:      summary.LikeCount,
		})
	}
	return payloads
}

func newChapterPayload(chapter content.Chapter) chapterPayload {
	payload := chapterPayload{
		ID:            chapter.ID,
		CatalogID:     chapter.CatalogID,
		Title:         chapter.Title,
		ChapterNumber: chapter.ChapterNumber,
		CreatedAt:     chapter.CreatedAt,
		UpdatedAt:     chapter.UpdatedAt,
	}
	if chapter.DocumentURL != nil {
		payload.DocumentURL = *chapter.DocumentURL
	}
	return payload
}

func newChapterPayloads(chapters []content.Chapter) []chapterPayload {
	payloads := make([]chapterPayload, 0, len(chapters))
	for _, chapter := range chapters {
		payloads = append(payloads, newChapterPayload(chapter))
	}
	return payloads
}

func newPagePayloads(pages []content.Page) []pagePayload {
	payloads := make([]pagePayload, 0, len(pages))
	for _, page := range pages {
		payloads = append(payloads, pagePayload{
			ID:         page.ID,
			ChapterID:  page.ChapterID,
			PageNumber: page.PageNumber,
			Content:    page.Content,
			UpdatedAt:  page.UpdatedAt,
		})
	}
	return payloads
}

func newCommentPayload(comment social.Comment, profiles map[string]users.Profile) commentPayload {
	payload := commentPayload{
		ID:             comment.ID,
		CatalogID:      comment.CatalogID,
		AuthorID:       comment.AuthorID,
		AuthorName:     profiles[comment.AuthorID].DisplayName,
		Content:        comment.Content,
		IsPinned:       comment.IsPinned,
		CreatedAt:      comment.CreatedAt,
		ViewerReaction: string(social.ReactionNone),
	}
	if comment.ParentID != nil {
		payload.ParentID = *comment.ParentID
	}
	return payload
}

func newThreadPayloads(threads []social.Thread, profiles map[string]users.Profile) []commentPayload {
	payloads := make([]commentPayload, 0, len(threads))
	for _, thread := range threads {
		payload := newCommentPayload(thread.Comment, profiles)
		payload.Likes = thread.Likes
		payload.Dislikes = thread.Dislikes
		payload.ViewerReaction = string(thread.Viewer)
		if len(thread.Replies) > 0 {
			payload.Replies = newThreadPayloads(thread.Replies, profiles)
		}
		payloads = append(payloads, payload)
	}
	return payloads
}

// commentAuthors collects every author id in the threads, replies included.
func commentAuthors(threads []social.Thread) []string {
	seen := make(map[string]struct{})
	var authors []string
	var walk func([]social.Thread)
	walk = func(level []social.Thread) {
		for _, thread := range level {
			if _, ok := seen[thread.Comment.AuthorID]; !ok {
				seen[thread.Comment.AuthorID] = struct{}{}
				authors = append(authors, thread.Comment.AuthorID)
			}
			walk(thread.Replies)
		}
	}
	walk(threads)
	return authors
}

func newGroupPayload(group readinglist.Group) groupPayload {
	return groupPayload{ID: group.ID, Name: group.Name, CreatedAt: group.CreatedAt}
}

func newEntryPayload(entry readinglist.Entry) entryPayload {
	payload := entryPayload{
		ID:        entry.ID,
		CatalogID: entry.CatalogID,
		CreatedAt: entry.CreatedAt,
	}
	if entry.GroupID != nil {
		payload.GroupID = *entry.GroupID
	}
	return payload
}

func newEntryViewPayloads(views []readinglist.EntryView) []entryPayload {
	payloads := make([]entryPayload, 0, len(views))
	for _, view := range views {
		payload := newEntryPayload(view.Entry)
		payload.CatalogTitle = view.CatalogTitle
		payload.CatalogAuthorID = view.CatalogAuthorID
		payload.CoverImageURL = view.CoverImageURL
		payload.GroupName = view.GroupName
		payloads = append(payloads, payload)
	}
	return payloads
}
