package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/content"
	"github.com/gin-gonic/gin"
)

type chapterOrderRequest struct {
	ChapterIDs []string `json:"chapter_ids"`
}

type chapterTitleRequest struct {
	Title string `json:"title"`
}

type documentRequest struct {
	DocumentURL string `json:"document_url"`
}

type pageContentRequest struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleListPublicCatalogs(c *gin.Context) {
	summaries, err := h.content.ListPublicCatalogs(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"catalogs": newCatalogSummaries(summaries)})
}

func (h *httpHandler) handleListMyCatalogs(c *gin.Context) {
	summaries, err := h.content.ListCatalogsByAuthor(c.Request.Context(), actorOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"catalogs": newCatalogSummaries(summaries)})
}

func (h *httpHandler) handleCreateCatalog(c *gin.Context) {
	var request content.CatalogInput
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.create_catalog.invalid_body", "request body must be a catalog object")
		return
	}
	result, err := h.content.CreateCatalog(c.Request.Context(), actorOf(c), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusCreated, gin.H{
		"catalog":  newCatalogPayload(result.Catalog),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleGetCatalog(c *gin.Context) {
	detail, err := h.content.GetCatalog(c.Request.Context(), actorOf(c), c.Param("catalogID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, catalogDetailPayload{
		catalogPayload: newCatalogPayload(detail.Catalog),
		Chapters:       newChapterPayloads(detail.Chapters),
		LikeCount:      detail.LikeCount,
		LikedByUser:    detail.LikedByUser,
		CommentCount:   detail.CommentCount,
	})
}

func (h *httpHandler) handleUpdateCatalog(c *gin.Context) {
	var request content.CatalogInput
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.update_catalog.invalid_body", "request body must be a catalog object")
		return
	}
	result, err := h.content.UpdateCatalog(c.Request.Context(), actorOf(c), c.Param("catalogID"), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"catalog":  newCatalogPayload(result.Catalog),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleDeleteCatalog(c *gin.Context) {
	result, err := h.content.DeleteCatalog(c.Request.Context(), actorOf(c), c.Param("catalogID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{"affected": result.Affected.Strings()})
}

func (h *httpHandler) handleToggleCatalogLike(c *gin.Context) {
	result, err := h.content.ToggleCatalogLike(c.Request.Context(), actorOf(c), c.Param("catalogID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"liked":      result.Liked,
		"like_count": result.LikeCount,
		"affected":   result.Affected.Strings(),
	})
}

func (h *httpHandler) handleCreateChapter(c *gin.Context) {
	var request content.ChapterInput
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.create_chapter.invalid_body", "request body must be a chapter object")
		return
	}
	result, err := h.content.CreateChapter(c.Request.Context(), actorOf(c), c.Param("catalogID"), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusCreated, gin.H{
		"chapter":  newChapterPayload(result.Chapter),
		"pages":    newPagePayloads(result.Pages),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleReorderChapters(c *gin.Context) {
	var request chapterOrderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.reorder_chapters.invalid_body", "chapter_ids must be a list of chapter ids")
		return
	}
	result, err := h.content.ReorderChapters(c.Request.Context(), actorOf(c), c.Param("catalogID"), request.ChapterIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"chapters": newChapterPayloads(result.Chapters),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleGetChapter(c *gin.Context) {
	detail, err := h.content.GetChapter(c.Request.Context(), actorOf(c), c.Param("chapterID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"catalog": newCatalogPayload(detail.Catalog),
		"chapter": newChapterPayload(detail.Chapter),
		"pages":   newPagePayloads(detail.Pages),
	})
}

func (h *httpHandler) handleUpdateChapterTitle(c *gin.Context) {
	var request chapterTitleRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.update_chapter.invalid_body", "request body must carry a title")
		return
	}
	result, err := h.content.UpdateChapterTitle(c.Request.Context(), actorOf(c), c.Param("chapterID"), request.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondChapter(c, result)
}

func (h *httpHandler) handleAttachDocument(c *gin.Context) {
	var request documentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.attach_document.invalid_body", "request body must carry a document_url")
		return
	}
	h.attachDocument(c, request.DocumentURL)
}

func (h *httpHandler) attachDocument(c *gin.Context, documentURL string) {
	result, err := h.content.AttachChapterDocument(c.Request.Context(), actorOf(c), c.Param("chapterID"), documentURL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondChapter(c, result)
}

func (h *httpHandler) respondChapter(c *gin.Context, result content.ChapterResult) {
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"chapter":  newChapterPayload(result.Chapter),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleDeleteChapter(c *gin.Context) {
	result, err := h.content.DeleteChapter(c.Request.Context(), actorOf(c), c.Param("chapterID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{"affected": result.Affected.Strings()})
}

func (h *httpHandler) handleListPages(c *gin.Context) {
	pages, err := h.content.ListPages(c.Request.Context(), actorOf(c), c.Param("chapterID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pages": newPagePayloads(pages)})
}

func (h *httpHandler) handleSavePage(c *gin.Context) {
	pageNumber, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		respondInvalidRequest(c, "http.save_page.invalid_page_number", "page number must be an integer")
		return
	}
	var request pageContentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.save_page.invalid_body", "request body must carry content")
		return
	}
	result, err := h.content.SavePage(c.Request.Context(), actorOf(c), c.Param("chapterID"), pageNumber, request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"page":     newPagePayloads([]content.Page{result.Page})[0],
		"created":  result.Created,
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleDeletePage(c *gin.Context) {
	result, err := h.content.DeletePage(c.Request.Context(), actorOf(c), c.Param("chapterID"), c.Param("page"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"pages":    newPagePayloads(result.Pages),
		"affected": result.Affected.Strings(),
	})
}
