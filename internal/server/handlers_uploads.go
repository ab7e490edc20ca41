package server

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/blob"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	uploadFormField = "file"
	// multipartOverhead covers boundaries and part headers around the file bytes.
	multipartOverhead = 64 << 10
)

// handleUpload stores a file (cover image or document) and returns its URL for use in a
// later catalog or chapter update.
func (h *httpHandler) handleUpload(c *gin.Context) {
	if actorOf(c).IsAnonymous() {
		h.respondError(c, domain.Unauthorized("http.upload", "anonymous", "sign in to upload files"))
		return
	}
	url, ok := h.storeUpload(c)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

// handleUploadDocument stores a document and attaches it to the chapter in one step.
// Ownership is checked before the bytes are stored.
func (h *httpHandler) handleUploadDocument(c *gin.Context) {
	if _, err := h.content.GetOwnedChapter(c.Request.Context(), actorOf(c), c.Param("chapterID")); err != nil {
		h.respondError(c, err)
		return
	}
	url, ok := h.storeUpload(c)
	if !ok {
		return
	}
	h.attachDocument(c, url)
}

func (h *httpHandler) storeUpload(c *gin.Context) (string, bool) {
	if h.blobs == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorPayload{Error: string(domain.KindNotFound), Code: "http.upload.disabled"})
		return "", false
	}
	if h.uploadMaxBytes > 0 {
		limit := h.uploadMaxBytes + multipartOverhead
		if c.Request.ContentLength > limit {
			h.respondTooLarge(c)
			return "", false
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	header, err := c.FormFile(uploadFormField)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.respondTooLarge(c)
		return "", false
	}
	if err != nil {
		respondInvalidRequest(c, "http.upload.missing_file", "multipart field \"file\" is required")
		return "", false
	}
	if h.uploadMaxBytes > 0 && header.Size > h.uploadMaxBytes {
		h.respondTooLarge(c)
		return "", false
	}
	url, err := h.putFile(c, header)
	switch {
	case err == nil:
		return url, true
	case errors.Is(err, blob.ErrEmptyUpload):
		respondInvalidRequest(c, "http.upload.empty", "uploaded file is empty")
	case errors.Is(err, blob.ErrUploadTooLarge):
		h.respondTooLarge(c)
	default:
		h.logger.Error("upload failed",
			zap.String("filename", header.Filename),
			zap.Int64("size", header.Size),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorPayload{
			Error:   string(domain.KindStorage),
			Code:    "http.upload.store_failed",
			Message: "storage failure",
		})
	}
	return "", false
}

func (h *httpHandler) putFile(c *gin.Context, header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", err
	}
	defer file.Close()
	return h.blobs.Put(c.Request.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
}

func (h *httpHandler) respondTooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorPayload{
		Error:   errorKindTooLarge,
		Code:    "http.upload.too_large",
		Message: "uploaded file exceeds the size limit",
	})
}
