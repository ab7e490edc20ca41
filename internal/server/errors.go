package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorKindRateLimited = "rate_limited"
	errorKindTooLarge    = "too_large"
)

type errorPayload struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// statusForKind maps an engine failure to an HTTP status. Unauthorized splits on whether
// the caller has a session at all.
func statusForKind(kind domain.Kind, actor domain.UserID) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		if actor.IsAnonymous() {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	actor := actorOf(c)
	kind := domain.KindOf(err)
	status := statusForKind(kind, actor)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("user_id", actor.String()),
			zap.String("code", domain.CodeOf(err)),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, errorPayload{
		Error:   string(kind),
		Code:    domain.CodeOf(err),
		Message: domain.MessageOf(err),
	})
}

func respondInvalidRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorPayload{
		Error:   string(domain.KindValidation),
		Code:    code,
		Message: message,
	})
}
