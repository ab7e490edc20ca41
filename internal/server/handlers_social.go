package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/social"
	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleListComments(c *gin.Context) {
	threads, err := h.social.ListComments(c.Request.Context(), actorOf(c), c.Param("catalogID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	profiles := h.profiles(c, commentAuthors(threads))
	c.JSON(http.StatusOK, gin.H{"comments": newThreadPayloads(threads, profiles)})
}

func (h *httpHandler) handleCreateComment(c *gin.Context) {
	actor := actorOf(c)
	if !actor.IsAnonymous() && !h.commentLimiter.Allow(actor.String()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorPayload{
			Error:   errorKindRateLimited,
			Code:    "social.create_comment.rate_limited",
			Message: "too many comments, try again shortly",
		})
		return
	}
	var request social.CommentInput
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.create_comment.invalid_body", "request body must carry content")
		return
	}
	result, err := h.social.CreateComment(c.Request.Context(), actor, c.Param("catalogID"), request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	profiles := h.profiles(c, []string{result.Comment.AuthorID})
	c.JSON(http.StatusCreated, gin.H{
		"comment":  newCommentPayload(result.Comment, profiles),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleDeleteComment(c *gin.Context) {
	result, err := h.social.DeleteComment(c.Request.Context(), actorOf(c), c.Param("commentID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"deleted_ids": result.DeletedIDs,
		"affected":    result.Affected.Strings(),
	})
}

func (h *httpHandler) handleTogglePin(c *gin.Context) {
	result, err := h.social.TogglePinComment(c.Request.Context(), actorOf(c), c.Param("commentID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"comment":  newCommentPayload(result.Comment, nil),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleToggleLike(c *gin.Context) {
	result, err := h.social.ToggleLike(c.Request.Context(), actorOf(c), c.Param("commentID"))
	h.respondReaction(c, result, err)
}

func (h *httpHandler) handleToggleDislike(c *gin.Context) {
	result, err := h.social.ToggleDislike(c.Request.Context(), actorOf(c), c.Param("commentID"))
	h.respondReaction(c, result, err)
}

func (h *httpHandler) respondReaction(c *gin.Context, result social.ReactionResult, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"state":    result.State,
		"likes":    result.Likes,
		"dislikes": result.Dislikes,
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleReactionOf(c *gin.Context) {
	state, err := h.social.ReactionOf(c.Request.Context(), actorOf(c), c.Param("commentID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// profiles looks up display names; a lookup failure degrades to ids only.
func (h *httpHandler) profiles(c *gin.Context, userIDs []string) map[string]users.Profile {
	profiles, err := h.identities.Profiles(c.Request.Context(), userIDs)
	if err != nil {
		h.logger.Warn("profile lookup failed",
			zap.Int("user_count", len(userIDs)),
			zap.String("viewer_id", actorOf(c).String()),
			zap.Error(err),
		)
		return map[string]users.Profile{}
	}
	return profiles
}

