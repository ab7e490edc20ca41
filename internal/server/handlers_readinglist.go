package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type toggleReadingListRequest struct {
	CatalogID string `json:"catalog_id"`
	GroupID   string `json:"group_id"`
}

type groupRequest struct {
	Name string `json:"name"`
}

func (h *httpHandler) handleListEntries(c *gin.Context) {
	entries, err := h.readingList.ListEntries(c.Request.Context(), actorOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": newEntryViewPayloads(entries)})
}

func (h *httpHandler) handleToggleReadingList(c *gin.Context) {
	var request toggleReadingListRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.CatalogID == "" {
		respondInvalidRequest(c, "http.toggle_reading_list.invalid_body", "catalog_id is required")
		return
	}
	result, err := h.readingList.Toggle(c.Request.Context(), actorOf(c), request.CatalogID, request.GroupID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	response := gin.H{
		"outcome":  result.Outcome,
		"affected": result.Affected.Strings(),
	}
	if result.Entry != nil {
		response["entry"] = newEntryPayload(*result.Entry)
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleContains(c *gin.Context) {
	contained, err := h.readingList.Contains(c.Request.Context(), actorOf(c), c.Param("catalogID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contains": contained})
}

func (h *httpHandler) handleListGroups(c *gin.Context) {
	groups, err := h.readingList.ListGroups(c.Request.Context(), actorOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payloads := make([]groupPayload, 0, len(groups))
	for _, group := range groups {
		payloads = append(payloads, newGroupPayload(group))
	}
	c.JSON(http.StatusOK, gin.H{"groups": payloads})
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	var request groupRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.create_group.invalid_body", "request body must carry a name")
		return
	}
	result, err := h.readingList.CreateGroup(c.Request.Context(), actorOf(c), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusCreated, gin.H{
		"group":    newGroupPayload(result.Group),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleUpdateGroup(c *gin.Context) {
	var request groupRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "http.update_group.invalid_body", "request body must carry a name")
		return
	}
	result, err := h.readingList.UpdateGroup(c.Request.Context(), actorOf(c), c.Param("groupID"), request.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"group":    newGroupPayload(result.Group),
		"affected": result.Affected.Strings(),
	})
}

func (h *httpHandler) handleDeleteGroup(c *gin.Context) {
	result, err := h.readingList.DeleteGroup(c.Request.Context(), actorOf(c), c.Param("groupID"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.announce(c, result.Affected)
	c.JSON(http.StatusOK, gin.H{
		"ungrouped_entries": result.UngroupedEntries,
		"affected":          result.Affected.Strings(),
	})
}
