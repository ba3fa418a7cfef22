package server

import (
	"errors"
	"net/http"

	"github.com/Helli-o-s/Social-Media-Submission/internal/mutation"
	"github.com/Helli-o-s/Social-Media-Submission/internal/registry"
	"github.com/Helli-o-s/Social-Media-Submission/internal/submissions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type submissionsPageResponse struct {
	Items     []submissions.Submission `json:"items"`
	Page      int                      `json:"page"`
	PageCount int                      `json:"page_count"`
	Total     int                      `json:"total"`
	Query     string                   `json:"query"`
	Field     submissions.Field        `json:"field"`
}

type patchSubmissionRequest struct {
	Name              string `json:"name"`
	SocialMediaHandle string `json:"social_media_handle"`
}

func (h *httpHandler) handleListSubmissions(c *gin.Context) {
	listing, err := parseListingQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_field"})
		return
	}
	rows, err := h.submissions.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list submissions failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	page := registry.Select(rows, listing.field, listing.query, listing.page, registry.DefaultPageSize)
	items := page.Items
	if items == nil {
		items = []submissions.Submission{}
	}
	c.JSON(http.StatusOK, submissionsPageResponse{
		Items:     items,
		Page:      page.Page,
		PageCount: page.PageCount,
		Total:     page.Total,
		Query:     listing.query,
		Field:     listing.field,
	})
}

func (h *httpHandler) handlePatchSubmission(c *gin.Context) {
	var request patchSubmissionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	id := c.Param("id")
	patch, err := h.editor.Save(c.Request.Context(), mutation.Draft{
		ID:     id,
		Name:   request.Name,
		Handle: request.SocialMediaHandle,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"id":                  id,
			"name":                patch.Name,
			"social_media_handle": patch.SocialMediaHandle,
		})
	case isEditValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": mutation.SaveMessage(err)})
	case errors.Is(err, submissions.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
	}
}

func (h *httpHandler) handleDeleteSubmission(c *gin.Context) {
	err := h.editor.Delete(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, mutation.ErrDeleteInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "delete_in_progress"})
	case errors.Is(err, submissions.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
	}
}
