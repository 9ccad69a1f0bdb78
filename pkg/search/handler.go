package search

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/response"
)

type SearchHandler struct {
	service SearchService
}

func NewSearchHandler(service SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

func (h *SearchHandler) RegisterRoutes(router gin.IRouter, requireAuth gin.HandlerFunc) {
	router.POST("/search", requireAuth, h.search)
}

// @Summary      Search media
// @Description  Semantic search over the caller's library or the marketplace, with text search as fallback
// @Tags         search
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body Request true "Search query"
// @Success      200 {object} response.APIResponse{data=Response}
// @Failure      400 {object} response.APIResponse
// @Router       /search [post]
func (h *SearchHandler) search(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	res, err := h.service.Search(c.Request.Context(), auth.UserUUID(c), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrQueryTooLong), errors.Is(err, ErrInvalidScope):
			response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		default:
			response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		}
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "search completed", res)
}
