package collections

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/response"
)

type CollectionHandler struct {
	service CollectionService
}

func NewCollectionHandler(service CollectionService) *CollectionHandler {
	return &CollectionHandler{service: service}
}

func (h *CollectionHandler) RegisterRoutes(router gin.IRouter, requireAuth gin.HandlerFunc) {
	g := router.Group("/collections", requireAuth)
	g.POST("", h.createCollection)
	g.GET("", h.listMine)
	g.GET("/user/:uuid", h.listPublicByUser)
	g.GET("/:id", h.getCollection)
	g.GET("/:id/assets", h.listAssets)
	g.PUT("/:id", h.updateCollection)
	g.DELETE("/:id", h.deleteCollection)
	g.POST("/:id/assets/:asset_id", h.addAsset)
	g.DELETE("/:id/assets/:asset_id", h.removeAsset)
}

type collectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

// @Summary      Create a collection
// @Tags         collections
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body collectionRequest true "Collection details"
// @Success      201 {object} response.APIResponse{data=Collection}
// @Failure      400 {object} response.APIResponse
// @Router       /collections [post]
func (h *CollectionHandler) createCollection(c *gin.Context) {
	var req collectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	created, err := h.service.CreateCollection(c.Request.Context(), Collection{
		OwnerUUID:   auth.UserUUID(c),
		Name:        req.Name,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "collection created", created)
}

// @Summary      List own collections
// @Tags         collections
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=response.Page[Collection]}
// @Router       /collections [get]
func (h *CollectionHandler) listMine(c *gin.Context) {
	page, limit := response.Pagination(c)
	items, total, err := h.service.ListMine(c.Request.Context(), auth.UserUUID(c), page, limit)
	if err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "collections listed", response.Page[Collection]{Items: items, Total: total, Page: page, Limit: limit})
}

// @Summary      List a user's public collections
// @Tags         collections
// @Produce      json
// @Security     BearerAuth
// @Param        uuid  path  string true  "Owner UUID"
// @Param        page  query int    false "Page number" default(1)
// @Param        limit query int    false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=response.Page[Collection]}
// @Router       /collections/user/{uuid} [get]
func (h *CollectionHandler) listPublicByUser(c *gin.Context) {
	page, limit := response.Pagination(c)
	items, total, err := h.service.ListPublicByUser(c.Request.Context(), c.Param("uuid"), page, limit)
	if err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "collections listed", response.Page[Collection]{Items: items, Total: total, Page: page, Limit: limit})
}

// @Summary      Get a collection
// @Tags         collections
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Collection ID"
// @Success      200 {object} response.APIResponse{data=Collection}
// @Failure      404 {object} response.APIResponse
// @Router       /collections/{id} [get]
func (h *CollectionHandler) getCollection(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	col, err := h.service.GetCollection(c.Request.Context(), auth.UserUUID(c), id)
	if err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "collection fetched", col)
}

// @Summary      List the media in a collection
// @Tags         collections
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Collection ID"
// @Success      200 {object} response.APIResponse{data=[]media.Asset}
// @Failure      404 {object} response.APIResponse
// @Router       /collections/{id}/assets [get]
func (h *CollectionHandler) listAssets(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	items, err := h.service.ListAssets(c.Request.Context(), auth.UserUUID(c), id)
	if err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "collection media listed", items)
}

// @Summary      Update a collection
// @Tags         collections
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path int               true "Collection ID"
// @Param        request body collectionRequest true "Collection details"
// @Success      200 {object} response.APIResponse{data=Collection}
// @Failure      403 {object} response.APIResponse
// @Router       /collections/{id} [put]
func (h *CollectionHandler) updateCollection(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	var req collectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	updated, err := h.service.UpdateCollection(c.Request.Context(), auth.UserUUID(c), Collection{
		ID: id, Name: req.Name, Description: req.Description, IsPublic: req.IsPublic,
	})
	if err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "collection updated", updated)
}

// @Summary      Delete a collection
// @Tags         collections
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Collection ID"
// @Success      200 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /collections/{id} [delete]
func (h *CollectionHandler) deleteCollection(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteCollection(c.Request.Context(), auth.UserUUID(c), id); err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "collection deleted", nil)
}

// @Summary      Add media to a collection
// @Tags         collections
// @Produce      json
// @Security     BearerAuth
// @Param        id       path int true "Collection ID"
// @Param        asset_id path int true "Media ID"
// @Success      200 {object} response.APIResponse{data=Collection}
// @Failure      403 {object} response.APIResponse
// @Router       /collections/{id}/assets/{asset_id} [post]
func (h *CollectionHandler) addAsset(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	assetID, ok := response.ParseID(c, "asset_id")
	if !ok {
		return
	}
	col, err := h.service.AddAsset(c.Request.Context(), auth.UserUUID(c), id, assetID)
	if err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "media added to collection", col)
}

// @Summary      Remove media from a collection
// @Tags         collections
// @Produce      json
// @Security     BearerAuth
// @Param        id       path int true "Collection ID"
// @Param        asset_id path int true "Media ID"
// @Success      200 {object} response.APIResponse{data=Collection}
// @Failure      404 {object} response.APIResponse
// @Router       /collections/{id}/assets/{asset_id} [delete]
func (h *CollectionHandler) removeAsset(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	assetID, ok := response.ParseID(c, "asset_id")
	if !ok {
		return
	}
	col, err := h.service.RemoveAsset(c.Request.Context(), auth.UserUUID(c), id, assetID)
	if err != nil {
		sendCollectionError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "media removed from collection", col)
}

func sendCollectionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCollectionNotFound), errors.Is(err, ErrAssetNotInCollection), errors.Is(err, media.ErrMediaNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, ErrForbidden), errors.Is(err, media.ErrForbidden):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrInvalidName):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}
