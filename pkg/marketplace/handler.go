package marketplace

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/payments"
	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/users"
)

type MarketplaceHandler struct {
	service MarketplaceService
}

func NewMarketplaceHandler(service MarketplaceService) *MarketplaceHandler {
	return &MarketplaceHandler{service: service}
}

func (h *MarketplaceHandler) RegisterRoutes(router gin.IRouter, requireAuth gin.HandlerFunc) {
	router.GET("/marketplace", h.browse)

	g := router.Group("/marketplace", requireAuth)
	g.GET("/sales", h.listSales)
	g.POST("/onboarding", h.onboarding)
	g.PATCH("/:id/list", h.listAsset)
	g.PATCH("/:id/unlist", h.unlistAsset)
	g.POST("/:id/purchase", h.purchase)
}

type listRequest struct {
	PriceCents int64 `json:"price_cents" binding:"required"`
}

// @Summary      Browse marketplace listings
// @Description  Lists assets that are for sale and not yet sold
// @Tags         marketplace
// @Produce      json
// @Param        kind  query string false "Media kind filter"
// @Param        page  query int    false "Page number" default(1)
// @Param        limit query int    false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=response.Page[media.Asset]}
// @Failure      400 {object} response.APIResponse
// @Router       /marketplace [get]
func (h *MarketplaceHandler) browse(c *gin.Context) {
	page, limit := response.Pagination(c)

	var kind *media.Kind
	if raw := c.Query("kind"); raw != "" {
		k := media.Kind(raw)
		if !k.Valid() {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid kind", nil)
			return
		}
		kind = &k
	}

	items, total, err := h.service.BrowseListings(c.Request.Context(), kind, page, limit)
	if err != nil {
		sendMarketplaceError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "listings fetched", response.Page[media.Asset]{Items: items, Total: total, Page: page, Limit: limit})
}

// @Summary      List an asset for sale
// @Tags         marketplace
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path int         true "Media ID"
// @Param        request body listRequest true "Price in cents"
// @Success      200 {object} response.APIResponse{data=media.Asset}
// @Failure      400 {object} response.APIResponse "Invalid price"
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse "Already sold"
// @Router       /marketplace/{id}/list [patch]
func (h *MarketplaceHandler) listAsset(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	a, err := h.service.ListAsset(c.Request.Context(), id, auth.UserUUID(c), req.PriceCents)
	if err != nil {
		sendMarketplaceError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "asset listed", a)
}

// @Summary      Unlist an asset
// @Tags         marketplace
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Media ID"
// @Success      200 {object} response.APIResponse{data=media.Asset}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /marketplace/{id}/unlist [patch]
func (h *MarketplaceHandler) unlistAsset(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	a, err := h.service.UnlistAsset(c.Request.Context(), id, auth.UserUUID(c))
	if err != nil {
		sendMarketplaceError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "asset unlisted", a)
}

// @Summary      Buy a listed asset
// @Description  Starts a Stripe Checkout session. Ownership moves once Stripe confirms payment.
// @Tags         marketplace
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Media ID"
// @Success      201 {object} response.APIResponse{data=Checkout}
// @Failure      400 {object} response.APIResponse "Own asset"
// @Failure      409 {object} response.APIResponse "Not for sale"
// @Router       /marketplace/{id}/purchase [post]
func (h *MarketplaceHandler) purchase(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	checkout, err := h.service.Purchase(c.Request.Context(), id, auth.UserUUID(c))
	if err != nil {
		sendMarketplaceError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "checkout session created", checkout)
}

// @Summary      Start seller payout onboarding
// @Description  Creates a Stripe Connect Express account when needed and returns an onboarding link
// @Tags         marketplace
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse{data=Onboarding}
// @Router       /marketplace/onboarding [post]
func (h *MarketplaceHandler) onboarding(c *gin.Context) {
	o, err := h.service.StartOnboarding(c.Request.Context(), auth.UserUUID(c))
	if err != nil {
		sendMarketplaceError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "onboarding link created", o)
}

// @Summary      List own sales and purchases
// @Tags         marketplace
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=response.Page[Sale]}
// @Router       /marketplace/sales [get]
func (h *MarketplaceHandler) listSales(c *gin.Context) {
	page, limit := response.Pagination(c)
	items, total, err := h.service.ListSales(c.Request.Context(), auth.UserUUID(c), page, limit)
	if err != nil {
		sendMarketplaceError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "sales listed", response.Page[Sale]{Items: items, Total: total, Page: page, Limit: limit})
}

func sendMarketplaceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, media.ErrMediaNotFound), errors.Is(err, users.ErrUserNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, media.ErrForbidden):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrOwnAsset):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	case errors.Is(err, media.ErrSold), errors.Is(err, ErrAlreadySold), errors.Is(err, ErrNotListed):
		response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
	case errors.Is(err, payments.ErrNotConfigured):
		response.SendAPIResponse(c, http.StatusServiceUnavailable, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}
