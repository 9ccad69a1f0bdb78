package nft

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"neuralsalvage/pkg/arweave"
	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/beta"
	"neuralsalvage/pkg/locks"
	"neuralsalvage/pkg/media"
	"neuralsalvage/pkg/payments"
	"neuralsalvage/pkg/polygon"
	"neuralsalvage/pkg/pricing"
	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/users"
)

type NFTHandler struct {
	service NFTService
}

func NewNFTHandler(service NFTService) *NFTHandler {
	return &NFTHandler{service: service}
}

func (h *NFTHandler) RegisterRoutes(router gin.IRouter, requireAuth gin.HandlerFunc) {
	router.GET("/nft/:id", h.get)

	g := router.Group("/nft", requireAuth)
	g.GET("", h.listOwn)
	g.GET("/ownership-message", h.ownershipMessage)
	g.POST("/quote", h.quote)
	g.POST("/checkout", h.checkout)
	g.POST("/mint", h.mint)
	g.POST("/:id/retry", h.retry)
}

type assetRequest struct {
	AssetID int64 `json:"asset_id" binding:"required"`
}

// @Summary      Get the ownership message to sign
// @Description  Returns the text the wallet must personal_sign before minting
// @Tags         nft
// @Produce      json
// @Security     BearerAuth
// @Param        asset_id query int    true "Media ID"
// @Param        wallet   query string true "Wallet address"
// @Success      200 {object} response.APIResponse{data=OwnershipMessage}
// @Failure      400 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /nft/ownership-message [get]
func (h *NFTHandler) ownershipMessage(c *gin.Context) {
	assetID, err := strconv.ParseInt(c.Query("asset_id"), 10, 64)
	if err != nil || assetID <= 0 {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid asset_id", nil)
		return
	}
	msg, err := h.service.OwnershipMessage(c.Request.Context(), auth.UserUUID(c), assetID, c.Query("wallet"))
	if err != nil {
		sendNFTError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "ownership message created", msg)
}

// @Summary      Quote a mint
// @Description  Tier price with subscriber discount, plus the Arweave storage estimate when available
// @Tags         nft
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body assetRequest true "Asset"
// @Success      200 {object} response.APIResponse{data=Quote}
// @Failure      400 {object} response.APIResponse "File too large"
// @Router       /nft/quote [post]
func (h *NFTHandler) quote(c *gin.Context) {
	var req assetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	q, err := h.service.Quote(c.Request.Context(), auth.UserUUID(c), req.AssetID)
	if err != nil {
		sendNFTError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "quote created", q)
}

// @Summary      Pay for a mint
// @Tags         nft
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body assetRequest true "Asset"
// @Success      201 {object} response.APIResponse{data=Checkout}
// @Failure      403 {object} response.APIResponse "Not in beta"
// @Failure      409 {object} response.APIResponse "Already minted"
// @Router       /nft/checkout [post]
func (h *NFTHandler) checkout(c *gin.Context) {
	var req assetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	out, err := h.service.Checkout(c.Request.Context(), auth.UserUUID(c), req.AssetID)
	if err != nil {
		sendNFTError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "checkout session created", out)
}

// @Summary      Mint an NFT
// @Description  Uploads the asset, metadata and manifest to Arweave, then optionally bridges to Polygon
// @Tags         nft
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body MintRequest true "Signed ownership claim"
// @Success      201 {object} response.APIResponse{data=NFT}
// @Failure      400 {object} response.APIResponse "Bad signature or message"
// @Failure      402 {object} response.APIResponse "Not paid"
// @Failure      409 {object} response.APIResponse "Already minted or in progress"
// @Failure      502 {object} response.APIResponse "Upload failed"
// @Router       /nft/mint [post]
func (h *NFTHandler) mint(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	// A dropped client must not abort a paid mint halfway.
	n, err := h.service.Mint(context.WithoutCancel(c.Request.Context()), auth.UserUUID(c), req)
	if err != nil {
		sendNFTError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "nft minted", n)
}

// @Summary      Retry a failed mint
// @Description  Resumes from the first step that has not landed
// @Tags         nft
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "NFT ID"
// @Success      200 {object} response.APIResponse{data=NFT}
// @Failure      409 {object} response.APIResponse "Nothing to retry"
// @Router       /nft/{id}/retry [post]
func (h *NFTHandler) retry(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	n, err := h.service.Retry(context.WithoutCancel(c.Request.Context()), auth.UserUUID(c), id)
	if err != nil {
		sendNFTError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "mint resumed", n)
}

// @Summary      Get an NFT
// @Tags         nft
// @Produce      json
// @Param        id path int true "NFT ID"
// @Success      200 {object} response.APIResponse{data=NFT}
// @Failure      404 {object} response.APIResponse
// @Router       /nft/{id} [get]
func (h *NFTHandler) get(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	n, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		sendNFTError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "nft fetched", n)
}

// @Summary      List own NFTs
// @Tags         nft
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=response.Page[NFT]}
// @Router       /nft [get]
func (h *NFTHandler) listOwn(c *gin.Context) {
	page, limit := response.Pagination(c)
	items, total, err := h.service.ListOwn(c.Request.Context(), auth.UserUUID(c), page, limit)
	if err != nil {
		sendNFTError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "nfts listed", response.Page[NFT]{Items: items, Total: total, Page: page, Limit: limit})
}

func sendNFTError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNFTNotFound), errors.Is(err, media.ErrMediaNotFound), errors.Is(err, users.ErrUserNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, media.ErrForbidden), errors.Is(err, beta.ErrNoAccess):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrMessageMismatch), errors.Is(err, ErrMessageExpired),
		errors.Is(err, ErrInvalidRoyalty), errors.Is(err, polygon.ErrInvalidAddress), errors.Is(err, polygon.ErrInvalidSignature),
		errors.Is(err, pricing.ErrInvalidSize), errors.Is(err, pricing.ErrFileTooLarge):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	case errors.Is(err, ErrPaymentRequired):
		response.SendAPIResponse(c, http.StatusPaymentRequired, false, err.Error(), nil)
	case errors.Is(err, ErrAlreadyMinted), errors.Is(err, ErrNotRetryable), errors.Is(err, locks.ErrLocked):
		response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
	case errors.Is(err, ErrMintFailed):
		response.SendAPIResponse(c, http.StatusBadGateway, false, err.Error(), nil)
	case errors.Is(err, arweave.ErrNotConfigured), errors.Is(err, payments.ErrNotConfigured):
		response.SendAPIResponse(c, http.StatusServiceUnavailable, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}
