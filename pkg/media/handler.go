package media

import (
	"errors"
	"mime"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/moderation"
	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/storage"
	"neuralsalvage/pkg/users"
)

type MediaHandler struct {
	service  MediaService
	maxBytes int64
}

func NewMediaHandler(service MediaService, maxBytes int64) *MediaHandler {
	return &MediaHandler{service: service, maxBytes: maxBytes}
}

func (h *MediaHandler) RegisterRoutes(router gin.IRouter, requireAuth gin.HandlerFunc) {
	g := router.Group("/media", requireAuth)
	g.POST("", h.upload)
	g.GET("", h.listLibrary)
	g.GET("/:id", h.getMedia)
	g.GET("/:id/file", h.downloadFile)
	g.PUT("/:id", h.updateMedia)
	g.DELETE("/:id", h.deleteMedia)
	g.POST("/:id/analyze", h.analyze)
}

type updateMediaRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// @Summary      Upload media
// @Description  Moderates, stores and analyses a new media file
// @Tags         media
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file        formData file   true  "Media file"
// @Param        title       formData string false "Title"
// @Param        description formData string false "Description"
// @Success      201 {object} response.APIResponse{data=Asset}
// @Failure      400 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse "Rejected by moderation"
// @Failure      429 {object} response.APIResponse "Upload quota reached"
// @Router       /media [post]
func (h *MediaHandler) upload(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "file is required", nil)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "cannot read upload", nil)
		return
	}
	defer f.Close()

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(fh.Filename)); byExt != "" {
			mimeType = byExt
		} else if mimeType == "" {
			mimeType = "application/octet-stream"
		}
	}

	asset, err := h.service.Upload(c.Request.Context(), UploadInput{
		OwnerUUID:   auth.UserUUID(c),
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		FileName:    path.Base(fh.Filename),
		MimeType:    mimeType,
		SizeBytes:   fh.Size,
		Body:        f,
	})
	if err != nil {
		sendMediaError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "media uploaded", asset)
}

// @Summary      List own media library
// @Tags         media
// @Produce      json
// @Security     BearerAuth
// @Param        kind  query string false "Media kind filter"
// @Param        page  query int    false "Page number" default(1)
// @Param        limit query int    false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=response.Page[Asset]}
// @Failure      400 {object} response.APIResponse
// @Router       /media [get]
func (h *MediaHandler) listLibrary(c *gin.Context) {
	page, limit := response.Pagination(c)

	var kind *Kind
	if raw := c.Query("kind"); raw != "" {
		k := Kind(raw)
		if !k.Valid() {
			response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid kind", nil)
			return
		}
		kind = &k
	}

	items, total, err := h.service.ListLibrary(c.Request.Context(), auth.UserUUID(c), kind, page, limit)
	if err != nil {
		sendMediaError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "media listed", response.Page[Asset]{Items: items, Total: total, Page: page, Limit: limit})
}

// @Summary      Get media by ID
// @Tags         media
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Media ID"
// @Success      200 {object} response.APIResponse{data=Asset}
// @Failure      404 {object} response.APIResponse
// @Router       /media/{id} [get]
func (h *MediaHandler) getMedia(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	a, err := h.service.GetAsset(c.Request.Context(), id, auth.UserUUID(c))
	if err != nil {
		sendMediaError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "media fetched", a)
}

// @Summary      Download the stored file
// @Tags         media
// @Produce      octet-stream
// @Security     BearerAuth
// @Param        id path int true "Media ID"
// @Success      200 {file} binary
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /media/{id}/file [get]
func (h *MediaHandler) downloadFile(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	a, rc, err := h.service.OpenFile(c.Request.Context(), id, auth.UserUUID(c))
	if err != nil {
		sendMediaError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
	c.DataFromReader(http.StatusOK, a.SizeBytes, a.MimeType, rc, nil)
}

// @Summary      Update media details
// @Tags         media
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id      path int                true "Media ID"
// @Param        request body updateMediaRequest true "New details"
// @Success      200 {object} response.APIResponse{data=Asset}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /media/{id} [put]
func (h *MediaHandler) updateMedia(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	var req updateMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	a, err := h.service.UpdateAsset(c.Request.Context(), id, auth.UserUUID(c), req.Title, req.Description)
	if err != nil {
		sendMediaError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "media updated", a)
}

// @Summary      Delete media
// @Tags         media
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Media ID"
// @Success      200 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse "Media has an NFT"
// @Router       /media/{id} [delete]
func (h *MediaHandler) deleteMedia(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAsset(c.Request.Context(), id, auth.UserUUID(c)); err != nil {
		sendMediaError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "media deleted", nil)
}

// @Summary      Re-run AI analysis
// @Tags         media
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Media ID"
// @Success      200 {object} response.APIResponse{data=Asset}
// @Failure      429 {object} response.APIResponse "Analysis quota reached"
// @Router       /media/{id}/analyze [post]
func (h *MediaHandler) analyze(c *gin.Context) {
	id, ok := response.ParseID(c, "id")
	if !ok {
		return
	}
	a, err := h.service.Analyze(c.Request.Context(), id, auth.UserUUID(c))
	if err != nil {
		sendMediaError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "analysis finished", a)
}

func sendMediaError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, ErrMediaNotFound), errors.Is(err, storage.ErrNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, "media not found", nil)
	case errors.Is(err, ErrForbidden):
		response.SendAPIResponse(c, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, ErrMinted), errors.Is(err, ErrSold):
		response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
	case errors.Is(err, moderation.ErrRejected):
		response.SendAPIResponse(c, http.StatusUnprocessableEntity, false, err.Error(), nil)
	case errors.Is(err, users.ErrUsageLimit):
		response.SendAPIResponse(c, http.StatusTooManyRequests, false, err.Error(), nil)
	case errors.As(err, &maxErr):
		response.SendAPIResponse(c, http.StatusRequestEntityTooLarge, false, "upload too large", nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}
