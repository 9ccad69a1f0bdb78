package users

import (
	"errors"
	"net/http"
	"time"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	service UserService
	tokens  *auth.TokenService
}

func NewUserHandler(service UserService, tokens *auth.TokenService) *UserHandler {
	return &UserHandler{service: service, tokens: tokens}
}

func (h *UserHandler) RegisterRoutes(router gin.IRouter, requireAuth, requireAdmin gin.HandlerFunc) {
	router.POST("/users", h.createUser)
	router.POST("/users/login", h.login)
	router.GET("/users/:uuid", h.getUserByUUID)

	me := router.Group("/users/me", requireAuth)
	me.GET("", h.getMe)
	me.PUT("", h.updateMe)
	me.DELETE("", h.deleteMe)

	admin := router.Group("/users", requireAuth, requireAdmin)
	admin.GET("", h.listUsers)
	admin.POST("/:uuid/beta/:feature", h.grantBeta)
	admin.DELETE("/:uuid/beta/:feature", h.revokeBeta)
}

type createUserRequest struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required"`
	ProfilePicURL string `json:"profile_pic_url"`
}

type updateUserRequest struct {
	Name          string `json:"name" binding:"required"`
	ProfilePicURL string `json:"profile_pic_url"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// @Summary      Create user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body createUserRequest true "Create user request"
// @Success      201 {object} response.APIResponse{data=User}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /users [post]
func (h *UserHandler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	u, err := h.service.CreateUser(c.Request.Context(), req.Name, req.Email, req.Password, req.ProfilePicURL)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "user created", u)
}

// @Summary      Login and obtain an access token
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body loginRequest true "Login request"
// @Success      200 {object} response.APIResponse{data=loginResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Router       /users/login [post]
func (h *UserHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}
	u, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.SendAPIResponse(c, http.StatusUnauthorized, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}

	token, exp, err := h.tokens.Issue(u.UUID, u.Email, u.VerifiedAt != nil)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "login successful", loginResponse{Token: token, ExpiresAt: exp, User: u})
}

// @Summary      Get current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse{data=User}
// @Failure      401 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/me [get]
func (h *UserHandler) getMe(c *gin.Context) {
	u, err := h.service.GetUserByUUID(c.Request.Context(), auth.UserUUID(c))
	if err != nil {
		sendUserError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user fetched", u)
}

// @Summary      Update current user profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body updateUserRequest true "Update user request"
// @Success      200 {object} response.APIResponse{data=User}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/me [put]
func (h *UserHandler) updateMe(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "invalid request payload", nil)
		return
	}

	u, err := h.service.UpdateProfile(c.Request.Context(), auth.UserUUID(c), req.Name, req.ProfilePicURL)
	if err != nil {
		sendUserError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user updated", u)
}

// @Summary      Delete current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/me [delete]
func (h *UserHandler) deleteMe(c *gin.Context) {
	if err := h.service.DeleteUserByUUID(c.Request.Context(), auth.UserUUID(c)); err != nil {
		sendUserError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user deleted", nil)
}

// @Summary      Get public profile by UUID
// @Tags         users
// @Produce      json
// @Param        uuid path string true "User UUID"
// @Success      200 {object} response.APIResponse{data=Profile}
// @Failure      404 {object} response.APIResponse
// @Router       /users/{uuid} [get]
func (h *UserHandler) getUserByUUID(c *gin.Context) {
	u, err := h.service.GetUserByUUID(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		sendUserError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "user fetched", u.Profile())
}

// @Summary      List users
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(10)
// @Success      200 {object} response.APIResponse{data=response.Page[User]}
// @Failure      403 {object} response.APIResponse
// @Router       /users [get]
func (h *UserHandler) listUsers(c *gin.Context) {
	page, limit := response.Pagination(c)

	items, total, err := h.service.ListUsers(c.Request.Context(), page, limit)
	if err != nil {
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		return
	}
	data := response.Page[User]{Items: items, Total: total, Page: page, Limit: limit}
	response.SendAPIResponse(c, http.StatusOK, true, "users listed", data)
}

// @Summary      Grant a beta feature
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        uuid    path string true "User UUID"
// @Param        feature path string true "Feature name"
// @Success      200 {object} response.APIResponse{data=User}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/{uuid}/beta/{feature} [post]
func (h *UserHandler) grantBeta(c *gin.Context) {
	u, err := h.service.GrantBeta(c.Request.Context(), c.Param("uuid"), c.Param("feature"))
	if err != nil {
		sendUserError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "beta feature granted", u)
}

// @Summary      Revoke a beta feature
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        uuid    path string true "User UUID"
// @Param        feature path string true "Feature name"
// @Success      200 {object} response.APIResponse{data=User}
// @Failure      404 {object} response.APIResponse
// @Router       /users/{uuid}/beta/{feature} [delete]
func (h *UserHandler) revokeBeta(c *gin.Context) {
	u, err := h.service.RevokeBeta(c.Request.Context(), c.Param("uuid"), c.Param("feature"))
	if err != nil {
		sendUserError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "beta feature revoked", u)
}

func sendUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, "user not found", nil)
	case errors.Is(err, ErrUnknownFeature), errors.Is(err, ErrInvalidTier):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}
