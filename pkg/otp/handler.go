package otp

import (
	"errors"
	"net/http"

	"neuralsalvage/pkg/response"

	"github.com/gin-gonic/gin"
)

type OTPHandler struct {
	service OTPService
}

func NewOTPHandler(service OTPService) *OTPHandler {
	return &OTPHandler{service: service}
}

func (h *OTPHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/otp/send", h.sendOTP)
	router.POST("/otp/verify", h.verifyOTP)
}

type sendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// @Summary      Generate and send OTP
// @Description  Generate a one-time password and email it to the provided address
// @Tags         OTP
// @Accept       json
// @Produce      json
// @Param        request body sendOTPRequest true "Email to send OTP to"
// @Success      200 {object} response.APIResponse
// @Failure      400 {object} response.APIResponse
// @Failure      429 {object} response.APIResponse
// @Failure      500 {object} response.APIResponse
// @Router       /otp/send [post]
func (h *OTPHandler) sendOTP(c *gin.Context) {
	var req sendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "Invalid request: "+err.Error(), nil)
		return
	}

	if err := h.service.GenerateAndSendOTP(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, ErrTooManyRequests) {
			response.SendAPIResponse(c, http.StatusTooManyRequests, false, err.Error(), nil)
			return
		}
		response.SendAPIResponse(c, http.StatusInternalServerError, false, "Failed to generate and send OTP: "+err.Error(), nil)
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "OTP sent successfully to "+req.Email, nil)
}

// @Summary      Verify OTP
// @Description  Verify the one-time password for the provided email
// @Tags         OTP
// @Accept       json
// @Produce      json
// @Param        request body verifyOTPRequest true "Email and OTP code to verify"
// @Success      200 {object} response.APIResponse
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Router       /otp/verify [post]
func (h *OTPHandler) verifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "Invalid request: "+err.Error(), nil)
		return
	}

	if err := h.service.VerifyOTP(c.Request.Context(), req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrOTPExpired), errors.Is(err, ErrInvalidCode):
			response.SendAPIResponse(c, http.StatusUnauthorized, false, "OTP verification failed: "+err.Error(), nil)
		default:
			response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
		}
		return
	}

	response.SendAPIResponse(c, http.StatusOK, true, "OTP verified successfully", gin.H{"verified": true})
}
