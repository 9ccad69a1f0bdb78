package payments

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"neuralsalvage/pkg/auth"
	"neuralsalvage/pkg/response"
	"neuralsalvage/pkg/users"
)

const maxWebhookBytes = 1 << 16

type PaymentsHandler struct {
	gateway       Gateway
	events        *EventRouter
	subscriptions SubscriptionService
	log           *zap.Logger
}

func NewPaymentsHandler(gateway Gateway, events *EventRouter, subscriptions SubscriptionService, log *zap.Logger) *PaymentsHandler {
	return &PaymentsHandler{gateway: gateway, events: events, subscriptions: subscriptions, log: log}
}

func (h *PaymentsHandler) RegisterRoutes(router gin.IRouter, requireAuth gin.HandlerFunc) {
	router.POST("/webhooks/stripe", h.webhook)
	router.POST("/subscriptions/checkout", requireAuth, h.subscriptionCheckout)
}

// @Summary      Stripe webhook
// @Description  Verifies the Stripe signature and applies checkout and subscription events
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature header string true "Stripe signature"
// @Success      200 {object} response.APIResponse
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse "Event conflicts with stored state"
// @Router       /webhooks/stripe [post]
func (h *PaymentsHandler) webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		response.SendAPIResponse(c, http.StatusBadRequest, false, "cannot read payload", nil)
		return
	}

	evt, err := h.gateway.ParseEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		sendPaymentsError(c, err)
		return
	}

	if err := h.events.Dispatch(c.Request.Context(), evt); err != nil {
		h.log.Error("stripe event failed", zap.String("event_id", evt.ID), zap.String("type", string(evt.Type)), zap.Error(err))
		sendPaymentsError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusOK, true, "event processed", nil)
}

// @Summary      Start a pro subscription
// @Tags         payments
// @Produce      json
// @Security     BearerAuth
// @Success      201 {object} response.APIResponse{data=Session}
// @Failure      409 {object} response.APIResponse "Already subscribed"
// @Failure      503 {object} response.APIResponse "Payments disabled"
// @Router       /subscriptions/checkout [post]
func (h *PaymentsHandler) subscriptionCheckout(c *gin.Context) {
	s, err := h.subscriptions.StartCheckout(c.Request.Context(), auth.UserUUID(c))
	if err != nil {
		sendPaymentsError(c, err)
		return
	}
	response.SendAPIResponse(c, http.StatusCreated, true, "checkout session created", s)
}

func sendPaymentsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrBadMetadata):
		response.SendAPIResponse(c, http.StatusBadRequest, false, err.Error(), nil)
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadySubscribed):
		response.SendAPIResponse(c, http.StatusConflict, false, err.Error(), nil)
	case errors.Is(err, users.ErrUserNotFound):
		response.SendAPIResponse(c, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, ErrNotConfigured):
		response.SendAPIResponse(c, http.StatusServiceUnavailable, false, err.Error(), nil)
	default:
		response.SendAPIResponse(c, http.StatusInternalServerError, false, err.Error(), nil)
	}
}
