package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement/internal/middleware"
	"settlement/internal/service"
	"settlement/pkg/response"
)

const webhookTokenHeader = "X-Webhook-Token"

// WebhookHandler receives checkout status updates from payment processors.
type WebhookHandler struct {
	paymentService service.PaymentService
	limiter        *middleware.RateLimiter
	token          string
}

func NewWebhookHandler(paymentService service.PaymentService, limiter *middleware.RateLimiter, token string) *WebhookHandler {
	return &WebhookHandler{paymentService: paymentService, limiter: limiter, token: token}
}

func (h *WebhookHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/processors/webhook", h.limiter.Middleware(middleware.ByClientIP), h.requireToken, h.ProcessorUpdate)
}

func (h *WebhookHandler) requireToken(c *gin.Context) {
	if h.token == "" {
		c.Next()
		return
	}
	if subtle.ConstantTimeCompare([]byte(c.GetHeader(webhookTokenHeader)), []byte(h.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid webhook token"))
		return
	}
	c.Next()
}

// ProcessorUpdate handles POST /processors/webhook
// @Summary      Processor webhook
// @Description  Applies a checkout status reported by the card terminal or lightning node. Replays are harmless.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Webhook-Token  header    string                   false  "Shared webhook token"
// @Param        payload          body      service.ProcessorUpdate  true   "Checkout status"
// @Success      200              {object}  response.Response{data=model.Order}
// @Failure      404              {object}  response.Response
// @Failure      429              {object}  response.Response
// @Router       /api/processors/webhook [post]
func (h *WebhookHandler) ProcessorUpdate(c *gin.Context) {
	var req service.ProcessorUpdate
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.paymentService.HandleProcessorUpdate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}
