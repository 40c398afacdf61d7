package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement/internal/middleware"
	"settlement/internal/service"
	"settlement/pkg/pagination"
	"settlement/pkg/response"
)

type OrderHandler struct {
	orderService   service.OrderService
	paymentService service.PaymentService
}

func NewOrderHandler(orderService service.OrderService, paymentService service.PaymentService) *OrderHandler {
	return &OrderHandler{orderService: orderService, paymentService: paymentService}
}

// RegisterRoutes binds order and payment endpoints. Customers reach their own
// orders by id; settling or failing a payment by hand is reserved to staff.
func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/orders")
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/cancel", h.CancelOrder)
		orders.POST("/:id/notes", h.AddNote)
		orders.POST("/:id/payments", h.AddPayment)
		orders.POST("/:id/payments/:paymentId/replace", h.ReplaceMethod)
		orders.POST("/:id/payments/:paymentId/settle", middleware.RequireRole(staffRoles...), h.SettlePayment)
		orders.POST("/:id/payments/:paymentId/fail", middleware.RequireRole(staffRoles...), h.FailPayment)
	}
}

// ListOrders handles GET /orders
// @Summary      List my orders
// @Description  Orders placed by the current session or staff user, newest first.
// @Tags         orders
// @Produce      json
// @Param        page   query     int  false  "Page"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	p := pagination.Parse(c)
	orders, total, err := h.orderService.ListOrders(c.Request.Context(), middleware.GetIdentity(c), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(orders, total)))
}

// GetOrder handles GET /orders/{id}
// @Summary      Get order
// @Description  Returns the order with its payments. Overdue pending payments are expired first.
// @Tags         orders
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=model.Order}
// @Failure      404  {object}  response.Response
// @Router       /api/orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// CancelOrder handles POST /orders/{id}/cancel
// @Summary      Cancel order
// @Description  Cancels a pending order and its pending payments, releasing free units and the tab.
// @Tags         orders
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=model.Order}
// @Failure      409  {object}  response.Response
// @Router       /api/orders/{id}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	order, err := h.orderService.CancelOrder(c.Request.Context(), id, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// AddNote handles POST /orders/{id}/notes
// @Summary      Add order note
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Order ID"
// @Param        payload  body      service.AddNoteRequest  true  "Note"
// @Success      201      {object}  response.Response{data=model.OrderNote}
// @Router       /api/orders/{id}/notes [post]
func (h *OrderHandler) AddNote(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req service.AddNoteRequest
	if !bindJSON(c, &req) {
		return
	}
	note, err := h.orderService.AddNote(c.Request.Context(), id, req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, note))
}

// AddPayment handles POST /orders/{id}/payments
// @Summary      Add payment
// @Description  Opens a payment for the outstanding amount, a partial amount, or the next share.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Order ID"
// @Param        payload  body      service.AddPaymentRequest  true  "Payment"
// @Success      201      {object}  response.Response{data=model.Payment}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/orders/{id}/payments [post]
func (h *OrderHandler) AddPayment(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req service.AddPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.paymentService.AddPayment(c.Request.Context(), id, req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, payment))
}

// ReplaceMethod handles POST /orders/{id}/payments/{paymentId}/replace
// @Summary      Replace payment method
// @Description  Retires an unpaid payment and opens a new one for the same amount with another method.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id         path      string                        true  "Order ID"
// @Param        paymentId  path      string                        true  "Payment ID"
// @Param        payload    body      service.ReplaceMethodRequest  true  "New method"
// @Success      201        {object}  response.Response{data=model.Payment}
// @Failure      409        {object}  response.Response
// @Router       /api/orders/{id}/payments/{paymentId}/replace [post]
func (h *OrderHandler) ReplaceMethod(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	paymentID, ok := paramUUID(c, "paymentId")
	if !ok {
		return
	}
	var req service.ReplaceMethodRequest
	if !bindJSON(c, &req) {
		return
	}
	payment, err := h.paymentService.ReplaceMethod(c.Request.Context(), id, paymentID, req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, payment))
}

// SettlePayment handles POST /orders/{id}/payments/{paymentId}/settle
// @Summary      Settle payment
// @Description  Marks a payment paid (cash drawer, manual terminal). Idempotent.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id         path      string                        true   "Order ID"
// @Param        paymentId  path      string                        true   "Payment ID"
// @Param        payload    body      service.SettlePaymentRequest  false  "Cashback"
// @Success      200        {object}  response.Response{data=model.Order}
// @Failure      409        {object}  response.Response
// @Router       /api/orders/{id}/payments/{paymentId}/settle [post]
func (h *OrderHandler) SettlePayment(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	paymentID, ok := paramUUID(c, "paymentId")
	if !ok {
		return
	}
	var req service.SettlePaymentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	order, err := h.paymentService.OnPaymentSettled(c.Request.Context(), id, paymentID, req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// FailPayment handles POST /orders/{id}/payments/{paymentId}/fail
// @Summary      Fail payment
// @Description  Records a refused, expired or canceled payment.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id         path      string                      true  "Order ID"
// @Param        paymentId  path      string                      true  "Payment ID"
// @Param        payload    body      service.FailPaymentRequest  true  "Reason"
// @Success      200        {object}  response.Response{data=model.Order}
// @Failure      409        {object}  response.Response
// @Router       /api/orders/{id}/payments/{paymentId}/fail [post]
func (h *OrderHandler) FailPayment(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	paymentID, ok := paramUUID(c, "paymentId")
	if !ok {
		return
	}
	var req service.FailPaymentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	order, err := h.paymentService.OnPaymentFailed(c.Request.Context(), id, paymentID, req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}
