package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement/internal/middleware"
	"settlement/internal/service"
	"settlement/pkg/apperror"
	"settlement/pkg/response"
)

type OrderTabHandler struct {
	tabService   service.OrderTabService
	orderService service.OrderService
}

func NewOrderTabHandler(tabService service.OrderTabService, orderService service.OrderService) *OrderTabHandler {
	return &OrderTabHandler{tabService: tabService, orderService: orderService}
}

type MarkPrintedRequest struct {
	Lines []service.PrintedLine `json:"lines" binding:"required,dive"`
}

// RegisterRoutes binds the tab endpoints used by POS terminals.
func (h *OrderTabHandler) RegisterRoutes(router *gin.RouterGroup) {
	tabs := router.Group("/tabs/:slug", middleware.RequireRole(staffRoles...))
	{
		tabs.GET("", h.GetOrderTab)
		tabs.DELETE("", h.RemoveTab)
		tabs.POST("/items", h.AddItem)
		tabs.PATCH("/items/:itemId", h.UpdateItem)
		tabs.DELETE("/items/:itemId", h.RemoveLine)
		tabs.PUT("/discount", h.SetDiscount)
		tabs.POST("/orders", h.CreateOrder)
		tabs.POST("/conclude", h.Conclude)
		tabs.GET("/ticket", h.BuildTicket)
		tabs.POST("/print", h.Print)
		tabs.POST("/printed", h.MarkPrinted)
		tabs.GET("/prints", h.PrintHistory)
		tabs.POST("/prints", h.AppendPrintHistory)
	}
}

// GetOrderTab handles GET /tabs/{slug}
// @Summary      Get order tab
// @Description  Returns the tab lines with live prices, totals and VAT breakdown. Concludes the tab when its order is paid.
// @Tags         tabs
// @Produce      json
// @Security     BearerAuth
// @Param        slug  path      string  true  "Tab slug"
// @Success      200   {object}  response.Response{data=service.TabView}
// @Failure      404   {object}  response.Response
// @Router       /api/tabs/{slug} [get]
func (h *OrderTabHandler) GetOrderTab(c *gin.Context) {
	tab, err := h.tabService.GetOrderTab(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tab))
}

// AddItem handles POST /tabs/{slug}/items
// @Summary      Add item to tab
// @Description  Adds one unit of a product. Units with the same variations accumulate on one line.
// @Tags         tabs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        slug     path      string                     true  "Tab slug"
// @Param        payload  body      service.AddTabItemRequest  true  "Item"
// @Success      201      {object}  response.Response{data=model.OrderTabItem}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/tabs/{slug}/items [post]
func (h *OrderTabHandler) AddItem(c *gin.Context) {
	var req service.AddTabItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.tabService.AddItem(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

// UpdateItem handles PATCH /tabs/{slug}/items/{itemId}
// @Summary      Update tab line
// @Description  Sets the quantity and note of a line. Quantity 0 removes the line.
// @Tags         tabs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        slug     path      string                        true  "Tab slug"
// @Param        itemId   path      string                        true  "Line ID"
// @Param        payload  body      service.UpdateTabItemRequest  true  "Update"
// @Success      200      {object}  response.Response{data=model.OrderTabItem}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/tabs/{slug}/items/{itemId} [patch]
func (h *OrderTabHandler) UpdateItem(c *gin.Context) {
	itemID, ok := paramUUID(c, "itemId")
	if !ok {
		return
	}
	var req service.UpdateTabItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.tabService.UpdateItem(c.Request.Context(), c.Param("slug"), itemID, req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, item))
}

// RemoveLine handles DELETE /tabs/{slug}/items/{itemId}
// @Summary      Remove tab line
// @Tags         tabs
// @Produce      json
// @Security     BearerAuth
// @Param        slug    path      string  true  "Tab slug"
// @Param        itemId  path      string  true  "Line ID"
// @Success      200     {object}  response.Response
// @Failure      403     {object}  response.Response
// @Router       /api/tabs/{slug}/items/{itemId} [delete]
func (h *OrderTabHandler) RemoveLine(c *gin.Context) {
	itemID, ok := paramUUID(c, "itemId")
	if !ok {
		return
	}
	if err := h.tabService.RemoveLine(c.Request.Context(), c.Param("slug"), itemID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Line removed"))
}

// RemoveTab handles DELETE /tabs/{slug}
// @Summary      Remove tab
// @Description  Deletes a tab with no pending order.
// @Tags         tabs
// @Produce      json
// @Security     BearerAuth
// @Param        slug  path      string  true  "Tab slug"
// @Success      200   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Router       /api/tabs/{slug} [delete]
func (h *OrderTabHandler) RemoveTab(c *gin.Context) {
	if err := h.tabService.RemoveTab(c.Request.Context(), c.Param("slug"), middleware.GetIdentity(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Tab removed"))
}

// SetDiscount handles PUT /tabs/{slug}/discount
// @Summary      Set tab discount
// @Description  Applies a percentage discount to every line. A positive discount needs a justification; 0 clears it.
// @Tags         tabs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        slug     path      string                      true  "Tab slug"
// @Param        payload  body      service.SetDiscountRequest  true  "Discount"
// @Success      200      {object}  response.Response{data=model.OrderTab}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/tabs/{slug}/discount [put]
func (h *OrderTabHandler) SetDiscount(c *gin.Context) {
	var req service.SetDiscountRequest
	if !bindJSON(c, &req) {
		return
	}
	tab, err := h.tabService.SetDiscount(c.Request.Context(), c.Param("slug"), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tab))
}

// CreateOrder handles POST /tabs/{slug}/orders
// @Summary      Create order from tab
// @Description  Snapshots the tab into an order with its first payment, or with N share payments.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        slug     path      string                      true  "Tab slug"
// @Param        payload  body      service.CreateOrderRequest  true  "Order"
// @Success      201      {object}  response.Response{data=model.Order}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/tabs/{slug}/orders [post]
func (h *OrderTabHandler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	order, err := h.orderService.CreateOrderFromTab(c.Request.Context(), c.Param("slug"), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// Conclude handles POST /tabs/{slug}/conclude
// @Summary      Conclude tab
// @Description  Detaches the ordered lines once the tab's order is fully paid. Idempotent.
// @Tags         tabs
// @Produce      json
// @Security     BearerAuth
// @Param        slug  path      string  true  "Tab slug"
// @Success      200   {object}  response.Response{data=service.ConcludeResult}
// @Router       /api/tabs/{slug}/conclude [post]
func (h *OrderTabHandler) Conclude(c *gin.Context) {
	result, err := h.tabService.ConcludeIfFullyPaidAndNotEmpty(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// BuildTicket handles GET /tabs/{slug}/ticket
// @Summary      Render ticket
// @Description  Renders a kitchen or customer ticket without recording it.
// @Tags         tabs
// @Produce      json
// @Security     BearerAuth
// @Param        slug  path      string  true   "Tab slug"
// @Param        kind  query     string  false  "kitchen or customer"
// @Param        mode  query     string  false  "all or newlyOrdered"
// @Param        tag   query     string  false  "Print tag filter"
// @Success      200   {object}  response.Response{data=TicketResponse}
// @Router       /api/tabs/{slug}/ticket [get]
func (h *OrderTabHandler) BuildTicket(c *gin.Context) {
	var req service.TicketRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, apperror.FromValidation(err))
		return
	}
	text, err := h.tabService.BuildTicket(c.Request.Context(), c.Param("slug"), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, TicketResponse{Text: text}))
}

// Print handles POST /tabs/{slug}/print
// @Summary      Print ticket
// @Description  Renders a ticket, records it in the print history and marks kitchen lines as printed.
// @Tags         tabs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        slug     path      string                 true  "Tab slug"
// @Param        payload  body      service.TicketRequest  true  "Ticket"
// @Success      201      {object}  response.Response{data=model.TabPrintEntry}
// @Router       /api/tabs/{slug}/print [post]
func (h *OrderTabHandler) Print(c *gin.Context) {
	var req service.TicketRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	entry, err := h.tabService.Print(c.Request.Context(), c.Param("slug"), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, entry))
}

// MarkPrinted handles POST /tabs/{slug}/printed
// @Summary      Mark lines printed
// @Tags         tabs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        slug     path      string              true  "Tab slug"
// @Param        payload  body      MarkPrintedRequest  true  "Printed lines"
// @Success      200      {object}  response.Response
// @Router       /api/tabs/{slug}/printed [post]
func (h *OrderTabHandler) MarkPrinted(c *gin.Context) {
	var req MarkPrintedRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.tabService.MarkPrinted(c.Request.Context(), c.Param("slug"), req.Lines); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Lines marked as printed"))
}

// PrintHistory handles GET /tabs/{slug}/prints
// @Summary      Print history
// @Description  Most recent tickets first.
// @Tags         tabs
// @Produce      json
// @Security     BearerAuth
// @Param        slug  path      string  true  "Tab slug"
// @Success      200   {object}  response.Response{data=[]model.TabPrintEntry}
// @Router       /api/tabs/{slug}/prints [get]
func (h *OrderTabHandler) PrintHistory(c *gin.Context) {
	entries, err := h.tabService.PrintHistory(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, entries))
}

// AppendPrintHistory handles POST /tabs/{slug}/prints
// @Summary      Record printed ticket
// @Description  Stores a ticket printed by the terminal itself.
// @Tags         tabs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        slug     path      string                      true  "Tab slug"
// @Param        payload  body      service.AppendPrintRequest  true  "Ticket"
// @Success      201      {object}  response.Response{data=model.TabPrintEntry}
// @Router       /api/tabs/{slug}/prints [post]
func (h *OrderTabHandler) AppendPrintHistory(c *gin.Context) {
	var req service.AppendPrintRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := h.tabService.AppendPrintHistory(c.Request.Context(), c.Param("slug"), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, entry))
}
