package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement/internal/middleware"
	"settlement/internal/service"
	"settlement/pkg/response"
)

type CartHandler struct {
	cartService  service.CartService
	orderService service.OrderService
}

func NewCartHandler(cartService service.CartService, orderService service.OrderService) *CartHandler {
	return &CartHandler{cartService: cartService, orderService: orderService}
}

func (h *CartHandler) RegisterRoutes(router *gin.RouterGroup) {
	cart := router.Group("/cart")
	{
		cart.GET("", h.GetCart)
		cart.DELETE("", h.Clear)
		cart.POST("/items", h.AddItem)
		cart.POST("/orders", h.Checkout)
	}
}

// GetCart handles GET /cart
// @Summary      Get cart
// @Tags         cart
// @Produce      json
// @Success      200  {object}  response.Response{data=model.Cart}
// @Router       /api/cart [get]
func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.cartService.GetCart(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, cart))
}

// AddItem handles POST /cart/items
// @Summary      Add cart item
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        payload  body      service.AddCartItemRequest  true  "Item"
// @Success      201      {object}  response.Response{data=model.CartItem}
// @Failure      422      {object}  response.Response
// @Router       /api/cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req service.AddCartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.cartService.AddItem(c.Request.Context(), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, item))
}

// Clear handles DELETE /cart
// @Summary      Empty cart
// @Tags         cart
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/cart [delete]
func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.cartService.Clear(c.Request.Context(), middleware.GetIdentity(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Cart cleared"))
}

// Checkout handles POST /cart/orders
// @Summary      Create order from cart
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateOrderRequest  true  "Order"
// @Success      201      {object}  response.Response{data=model.Order}
// @Failure      422      {object}  response.Response
// @Router       /api/cart/orders [post]
func (h *CartHandler) Checkout(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.orderService.CreateOrderFromCart(c.Request.Context(), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}
