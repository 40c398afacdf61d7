package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement/internal/middleware"
	"settlement/internal/service"
	"settlement/pkg/response"
)

type RateHandler struct {
	rateService service.RateService
}

func NewRateHandler(rateService service.RateService) *RateHandler {
	return &RateHandler{rateService: rateService}
}

func (h *RateHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/rates", h.GetRates)
	router.PUT("/rates", middleware.RequireRole(managerRoles...), h.SetRate)
}

// GetRates handles GET /rates
// @Summary      Exchange rates
// @Description  Latest known price of one bitcoin in each currency.
// @Tags         rates
// @Produce      json
// @Success      200  {object}  response.Response{data=currency.RateTable}
// @Router       /api/rates [get]
func (h *RateHandler) GetRates(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.rateService.Table(c.Request.Context())))
}

// SetRate handles PUT /rates
// @Summary      Set exchange rate
// @Tags         rates
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SetRateRequest  true  "Rate"
// @Success      200      {object}  response.Response{data=model.ExchangeRate}
// @Failure      422      {object}  response.Response
// @Router       /api/rates [put]
func (h *RateHandler) SetRate(c *gin.Context) {
	var req service.SetRateRequest
	if !bindJSON(c, &req) {
		return
	}
	rate, err := h.rateService.SetRate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rate))
}
