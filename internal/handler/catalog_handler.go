package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement/internal/middleware"
	"settlement/internal/service"
	"settlement/pkg/pagination"
	"settlement/pkg/response"
)

type CatalogHandler struct {
	catalogService service.CatalogService
}

func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/products", h.GetProducts)
	router.POST("/products", middleware.RequireRole(managerRoles...), h.CreateProduct)
	router.GET("/vat-profiles", h.GetVatProfiles)
	router.POST("/vat-profiles", middleware.RequireRole(managerRoles...), h.CreateVatProfile)
}

// GetProducts handles GET /products
// @Summary      List products
// @Tags         catalog
// @Produce      json
// @Param        page    query     int     false  "Page"
// @Param        limit   query     int     false  "Page size"
// @Param        search  query     string  false  "Name filter"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/products [get]
func (h *CatalogHandler) GetProducts(c *gin.Context) {
	p := pagination.Parse(c)
	products, total, err := h.catalogService.GetProducts(c.Request.Context(), p.Page, p.Limit, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(products, total)))
}

// CreateProduct handles POST /products
// @Summary      Create product
// @Description  Prices are net of VAT, in the product currency.
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateProductRequest  true  "Product"
// @Success      201      {object}  response.Response{data=model.Product}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/products [post]
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.catalogService.CreateProduct(c.Request.Context(), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, product))
}

// GetVatProfiles handles GET /vat-profiles
// @Summary      List VAT profiles
// @Tags         catalog
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.VatProfile}
// @Router       /api/vat-profiles [get]
func (h *CatalogHandler) GetVatProfiles(c *gin.Context) {
	profiles, err := h.catalogService.GetVatProfiles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, profiles))
}

// CreateVatProfile handles POST /vat-profiles
// @Summary      Create VAT profile
// @Description  Per-country rates in percent for products that do not use the standard rate.
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateVatProfileRequest  true  "Profile"
// @Success      201      {object}  response.Response{data=model.VatProfile}
// @Failure      422      {object}  response.Response
// @Router       /api/vat-profiles [post]
func (h *CatalogHandler) CreateVatProfile(c *gin.Context) {
	var req service.CreateVatProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	profile, err := h.catalogService.CreateVatProfile(c.Request.Context(), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, profile))
}
