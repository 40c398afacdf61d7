package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlement/internal/middleware"
	"settlement/internal/service"
	"settlement/pkg/apperror"
	"settlement/pkg/pagination"
	"settlement/pkg/response"
)

// ReportHandler serves back-office views: revenue per period and the audit trail.
type ReportHandler struct {
	revenueService service.RevenueService
	auditService   service.AuditService
}

func NewReportHandler(revenueService service.RevenueService, auditService service.AuditService) *ReportHandler {
	return &ReportHandler{revenueService: revenueService, auditService: auditService}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("", middleware.RequireRole(managerRoles...))
	{
		reports.GET("/reports/revenue", h.GetRevenueStatistics)
		reports.GET("/audit-logs", h.GetAuditLogs)
	}
}

// GetRevenueStatistics handles GET /reports/revenue
// @Summary      Revenue statistics
// @Description  Settled payments per day, week or month in the main currency, with cashback and per-method totals.
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        group_by    query     string  false  "day, week or month"
// @Param        start_date  query     string  false  "RFC3339, defaults to one month before end_date"
// @Param        end_date    query     string  false  "RFC3339, defaults to now"
// @Success      200         {object}  response.Response{data=[]service.RevenueDataPoint}
// @Failure      422         {object}  response.Response
// @Router       /api/reports/revenue [get]
func (h *ReportHandler) GetRevenueStatistics(c *gin.Context) {
	var filter service.RevenueFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, apperror.FromValidation(err))
		return
	}
	points, err := h.revenueService.GetRevenueStatistics(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, points))
}

// GetAuditLogs handles GET /audit-logs
// @Summary      Audit trail
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Param        entity_id  query     string  false  "Order, payment, tab or session ID"
// @Param        page       query     int     false  "Page"
// @Param        limit      query     int     false  "Page size"
// @Success      200        {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *ReportHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), c.Query("entity_id"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(logs, total)))
}
