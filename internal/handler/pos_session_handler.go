package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"settlement/internal/middleware"
	"settlement/internal/model"
	"settlement/internal/service"
	"settlement/pkg/pagination"
	"settlement/pkg/response"
)

type PosSessionHandler struct {
	sessionService service.PosSessionService
}

func NewPosSessionHandler(sessionService service.PosSessionService) *PosSessionHandler {
	return &PosSessionHandler{sessionService: sessionService}
}

func (h *PosSessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/pos/sessions", middleware.RequireRole(staffRoles...))
	{
		sessions.GET("", middleware.RequireRole(managerRoles...), h.ListSessions)
		sessions.POST("", h.OpenSession)
		sessions.GET("/active", h.GetActiveSession)
		sessions.GET("/active/incomes", h.DailyIncomes)
		sessions.POST("/active/x-ticket", h.GenerateXTicket)
		sessions.POST("/active/close", h.CloseSession)
		sessions.GET("/:id/z-ticket", h.GenerateZTicket)
	}
}

// IncomeSummary is the running drawer count of the active session.
type IncomeSummary struct {
	Incomes  []model.IncomeLine `json:"daily_incomes"`
	Cashback decimal.Decimal    `json:"cashback"`
}

// OpenSession handles POST /pos/sessions
// @Summary      Open POS session
// @Tags         pos
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.OpenSessionRequest  true  "Opening float"
// @Success      201      {object}  response.Response{data=model.PosSession}
// @Failure      409      {object}  response.Response
// @Router       /api/pos/sessions [post]
func (h *PosSessionHandler) OpenSession(c *gin.Context) {
	var req service.OpenSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessionService.OpenSession(c.Request.Context(), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, session))
}

// GetActiveSession handles GET /pos/sessions/active
// @Summary      Active POS session
// @Tags         pos
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=model.PosSession}
// @Failure      404  {object}  response.Response
// @Router       /api/pos/sessions/active [get]
func (h *PosSessionHandler) GetActiveSession(c *gin.Context) {
	session, err := h.sessionService.GetActiveSession(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, session))
}

// DailyIncomes handles GET /pos/sessions/active/incomes
// @Summary      Running incomes
// @Description  Incomes per payment method and cashback since the session opened.
// @Tags         pos
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=IncomeSummary}
// @Router       /api/pos/sessions/active/incomes [get]
func (h *PosSessionHandler) DailyIncomes(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := h.sessionService.GetActiveSession(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	incomes, err := h.sessionService.CalculateDailyIncomes(ctx, session)
	if err != nil {
		respondError(c, err)
		return
	}
	cashback, err := h.sessionService.CalculateTotalCashback(ctx, session)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, IncomeSummary{Incomes: incomes, Cashback: cashback}))
}

// CloseSession handles POST /pos/sessions/active/close
// @Summary      Close POS session
// @Description  Counts the drawer against the theoretical cash. A delta may need a justification.
// @Tags         pos
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CloseSessionRequest  true  "Closing count"
// @Success      200      {object}  response.Response{data=model.PosSession}
// @Failure      404      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/pos/sessions/active/close [post]
func (h *PosSessionHandler) CloseSession(c *gin.Context) {
	var req service.CloseSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessionService.CloseSession(c.Request.Context(), req, middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, session))
}

// GenerateXTicket handles POST /pos/sessions/active/x-ticket
// @Summary      X ticket
// @Description  Intermediate report of the active session. Each one is recorded on the session.
// @Tags         pos
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=TicketResponse}
// @Router       /api/pos/sessions/active/x-ticket [post]
func (h *PosSessionHandler) GenerateXTicket(c *gin.Context) {
	text, err := h.sessionService.GenerateXTicket(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, TicketResponse{Text: text}))
}

// GenerateZTicket handles GET /pos/sessions/{id}/z-ticket
// @Summary      Z ticket
// @Description  Final report of a closed session.
// @Tags         pos
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  response.Response{data=TicketResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/pos/sessions/{id}/z-ticket [get]
func (h *PosSessionHandler) GenerateZTicket(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	text, err := h.sessionService.GenerateZTicketText(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, TicketResponse{Text: text}))
}

// ListSessions handles GET /pos/sessions
// @Summary      List POS sessions
// @Tags         pos
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/pos/sessions [get]
func (h *PosSessionHandler) ListSessions(c *gin.Context) {
	p := pagination.Parse(c)
	sessions, total, err := h.sessionService.ListSessions(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(sessions, total)))
}
