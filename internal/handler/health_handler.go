package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"settlement/pkg/response"
)

// Pinger checks a backing store. Nil means there is nothing to check.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	ping Pinger
}

func NewHealthHandler(ping Pinger) *HealthHandler {
	return &HealthHandler{ping: ping}
}

// Health handles GET /health
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      503  {object}  response.Response
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, response.Error(http.StatusServiceUnavailable, "database unreachable"))
			return
		}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"status": "OK"}))
}
