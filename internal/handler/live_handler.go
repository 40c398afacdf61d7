package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"settlement/internal/live"
	"settlement/internal/middleware"
	"settlement/internal/model"
	"settlement/internal/service"
)

// LiveHandler streams change notifications over SSE and WebSocket.
type LiveHandler struct {
	broker       *live.Broker
	orderService service.OrderService
	keepAlive    time.Duration
	log          logrus.FieldLogger
}

func NewLiveHandler(broker *live.Broker, orderService service.OrderService, keepAlive time.Duration, log logrus.FieldLogger) *LiveHandler {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &LiveHandler{broker: broker, orderService: orderService, keepAlive: keepAlive, log: log}
}

// LiveMessage is one frame of the session stream.
type LiveMessage struct {
	Type  string     `json:"type"`
	Topic live.Topic `json:"topic"`
	At    time.Time  `json:"at"`
}

// OrderEvent is one frame of an order stream.
type OrderEvent struct {
	EventType string       `json:"eventType"`
	Order     *model.Order `json:"order"`
}

func (h *LiveHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.UserEvents)
	router.GET("/tabs/:slug/events", middleware.RequireRole(staffRoles...), h.TabEvents)
	router.GET("/orders/:id/events", h.OrderEvents)
}

// TabEvents handles GET /tabs/{slug}/events
// @Summary      Tab event stream
// @Description  Server-sent events with an empty object after each change; clients re-fetch the tab. Pass the token as ?token= from EventSource.
// @Tags         live
// @Produce      text/event-stream
// @Security     BearerAuth
// @Param        slug  path  string  true  "Tab slug"
// @Success      200
// @Router       /api/tabs/{slug}/events [get]
func (h *LiveHandler) TabEvents(c *gin.Context) {
	sub := h.broker.Subscribe(live.TabTopic(c.Param("slug")))
	live.Stream(c, sub, h.keepAlive, func(live.Event) (any, error) {
		return struct{}{}, nil
	})
}

// OrderEvents handles GET /orders/{id}/events
// @Summary      Order event stream
// @Description  Server-sent events carrying the event type and the refreshed order after each change.
// @Tags         live
// @Produce      text/event-stream
// @Param        id  path  string  true  "Order ID"
// @Success      200
// @Router       /api/orders/{id}/events [get]
func (h *LiveHandler) OrderEvents(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.orderService.GetOrder(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	sub := h.broker.Subscribe(live.OrderTopic(id))
	live.Stream(c, sub, h.keepAlive, func(ev live.Event) (any, error) {
		order, err := h.orderService.GetOrder(ctx, id)
		if err != nil {
			h.log.WithError(err).WithField("order", id).Debug("Live reload failed")
			return nil, err
		}
		return OrderEvent{EventType: ev.Type, Order: order}, nil
	})
}

// UserEvents handles GET /events
// @Summary      Session event stream
// @Description  Server-sent events for the caller's cart and orders.
// @Tags         live
// @Produce      text/event-stream
// @Success      200
// @Router       /api/events [get]
func (h *LiveHandler) UserEvents(c *gin.Context) {
	sub := h.broker.Subscribe(live.UserTopic(middleware.GetIdentity(c).SessionID))
	live.Stream(c, sub, h.keepAlive, func(ev live.Event) (any, error) {
		return LiveMessage{Type: ev.Type, Topic: ev.Topic, At: ev.At}, nil
	})
}

// ServeWS handles GET /ws. The connection always follows the caller's session;
// ?tab= and ?order= add topics, staff only for tabs.
// @Summary      Live updates over WebSocket
// @Tags         live
// @Param        tab    query  string  false  "Tab slug"
// @Param        order  query  string  false  "Order ID"
// @Success      101
// @Router       /ws [get]
func (h *LiveHandler) ServeWS(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	topics := []live.Topic{live.UserTopic(identity.SessionID)}
	if slug := c.Query("tab"); slug != "" && identity.UserRoleID != "" {
		topics = append(topics, live.TabTopic(slug))
	}
	if raw := c.Query("order"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			topics = append(topics, live.OrderTopic(id))
		}
	}
	live.ServeWS(c, h.broker.Subscribe(topics...), h.log.WithField("session", identity.SessionID))
}
