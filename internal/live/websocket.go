package live

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Terminals are authenticated by the identity middleware before upgrade
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var errClientGone = errors.New("client disconnected")

// ServeWS upgrades the request and pushes events of sub to the peer. Both pumps
// live in one errgroup bound to the connection: when either stops the other is
// canceled and the subscription released.
func ServeWS(c *gin.Context, sub *Subscription, log logrus.FieldLogger) {
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		return readPump(conn)
	})
	g.Go(func() error {
		return writePump(ctx, conn, sub)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errClientGone) && !errors.Is(err, context.Canceled) {
		log.WithError(err).Debug("WebSocket connection ended")
	}
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return err
			}
			return errClientGone
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *Subscription) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			// unblock readPump
			_ = conn.Close()
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.Close()
				return errClientGone
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				_ = conn.Close()
				return err
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return err
			}
		}
	}
}
