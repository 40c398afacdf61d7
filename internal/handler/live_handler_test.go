package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/live"
	"settlement/internal/model"
)

// openStream starts an SSE request and returns once the response headers are in,
// which is after the handler subscribed.
func openStream(t *testing.T, srv *httptest.Server, path, tok string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	return bufio.NewReader(resp.Body)
}

// nextFrame returns the payload of the next data line, skipping keep-alives.
func nextFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
}

func TestTabEventsSendRefetchSignal(t *testing.T) {
	s := newTestServer(t, "")
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	cashier := token(t, RoleCashier)

	stream := openStream(t, srv, "/api/tabs/table-1/events", cashier)
	assert.Equal(t, 1, s.broker.Subscribers(live.TabTopic("table-1")))

	code, env := s.do(t, http.MethodPost, "/api/tabs/table-1/items", cashier, map[string]string{"product_id": "coffee"})
	require.Equal(t, http.StatusCreated, code, env.Error)

	assert.Equal(t, "{}", nextFrame(t, stream))
}

func TestOrderEventsCarryEventTypeAndOrder(t *testing.T) {
	s := newTestServer(t, "")
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	cashier := token(t, RoleCashier)

	code, env := s.do(t, http.MethodPost, "/api/tabs/table-1/items", cashier, map[string]string{"product_id": "coffee"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	code, env = s.do(t, http.MethodPost, "/api/tabs/table-1/orders", cashier, map[string]string{"method": "cash"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var order model.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))

	stream := openStream(t, srv, "/api/orders/"+order.ID.String()+"/events", "")

	settle := "/api/orders/" + order.ID.String() + "/payments/" + order.Payments[0].ID.String() + "/settle"
	code, env = s.do(t, http.MethodPost, settle, cashier, nil)
	require.Equal(t, http.StatusOK, code, env.Error)

	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(nextFrame(t, stream)), &frame))
	assert.Len(t, frame, 2)
	assert.JSONEq(t, `"payment.updated"`, string(frame["eventType"]))

	var paid model.Order
	require.NoError(t, json.Unmarshal(frame["order"], &paid))
	assert.Equal(t, order.ID, paid.ID)
	assert.Equal(t, model.OrderStatusPaid, paid.Status)
}

func TestOrderEventsUnknownOrder(t *testing.T) {
	s := newTestServer(t, "")
	code, env := s.do(t, http.MethodGet, "/api/orders/00000000-0000-0000-0000-000000000001/events", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", env.Status)
}
