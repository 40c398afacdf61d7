package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settlement/internal/config"
	"settlement/internal/currency"
	"settlement/internal/live"
	"settlement/internal/middleware"
	"settlement/internal/model"
	"settlement/internal/repository/memory"
	"settlement/internal/service"
	"settlement/pkg/apperror"
)

var jwtSecret = []byte("handler-test-secret")

type envelope struct {
	Status     string                `json:"status"`
	StatusCode int                   `json:"status_code"`
	Data       json.RawMessage       `json:"data"`
	Error      string                `json:"error"`
	Kind       apperror.Kind         `json:"kind"`
	Fields     []apperror.FieldError `json:"fields"`
}

type testServer struct {
	router *gin.Engine
	repos  *memory.Repositories
	broker *live.Broker
}

func newTestServer(t *testing.T, webhookToken string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, _ := test.NewNullLogger()
	repos := memory.New()
	stores := service.Stores{
		Tx:            repos.Store,
		Products:      repos.Products,
		Tabs:          repos.Tabs,
		Orders:        repos.Orders,
		Payments:      repos.Payments,
		Counters:      repos.Counters,
		Carts:         repos.Carts,
		Subscriptions: repos.Subscriptions,
		Sessions:      repos.Sessions,
		VatProfiles:   repos.VatProfiles,
		Rates:         repos.Rates,
		Audit:         repos.Audit,
	}
	cfg := config.DefaultSettlement()
	broker := live.NewBroker(10*time.Millisecond, log)
	rates := service.NewRateService(repos.Rates, repos.VatProfiles, log)
	processor := service.LocalProcessor{Name: "terminal"}
	notifier := service.LogNotifier{Log: log}

	router := NewRouter(RouterConfig{
		Services: Services{
			Tabs:     service.NewOrderTabService(stores, rates, broker, cfg, log),
			Orders:   service.NewOrderService(stores, rates, processor, notifier, broker, cfg, log),
			Payments: service.NewPaymentService(stores, rates, processor, notifier, broker, cfg, log),
			Sessions: service.NewPosSessionService(stores, rates, cfg, log),
			Rates:    rates,
			Carts:    service.NewCartService(stores, broker, log),
			Revenue:  service.NewRevenueService(stores, rates, cfg),
			Audit:    service.NewAuditService(repos.Audit),
			Catalog:  service.NewCatalogService(repos.Products, repos.VatProfiles, repos.Audit, repos.Store),
		},
		Broker:       broker,
		Limiter:      middleware.NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}),
		JWTSecret:    jwtSecret,
		KeepAlive:    time.Second,
		WebhookToken: webhookToken,
		Log:          log,
	})

	coffee := &model.Product{ID: "coffee", Name: "Coffee", Price: decimal.RequireFromString("4.50"), Currency: currency.CHF}
	require.NoError(t, repos.Products.Create(context.Background(), coffee))

	return &testServer{router: router, repos: repos, broker: broker}
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := middleware.IssueToken(jwtSecret, uuid.New(), role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.SessionHeader, "till-1")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, "")
	code, env := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status)
}

func TestTabToPaidOrder(t *testing.T) {
	s := newTestServer(t, "")
	cashier := token(t, RoleCashier)

	code, _ := s.do(t, http.MethodPost, "/api/tabs/table-1/items", "", map[string]string{"product_id": "coffee"})
	assert.Equal(t, http.StatusUnauthorized, code)

	for i := 0; i < 2; i++ {
		code, env := s.do(t, http.MethodPost, "/api/tabs/table-1/items", cashier, map[string]string{"product_id": "coffee"})
		require.Equal(t, http.StatusCreated, code, env.Error)
	}

	code, env := s.do(t, http.MethodGet, "/api/tabs/table-1", cashier, nil)
	require.Equal(t, http.StatusOK, code)
	var tab struct {
		Items []struct {
			Quantity int `json:"quantity"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tab))
	require.Len(t, tab.Items, 1)
	assert.Equal(t, 2, tab.Items[0].Quantity)

	code, env = s.do(t, http.MethodPost, "/api/tabs/table-1/orders", cashier, map[string]string{"method": "cash"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var order model.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	require.Len(t, order.Payments, 1)
	assert.Equal(t, model.OrderStatusPending, order.Status)

	code, env = s.do(t, http.MethodPost, "/api/tabs/table-1/orders", cashier, map[string]string{"method": "cash"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apperror.KindConflict, env.Kind)

	settle := "/api/orders/" + order.ID.String() + "/payments/" + order.Payments[0].ID.String() + "/settle"
	code, _ = s.do(t, http.MethodPost, settle, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(t, http.MethodPost, settle, cashier, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, model.OrderStatusPaid, order.Status)

	code, env = s.do(t, http.MethodGet, "/api/orders/"+order.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, model.OrderStatusPaid, order.Status)
}

func TestValidationErrorsCarryFields(t *testing.T) {
	s := newTestServer(t, "")

	code, env := s.do(t, http.MethodPost, "/api/cart/items", "", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, apperror.KindValidation, env.Kind)
	require.NotEmpty(t, env.Fields)
	assert.Equal(t, "ProductID", env.Fields[0].Field)

	code, env = s.do(t, http.MethodGet, "/api/orders/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "id", env.Fields[0].Field)
}

func TestUnknownOrder(t *testing.T) {
	s := newTestServer(t, "")
	code, env := s.do(t, http.MethodGet, "/api/orders/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperror.KindNotFound, env.Kind)
}

func TestManagerOnlyRoutes(t *testing.T) {
	s := newTestServer(t, "")
	body := map[string]string{"currency": "EUR", "per_bitcoin": "45000"}

	code, _ := s.do(t, http.MethodPut, "/api/rates", token(t, RoleCashier), body)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(t, http.MethodPut, "/api/rates", token(t, RoleManager), body)
	assert.Equal(t, http.StatusOK, code, env.Error)

	code, _ = s.do(t, http.MethodGet, "/api/audit-logs", token(t, RoleCashier), nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(t, http.MethodGet, "/api/reports/revenue?group_by=day", token(t, RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t, "")
	body := map[string]interface{}{"id": "tea", "name": "Tea", "price": "3.20", "currency": "CHF"}

	code, _ := s.do(t, http.MethodPost, "/api/products", token(t, RoleCashier), body)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(t, http.MethodPost, "/api/products", token(t, RoleManager), body)
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = s.do(t, http.MethodGet, "/api/products?search=tea", "", nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(1), page.Total)
}

func TestWebhookToken(t *testing.T) {
	s := newTestServer(t, "hook-secret")
	body := map[string]string{"checkout_id": "terminal_missing", "status": "paid"}

	code, _ := s.do(t, http.MethodPost, "/api/processors/webhook", "", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/processors/webhook", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookTokenHeader, "hook-secret")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPosSessionRoutes(t *testing.T) {
	s := newTestServer(t, "")
	cashier := token(t, RoleCashier)

	code, env := s.do(t, http.MethodPost, "/api/pos/sessions", cashier, map[string]string{"cash_opening": "100"})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, _ = s.do(t, http.MethodGet, "/api/pos/sessions/active/incomes", cashier, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, "/api/pos/sessions/active/x-ticket", cashier, nil)
	require.Equal(t, http.StatusOK, code)
	var ticket TicketResponse
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Contains(t, ticket.Text, "100.00")

	code, env = s.do(t, http.MethodPost, "/api/pos/sessions/active/close", cashier, map[string]string{"cash_closing": "100"})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, _ = s.do(t, http.MethodGet, "/api/pos/sessions/active", cashier, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
