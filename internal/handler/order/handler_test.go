package order

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/orderpay/internal/inbox"
	"github.com/jwalitptl/orderpay/internal/outbox"
	"github.com/jwalitptl/orderpay/internal/repository/inmem"
	orderService "github.com/jwalitptl/orderpay/internal/service/order"
	"github.com/jwalitptl/orderpay/pkg/httputil"
	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/metrics"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	db := inmem.New()
	nop := logger.NewNop()
	dedup := inbox.NewDeduplicator(db, inmem.NewInboxRepository(db), time.Minute,
		nop, metrics.New(prometheus.NewRegistry(), "test"))
	svc := orderService.NewService(db, inmem.NewOrderRepository(db),
		outbox.NewWriter(inmem.NewOutboxRepository(db)), dedup, nop)

	engine := gin.New()
	NewHandler(svc).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, httputil.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHandler_CreateOrder(t *testing.T) {
	engine := newRouter()

	rec, resp := doJSON(t, engine, http.MethodPost, "/api/v1/orders", gin.H{
		"user_id":     "u1",
		"amount":      "40",
		"description": "two coffees",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "new", data["status"])
	assert.NotEmpty(t, data["id"])
}

func TestHandler_CreateOrder_MissingUserID(t *testing.T) {
	engine := newRouter()

	rec, resp := doJSON(t, engine, http.MethodPost, "/api/v1/orders", gin.H{"amount": "40"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestHandler_GetOrder_InvalidID(t *testing.T) {
	engine := newRouter()

	rec, resp := doJSON(t, engine, http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestHandler_GetOrder_NotFound(t *testing.T) {
	engine := newRouter()

	rec, resp := doJSON(t, engine, http.MethodGet, "/api/v1/orders/0e84df2c-6741-4ff9-8b93-6db74ae6ef6a", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestHandler_ListOrders(t *testing.T) {
	engine := newRouter()

	_, created := doJSON(t, engine, http.MethodPost, "/api/v1/orders", gin.H{
		"user_id": "u1",
		"amount":  "40",
	})
	require.True(t, created.Success)

	rec, resp := doJSON(t, engine, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, list, 1)
}
