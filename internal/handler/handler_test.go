package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/handler"
	"github.com/iliyamo/furniture-reservation/internal/middleware"
	"github.com/iliyamo/furniture-reservation/internal/repository"
	"github.com/iliyamo/furniture-reservation/internal/router"
	"github.com/iliyamo/furniture-reservation/internal/service"
	"github.com/iliyamo/furniture-reservation/internal/utils"
)

const secret = "handler-secret"

type api struct {
	t     *testing.T
	e     *echo.Echo
	admin string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	log := zap.NewNop()
	store := repository.NewMemoryStore()
	retry := service.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, VersionRetries: 2}

	e := echo.New()
	router.Register(e, router.Handlers{
		Catalog:      handler.NewCatalogHandler(service.NewCatalogService(store, nil, log), time.Second, log),
		Reservations: handler.NewReservationHandler(service.NewReservationService(store, nil, nil, retry, log), time.Second, log),
		Payments:     handler.NewPaymentHandler(service.NewPaymentService(store, nil, retry, log), time.Second, log),
	}, router.Middleware{JWTSecret: secret})

	tok, err := utils.NewAccessToken(secret, "ops", middleware.RoleAdmin, time.Hour)
	require.NoError(t, err)
	return &api{t: t, e: e, admin: tok.Token}
}

func (a *api) do(method, path, body string, admin bool) (int, map[string]any, []any) {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if admin {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+a.admin)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	raw := rec.Body.Bytes()
	var obj map[string]any
	var arr []any
	if len(raw) > 0 && raw[0] == '[' {
		require.NoError(a.t, json.Unmarshal(raw, &arr))
	} else if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &obj))
	}
	return rec.Code, obj, arr
}

func (a *api) furniture(title, price string, stock int) float64 {
	a.t.Helper()
	code, obj, _ := a.do(http.MethodPost, "/v1/furnitures",
		`{"title":"`+title+`","price":"`+price+`","stock":`+jsonInt(stock)+`}`, true)
	require.Equal(a.t, http.StatusCreated, code)
	return obj["id"].(float64)
}

func jsonInt(n int) string { b, _ := json.Marshal(n); return string(b) }

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogRoutes(t *testing.T) {
	a := newAPI(t)

	code, _, _ := a.do(http.MethodPost, "/v1/furnitures", `{"title":"Sofa","price":"10"}`, false)
	assert.Equal(t, http.StatusUnauthorized, code)

	id := a.furniture("Sofa", "450.00", 3)

	code, obj, _ := a.do(http.MethodGet, "/v1/furnitures/"+jsonInt(int(id)), "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Sofa", obj["title"])
	assert.Equal(t, "450", obj["price"])

	code, obj, _ = a.do(http.MethodPut, "/v1/furnitures/"+jsonInt(int(id)), `{"title":"Sofa XL","price":"500","stock":4}`, true)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 4, obj["stock"])

	code, obj, _ = a.do(http.MethodPost, "/v1/furnitures", `{"title":"","price":"10"}`, true)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", obj["kind"])

	code, _, _ = a.do(http.MethodGet, "/v1/furnitures/abc", "", false)
	assert.Equal(t, http.StatusBadRequest, code)
	code, obj, _ = a.do(http.MethodGet, "/v1/furnitures/999", "", false)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", obj["kind"])

	code, _, list := a.do(http.MethodGet, "/v1/furnitures", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)

	code, obj, _ = a.do(http.MethodDelete, "/v1/furnitures", "", true)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, obj["deleted"])

	code, _, list = a.do(http.MethodGet, "/v1/furnitures", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestReservationAndPaymentFlow(t *testing.T) {
	a := newAPI(t)
	chair := a.furniture("Chair", "25.00", 10)
	table := a.furniture("Table", "50.00", 2)

	body := `{"customer_name":"Nimal","address":"12 Lake Rd","national_id":"901234567V","items":[` +
		`{"item_id":` + jsonInt(int(chair)) + `,"quantity":2},{"item_id":` + jsonInt(int(table)) + `,"quantity":1}]}`
	code, res, _ := a.do(http.MethodPost, "/v1/reservations", body, false)
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 3, res["total_quantity"])
	assert.Equal(t, "100", res["total_price"])
	assert.Equal(t, "pending", res["status"])
	rid := jsonInt(int(res["id"].(float64)))

	code, got, _ := a.do(http.MethodGet, "/v1/reservations/"+rid, "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, res["id"], got["id"])
	items := got["line_items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "Chair", items[0].(map[string]any)["item"].(map[string]any)["title"])

	code, _, list := a.do(http.MethodGet, "/v1/reservations/nic/901234567V", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)
	code, _, list = a.do(http.MethodGet, "/v1/reservations/nic/000000000V", "", false)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	code, _, _ = a.do(http.MethodGet, "/v1/reservations", "", false)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _, list = a.do(http.MethodGet, "/v1/reservations", "", true)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)

	code, paid, _ := a.do(http.MethodPost, "/v1/payments/"+rid+"/process", `{"payment_method":"cash"}`, false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", paid["payment"].(map[string]any)["status"])
	assert.Equal(t, "cash", paid["payment"].(map[string]any)["method"])
	assert.Equal(t, "100", paid["reservation"].(map[string]any)["paid_amount"])

	code, obj, _ := a.do(http.MethodPost, "/v1/payments/"+rid+"/process", "", false)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", obj["kind"])

	code, _, list = a.do(http.MethodGet, "/v1/payments/"+rid, "", false)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list, 1)
}

func TestReservationErrors(t *testing.T) {
	a := newAPI(t)
	sofa := a.furniture("Sofa", "300", 1)

	code, obj, _ := a.do(http.MethodPost, "/v1/reservations",
		`{"customer_name":"A","address":"B","national_id":"C","items":[{"item_id":`+jsonInt(int(sofa))+`,"quantity":2}]}`, false)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "insufficient_stock", obj["kind"])
	details := obj["details"].(map[string]any)
	assert.EqualValues(t, 2, details["requested"])
	assert.EqualValues(t, 1, details["available"])

	code, obj, _ = a.do(http.MethodPost, "/v1/reservations", `{"customer_name":"A","address":"B","national_id":"C","items":[]}`, false)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", obj["kind"])

	code, _, _ = a.do(http.MethodPost, "/v1/reservations", `{not json`, false)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _, _ = a.do(http.MethodGet, "/v1/reservations/42", "", false)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCancelRestoresStock(t *testing.T) {
	a := newAPI(t)
	lamp := a.furniture("Lamp", "15", 5)
	lampID := jsonInt(int(lamp))

	code, res, _ := a.do(http.MethodPost, "/v1/reservations",
		`{"customer_name":"A","address":"B","national_id":"C","items":[{"item_id":`+lampID+`,"quantity":3}]}`, false)
	require.Equal(t, http.StatusCreated, code)
	rid := jsonInt(int(res["id"].(float64)))

	_, item, _ := a.do(http.MethodGet, "/v1/furnitures/"+lampID, "", false)
	assert.EqualValues(t, 2, item["stock"])

	code, _, _ = a.do(http.MethodPut, "/v1/reservations/"+rid+"/status", `{"status":"cancelled"}`, false)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, res, _ = a.do(http.MethodPut, "/v1/reservations/"+rid+"/status", `{"status":"cancelled"}`, true)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "cancelled", res["status"])

	code, _, _ = a.do(http.MethodPut, "/v1/reservations/"+rid+"/status", `{"status":"cancelled"}`, true)
	require.Equal(t, http.StatusOK, code)
	_, item, _ = a.do(http.MethodGet, "/v1/furnitures/"+lampID, "", false)
	assert.EqualValues(t, 5, item["stock"])

	code, obj, _ := a.do(http.MethodPut, "/v1/reservations/"+rid+"/status", `{"status":"confirmed"}`, true)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", obj["kind"])

	code, _, _ = a.do(http.MethodPut, "/v1/reservations/"+rid+"/status", `{"status":"shipped"}`, true)
	assert.Equal(t, http.StatusBadRequest, code)
}
