package middleware

import (
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/furniture-reservation/internal/cache"
	"github.com/iliyamo/furniture-reservation/internal/config"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func adminEcho() *echo.Echo {
	e := echo.New()
	e.GET("/admin", func(c echo.Context) error {
		return c.String(http.StatusOK, Subject(c))
	}, JWTAuth(secret), RequireRole(RoleAdmin))
	return e
}

func TestJWTAuthAndRole(t *testing.T) {
	e := adminEcho()
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		auth   string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "ops", "role": RoleAdmin, "exp": exp}), http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "ops", "role": RoleAdmin, "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"not admin", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "ops", "role": "CUSTOMER", "exp": exp}), http.StatusForbidden},
		{"admin", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "ops", "role": RoleAdmin, "exp": exp}), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.auth)
			}
			rec := serve(e, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "ops", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"kind"`)
			}
		})
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/furnitures/3", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/furnitures/:id")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}
	assert.Equal(t, "rl:ip:10.0.0.1:route:GET /v1/furnitures/:id", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	assert.Equal(t, "rl:user:anon", buildRateKey(cfg, c))
	c.Set(ctxSubject, "ops")
	assert.Equal(t, "rl:user:ops", buildRateKey(cfg, c))
}

func TestDisabledMiddlewarePassThrough(t *testing.T) {
	e := echo.New()
	e.Use(
		NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, zap.NewNop()),
		NewRedisCache(config.CacheConfig{Enabled: true}, nil, zap.NewNop()),
		Idempotency(nil, zap.NewNop()),
	)
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestRedisCache_MissThenHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true},
		TTL:         time.Minute,
		KeyStrategy: "route_query",
		Prefix:      "fc",
	}
	calls := 0
	e := echo.New()
	e.Use(NewRedisCache(cfg, db, zap.NewNop()))
	e.GET("/v1/furnitures", func(c echo.Context) error {
		calls++
		return c.Blob(http.StatusOK, "text/plain", []byte("list"))
	})

	sum := sha1.Sum([]byte("route:/v1/furnitures:q:"))
	key := fmt.Sprintf("fc:%x", sum[:])
	stored, err := cache.EncodeResponse(http.StatusOK, http.Header{
		"Content-Type": []string{"text/plain"},
		"X-Cache":      []string{"MISS"},
	}, []byte("list"))
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, stored, time.Minute).SetVal("OK")
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/v1/furnitures", nil))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "list", rec.Body.String())

	mock.ExpectGet(key).SetVal(string(stored))
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/v1/furnitures", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "list", rec.Body.String())

	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func idemKey(path, raw string) string {
	sum := sha1.Sum([]byte(http.MethodPost + " " + path + " " + raw))
	return fmt.Sprintf("%x", sum[:])
}

func TestIdempotency_StoresAndReplays(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := cache.NewIdempotencyStore(db, "idem", time.Hour, 5*time.Second)
	calls := 0
	e := echo.New()
	e.POST("/v1/reservations", func(c echo.Context) error {
		calls++
		return c.Blob(http.StatusCreated, "text/plain", []byte("created"))
	}, Idempotency(store, zap.NewNop()))

	k := idemKey("/v1/reservations", "abc")
	stored, err := cache.EncodeResponse(http.StatusCreated, http.Header{"Content-Type": []string{"text/plain"}}, []byte("created"))
	require.NoError(t, err)

	mock.ExpectGet("idem:" + k + ":resp").RedisNil()
	mock.ExpectSetNX("idem:"+k+":lock", "1", 5*time.Second).SetVal(true)
	mock.ExpectGet("idem:" + k + ":resp").RedisNil()
	mock.ExpectSet("idem:"+k+":resp", stored, time.Hour).SetVal("OK")
	mock.ExpectDel("idem:" + k + ":lock").SetVal(1)

	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
	req.Header.Set(HeaderIdempotencyKey, "abc")
	rec := serve(e, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	mock.ExpectGet("idem:" + k + ":resp").SetVal(string(stored))
	req = httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
	req.Header.Set(HeaderIdempotencyKey, "abc")
	rec = serve(e, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", rec.Body.String())
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))

	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_InProgressAndServerErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := cache.NewIdempotencyStore(db, "idem", time.Hour, 5*time.Second)
	e := echo.New()
	e.POST("/fail", func(c echo.Context) error {
		return c.String(http.StatusInternalServerError, "boom")
	}, Idempotency(store, zap.NewNop()))

	k := idemKey("/fail", "x")
	mock.ExpectGet("idem:" + k + ":resp").RedisNil()
	mock.ExpectSetNX("idem:"+k+":lock", "1", 5*time.Second).SetVal(false)
	req := httptest.NewRequest(http.MethodPost, "/fail", nil)
	req.Header.Set(HeaderIdempotencyKey, "x")
	assert.Equal(t, http.StatusConflict, serve(e, req).Code)

	mock.ExpectGet("idem:" + k + ":resp").RedisNil()
	mock.ExpectSetNX("idem:"+k+":lock", "1", 5*time.Second).SetVal(true)
	mock.ExpectGet("idem:" + k + ":resp").RedisNil()
	mock.ExpectDel("idem:" + k + ":lock").SetVal(1)
	req = httptest.NewRequest(http.MethodPost, "/fail", nil)
	req.Header.Set(HeaderIdempotencyKey, "x")
	assert.Equal(t, http.StatusInternalServerError, serve(e, req).Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)), Metrics())
	e.GET("/items/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/items/9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/items/:id", fields["route"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), fields["request_id"])
}
