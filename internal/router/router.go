// Package router maps the HTTP surface onto the handlers.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/furniture-reservation/internal/handler"
	"github.com/iliyamo/furniture-reservation/internal/middleware"
)

// Handlers groups the route targets.
type Handlers struct {
	Health       echo.HandlerFunc
	Catalog      *handler.CatalogHandler
	Reservations *handler.ReservationHandler
	Payments     *handler.PaymentHandler
}

// Middleware holds the per-group middleware built from config.  Nil
// entries are skipped.
type Middleware struct {
	JWTSecret   string
	Cache       echo.MiddlewareFunc
	Idempotency echo.MiddlewareFunc
}

// Register wires every route.  Reads of the catalog go through the
// response cache; writes and reservation administration need an ADMIN
// token; the two unauthenticated POSTs honour Idempotency-Key.
func Register(e *echo.Echo, h Handlers, mw Middleware) {
	health := h.Health
	if health == nil {
		health = handler.Health(nil)
	}
	e.GET("/healthz", health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	admin := []echo.MiddlewareFunc{middleware.JWTAuth(mw.JWTSecret), middleware.RequireRole(middleware.RoleAdmin)}
	cached := skipNil(mw.Cache)
	idem := skipNil(mw.Idempotency)

	v1 := e.Group("/v1")

	f := v1.Group("/furnitures")
	f.GET("", h.Catalog.List, cached...)
	f.GET("/:id", h.Catalog.Get, cached...)
	f.POST("", h.Catalog.Create, admin...)
	f.PUT("/:id", h.Catalog.Update, admin...)
	f.DELETE("/:id", h.Catalog.Delete, admin...)
	f.DELETE("", h.Catalog.DeleteAll, admin...)

	r := v1.Group("/reservations")
	r.POST("", h.Reservations.Create, idem...)
	r.GET("", h.Reservations.List, admin...)
	r.GET("/nic/:nic", h.Reservations.ByNationalID)
	r.GET("/:id", h.Reservations.Get)
	r.PUT("/:id/status", h.Reservations.UpdateStatus, admin...)

	p := v1.Group("/payments")
	p.POST("/:reservationId/process", h.Payments.Process, idem...)
	p.GET("/:reservationId", h.Payments.List)
}

func skipNil(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := mws[:0]
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
