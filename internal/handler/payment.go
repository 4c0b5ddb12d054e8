package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/service"
)

// PaymentHandler serves /v1/payments.
type PaymentHandler struct {
	base
	svc *service.PaymentService
}

func NewPaymentHandler(svc *service.PaymentService, timeout time.Duration, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{base: base{log: log.Named("payments"), timeout: timeout}, svc: svc}
}

// Process settles a reservation.  An empty body pays by card.
func (h *PaymentHandler) Process(c echo.Context) error {
	id, ok := idParam(c, "reservationId")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body struct {
		PaymentMethod string `json:"payment_method"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	res, err := h.svc.ProcessPayment(ctx, id, body.PaymentMethod)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) List(c echo.Context) error {
	id, ok := idParam(c, "reservationId")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	list, err := h.svc.PaymentsByReservation(ctx, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return okList(c, list)
}
