package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/service"
)

// ReservationHandler serves /v1/reservations.
type ReservationHandler struct {
	base
	svc *service.ReservationService
}

func NewReservationHandler(svc *service.ReservationService, timeout time.Duration, log *zap.Logger) *ReservationHandler {
	return &ReservationHandler{base: base{log: log.Named("reservations"), timeout: timeout}, svc: svc}
}

type reservationRequest struct {
	CustomerName string `json:"customer_name"`
	Address      string `json:"address"`
	NationalID   string `json:"national_id"`
	Items        []struct {
		ItemID   uint64 `json:"item_id"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

func (h *ReservationHandler) Create(c echo.Context) error {
	var body reservationRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	in := service.CreateReservationInput{
		CustomerName: body.CustomerName,
		Address:      body.Address,
		NationalID:   body.NationalID,
		Items:        make([]service.LineRequest, 0, len(body.Items)),
	}
	for _, li := range body.Items {
		in.Items = append(in.Items, service.LineRequest{ItemID: li.ItemID, Quantity: li.Quantity})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	r, err := h.svc.CreateReservation(ctx, in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *ReservationHandler) List(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	list, err := h.svc.ListReservations(ctx)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return okList(c, list)
}

func (h *ReservationHandler) Get(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	r, err := h.svc.GetReservation(ctx, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// ByNationalID answers 200 with an empty array when nothing matches.
func (h *ReservationHandler) ByNationalID(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	list, err := h.svc.ReservationsByNationalID(ctx, c.Param("nic"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return okList(c, list)
}

func (h *ReservationHandler) UpdateStatus(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	r, err := h.svc.UpdateStatus(ctx, id, body.Status)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, r)
}
