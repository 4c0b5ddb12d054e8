package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/service"
)

// CatalogHandler serves /v1/furnitures.
type CatalogHandler struct {
	base
	svc *service.CatalogService
}

func NewCatalogHandler(svc *service.CatalogService, timeout time.Duration, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{base: base{log: log.Named("catalog"), timeout: timeout}, svc: svc}
}

type itemRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

func (r itemRequest) input() service.ItemInput {
	return service.ItemInput{
		Title:       r.Title,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		Price:       r.Price,
		Stock:       r.Stock,
	}
}

func (h *CatalogHandler) Create(c echo.Context) error {
	var body itemRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	it, err := h.svc.Create(ctx, body.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *CatalogHandler) List(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	list, err := h.svc.List(ctx)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return okList(c, list)
}

func (h *CatalogHandler) Get(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	it, err := h.svc.Get(ctx, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, it)
}

// Update replaces every mutable field of the item.
func (h *CatalogHandler) Update(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var body itemRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	it, err := h.svc.Update(ctx, id, body.input())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, it)
}

func (h *CatalogHandler) Delete(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.svc.Delete(ctx, id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "furniture deleted", "id": id})
}

func (h *CatalogHandler) DeleteAll(c echo.Context) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	n, err := h.svc.DeleteAll(ctx)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "all furniture deleted", "deleted": n})
}
