package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/apperr"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

// respondError maps an apperr kind to its status.  Errors outside the
// taxonomy are logged and answered with an opaque message.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Message: "request timed out", Kind: "timeout"})
	}
	e, ok := apperr.As(err)
	if !ok {
		log.Error("unclassified error", zap.String("route", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorBody{Message: "internal error", Kind: string(apperr.Internal)})
	}
	return c.JSON(apperr.HTTPStatus(e.Kind), errorBody{Message: e.Message, Kind: string(e.Kind), Details: e.Details})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorBody{Message: msg, Kind: string(apperr.InvalidArgument)})
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// base carries what every handler needs.
type base struct {
	log     *zap.Logger
	timeout time.Duration
}

func (b base) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), b.timeout)
}

// okList writes list as a JSON array, never null.
func okList[T any](c echo.Context, list []T) error {
	if list == nil {
		list = []T{}
	}
	return c.JSON(http.StatusOK, list)
}
