package middleware

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/cache"
)

// HeaderIdempotencyKey is the client-chosen key of a retried POST.
const HeaderIdempotencyKey = "Idempotency-Key"

// Idempotency replays the stored response of a POST that carried the same
// Idempotency-Key on the same path.  A concurrent duplicate gets 409.
// Responses with status >= 500 are not stored, so the client may retry.
// A Redis failure lets the request through unprotected.
func Idempotency(store *cache.IdempotencyStore, log *zap.Logger) echo.MiddlewareFunc {
	if store == nil {
		return passthrough
	}
	log = log.Named("idempotency")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			raw := req.Header.Get(HeaderIdempotencyKey)
			if req.Method != http.MethodPost || raw == "" {
				return next(c)
			}
			sum := sha1.Sum([]byte(req.Method + " " + req.URL.Path + " " + raw))
			key := fmt.Sprintf("%x", sum[:])
			ctx := context.WithoutCancel(req.Context())

			state, payload, err := store.Begin(ctx, key)
			if err != nil {
				log.Warn("idempotency store unavailable", zap.Error(err))
				return next(c)
			}
			switch state {
			case cache.Done:
				if status, hdr, body, ok := cache.DecodeResponse(payload); ok {
					hdr.Set("Idempotent-Replayed", "true")
					return writeStored(c, status, hdr, body)
				}
				log.Warn("discarding undecodable stored response", zap.String("key", key))
				return next(c)
			case cache.InProgress:
				return deny(c, http.StatusConflict, "conflict", "a request with this Idempotency-Key is in progress")
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			if err := next(c); err != nil {
				c.Error(err)
			}

			if cw.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					log.Warn("release failed", zap.String("key", key), zap.Error(err))
				}
				return nil
			}
			enc, err := cache.EncodeResponse(cw.status, snapshotHeader(c.Response().Header()), cw.buf.Bytes())
			if err == nil {
				err = store.Save(ctx, key, enc)
			}
			if err != nil {
				log.Warn("save failed", zap.String("key", key), zap.Error(err))
			}
			return nil
		}
	}
}
