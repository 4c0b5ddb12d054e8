// Package service implements the business operations of the furniture
// reservation service on top of repository.Store.  Every error returned to
// callers is an *apperr.Error.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/apperr"
	"github.com/iliyamo/furniture-reservation/internal/model"
	"github.com/iliyamo/furniture-reservation/internal/queue"
	"github.com/iliyamo/furniture-reservation/internal/repository"
)

// EventPublisher delivers domain events after a unit of work commits.
// Delivery is best effort: failures are logged, never returned to callers.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// CacheInvalidator drops cached catalog reads when stock or items change.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context) {}

const publishTimeout = 3 * time.Second

func publish(ctx context.Context, events EventPublisher, log *zap.Logger, ev queue.Event) {
	if events == nil {
		return
	}
	// The request may already be finished; the event still goes out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := events.Publish(ctx, ev); err != nil {
		log.Warn("event not delivered", zap.String("type", ev.Type), zap.Error(err))
	}
}

// internal logs err and hides it behind an opaque message.  Errors that
// already carry a kind pass through unchanged.
func internal(log *zap.Logger, err error, op string) error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, err, "%s: not found", op)
	}
	log.Error("storage failure", zap.String("op", op), zap.Error(err))
	return apperr.Wrap(apperr.Internal, err, "%s failed", op)
}

// attachProjections fills LineItem.Item for every item that still exists.
func attachProjections(ctx context.Context, catalog repository.CatalogRepository, list []model.Reservation) error {
	seen := map[uint64]bool{}
	var ids []uint64
	for _, r := range list {
		for _, li := range r.LineItems {
			if !seen[li.ItemID] {
				seen[li.ItemID] = true
				ids = append(ids, li.ItemID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	items, err := catalog.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range list {
		for j := range list[i].LineItems {
			li := &list[i].LineItems[j]
			if it, ok := items[li.ItemID]; ok {
				li.Item = it.Projection()
			} else {
				li.Item = nil
			}
		}
	}
	return nil
}
