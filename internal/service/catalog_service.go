package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/furniture-reservation/internal/apperr"
	"github.com/iliyamo/furniture-reservation/internal/model"
	"github.com/iliyamo/furniture-reservation/internal/repository"
)

// ItemInput is the full set of mutable catalog fields.  Update replaces
// all of them.
type ItemInput struct {
	Title       string
	Description string
	ImageURL    string
	Price       decimal.Decimal
	Stock       int
}

func (in ItemInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.New(apperr.InvalidArgument, "title is required")
	}
	if !in.Price.IsPositive() {
		return apperr.New(apperr.InvalidArgument, "price must be greater than zero")
	}
	if in.Stock < 0 {
		return apperr.New(apperr.InvalidArgument, "stock cannot be negative")
	}
	return nil
}

func (in ItemInput) apply(it *model.CatalogItem) {
	it.Title = strings.TrimSpace(in.Title)
	it.Description = strings.TrimSpace(in.Description)
	it.ImageURL = strings.TrimSpace(in.ImageURL)
	if it.ImageURL == "" {
		it.ImageURL = model.DefaultImageURL
	}
	it.Price = in.Price
	it.Stock = in.Stock
}

// CatalogService manages furniture items.
type CatalogService struct {
	store repository.Store
	cache CacheInvalidator
	log   *zap.Logger
	list  singleflight.Group
}

// NewCatalogService wires the service.  cache may be nil.
func NewCatalogService(store repository.Store, cache CacheInvalidator, log *zap.Logger) *CatalogService {
	if cache == nil {
		cache = nopInvalidator{}
	}
	return &CatalogService{store: store, cache: cache, log: log.Named("catalog")}
}

func (s *CatalogService) Create(ctx context.Context, in ItemInput) (*model.CatalogItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	var it model.CatalogItem
	in.apply(&it)
	if err := s.store.Catalog().Create(ctx, &it); err != nil {
		return nil, internal(s.log, err, "create furniture")
	}
	s.cache.Invalidate(ctx)
	s.log.Info("furniture created", zap.Uint64("item_id", it.ID), zap.Int("stock", it.Stock))
	return &it, nil
}

// List returns every item, newest first.  Concurrent calls share one
// storage read.
func (s *CatalogService) List(ctx context.Context) ([]model.CatalogItem, error) {
	v, err, _ := s.list.Do("list", func() (any, error) {
		return s.store.Catalog().List(ctx)
	})
	if err != nil {
		return nil, internal(s.log, err, "list furniture")
	}
	shared := v.([]model.CatalogItem)
	out := make([]model.CatalogItem, len(shared))
	copy(out, shared)
	return out, nil
}

func (s *CatalogService) Get(ctx context.Context, id uint64) (*model.CatalogItem, error) {
	it, err := s.store.Catalog().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "furniture %d not found", id)
	}
	if err != nil {
		return nil, internal(s.log, err, "get furniture")
	}
	return it, nil
}

func (s *CatalogService) Update(ctx context.Context, id uint64, in ItemInput) (*model.CatalogItem, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	it := model.CatalogItem{ID: id}
	in.apply(&it)
	err := s.store.Catalog().Update(ctx, &it)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "furniture %d not found", id)
	}
	if err != nil {
		return nil, internal(s.log, err, "update furniture")
	}
	s.cache.Invalidate(ctx)
	return s.Get(ctx, id)
}

// Delete removes one item.  Reservations keep their line items; reads
// show the item as missing.
func (s *CatalogService) Delete(ctx context.Context, id uint64) error {
	err := s.store.Catalog().Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.New(apperr.NotFound, "furniture %d not found", id)
	}
	if err != nil {
		return internal(s.log, err, "delete furniture")
	}
	s.cache.Invalidate(ctx)
	s.log.Info("furniture deleted", zap.Uint64("item_id", id))
	return nil
}

func (s *CatalogService) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.store.Catalog().DeleteAll(ctx)
	if err != nil {
		return 0, internal(s.log, err, "delete all furniture")
	}
	s.cache.Invalidate(ctx)
	s.log.Warn("catalog purged", zap.Int64("deleted", n))
	return n, nil
}
