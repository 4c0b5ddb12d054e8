package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/furniture-reservation/internal/model"
)

// nowUTC is the clock used for timestamps written by the SQL repositories.
// MySQL DATETIME(6) keeps microseconds, so values are truncated to match
// what a read returns.
var nowUTC = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

const (
	catalogColumns = `id, title, description, image_url, price, stock, created_at, updated_at`

	qCatalogInsert = `INSERT INTO catalog_items (title, description, image_url, price, stock, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	qCatalogByID   = `SELECT ` + catalogColumns + ` FROM catalog_items WHERE id = ?`
	qCatalogList   = `SELECT ` + catalogColumns + ` FROM catalog_items ORDER BY created_at DESC, id DESC`
	qCatalogByIDs  = `SELECT ` + catalogColumns + ` FROM catalog_items WHERE id IN (`
	qCatalogUpdate = `UPDATE catalog_items SET title = ?, description = ?, image_url = ?, price = ?, stock = ?, updated_at = ? WHERE id = ?`
	qCatalogDelete = `DELETE FROM catalog_items WHERE id = ?`
	qCatalogPurge  = `DELETE FROM catalog_items`

	// The guard in the WHERE clause makes check-and-decrement one atomic
	// step: concurrent reservations can never drive stock negative.
	qCatalogDecrement = `UPDATE catalog_items SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`
	qCatalogIncrement = `UPDATE catalog_items SET stock = stock + ?, updated_at = ? WHERE id = ?`
)

// CatalogRepo is the MySQL implementation of CatalogRepository.
type CatalogRepo struct {
	db dbtx
}

// NewCatalogRepo returns a CatalogRepo bound to db (a *sql.DB or *sql.Tx).
func NewCatalogRepo(db dbtx) *CatalogRepo { return &CatalogRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCatalogItem(s rowScanner) (model.CatalogItem, error) {
	var it model.CatalogItem
	err := s.Scan(&it.ID, &it.Title, &it.Description, &it.ImageURL, &it.Price, &it.Stock, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

// Create inserts item and fills in its ID and timestamps.
func (r *CatalogRepo) Create(ctx context.Context, item *model.CatalogItem) error {
	now := nowUTC()
	res, err := r.db.ExecContext(ctx, qCatalogInsert,
		item.Title, item.Description, item.ImageURL, item.Price, item.Stock, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = uint64(id)
	item.CreatedAt, item.UpdatedAt = now, now
	return nil
}

// GetByID returns ErrNotFound when no item has the id.
func (r *CatalogRepo) GetByID(ctx context.Context, id uint64) (*model.CatalogItem, error) {
	it, err := scanCatalogItem(r.db.QueryRowContext(ctx, qCatalogByID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetByIDs loads the items that exist among ids, keyed by id.  Missing ids
// are simply absent from the map.
func (r *CatalogRepo) GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.CatalogItem, error) {
	out := make(map[uint64]model.CatalogItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, qCatalogByIDs+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		out[it.ID] = it
	}
	return out, rows.Err()
}

// List returns every item, newest first.
func (r *CatalogRepo) List(ctx context.Context) ([]model.CatalogItem, error) {
	rows, err := r.db.QueryContext(ctx, qCatalogList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []model.CatalogItem{}
	for rows.Next() {
		it, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Update replaces the mutable fields of the item.  UpdatedAt is refreshed
// on item; CreatedAt is left as the caller supplied it.
func (r *CatalogRepo) Update(ctx context.Context, item *model.CatalogItem) error {
	now := nowUTC()
	res, err := r.db.ExecContext(ctx, qCatalogUpdate,
		item.Title, item.Description, item.ImageURL, item.Price, item.Stock, now, item.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// updated_at always changes, so no affected row means no such id.
		return ErrNotFound
	}
	item.UpdatedAt = now
	return nil
}

// Delete removes one item.  Reservations referencing it are left intact.
func (r *CatalogRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, qCatalogDelete, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every item and returns how many were deleted.
func (r *CatalogRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, qCatalogPurge)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DecrementStock reports whether the conditional decrement applied.
func (r *CatalogRepo) DecrementStock(ctx context.Context, id uint64, qty int) (bool, error) {
	res, err := r.db.ExecContext(ctx, qCatalogDecrement, qty, nowUTC(), id, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IncrementStock reports false when the item no longer exists.
func (r *CatalogRepo) IncrementStock(ctx context.Context, id uint64, qty int) (bool, error) {
	res, err := r.db.ExecContext(ctx, qCatalogIncrement, qty, nowUTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
