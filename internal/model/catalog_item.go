package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultImageURL is used when a catalog item is created without an image.
const DefaultImageURL = "https://static.vecteezy.com/system/resources/previews/000/503/771/original/book-icon-design-vector.jpg"

// CatalogItem is a furniture item offered for reservation, as stored in
// the `catalog_items` table.  Stock is decremented when a reservation is
// created and incremented when one is cancelled; it never goes negative.
type CatalogItem struct {
	ID          uint64          `json:"id"`          // catalog_items.id
	Title       string          `json:"title"`       // catalog_items.title
	Description string          `json:"description"` // catalog_items.description
	ImageURL    string          `json:"image_url"`   // catalog_items.image_url
	Price       decimal.Decimal `json:"price"`       // catalog_items.price
	Stock       int             `json:"stock"`       // catalog_items.stock
	CreatedAt   time.Time       `json:"created_at"`  // catalog_items.created_at
	UpdatedAt   time.Time       `json:"updated_at"`  // catalog_items.updated_at
}

// ItemProjection is the read-only view of a catalog item attached to
// reservation line items for display.
type ItemProjection struct {
	ID       uint64          `json:"id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url"`
}

// Projection returns the display projection of the item.
func (c CatalogItem) Projection() *ItemProjection {
	return &ItemProjection{ID: c.ID, Title: c.Title, Price: c.Price, ImageURL: c.ImageURL}
}
