package catalog

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Size is a purchasable variant of a product. Stock is the contended counter:
// it is only ever mutated through the conditional increment/decrement queries
// in the repository, never read-modify-written.
type Size struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	VolumeLabel string          `json:"volume_label"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Stock       int             `json:"stock"`
	StockUnit   string          `json:"stock_unit"`
}

type Product struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	ImageURL      string    `json:"image_url"`
	RatingAverage float64   `json:"rating_average"`
	RatingCount   int       `json:"rating_count"`
	Active        bool      `json:"active"`
	Sizes         []Size    `json:"sizes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SizeByLabel returns the size entry matching label, or nil.
func (p *Product) SizeByLabel(label string) *Size {
	for i := range p.Sizes {
		if p.Sizes[i].VolumeLabel == label {
			return &p.Sizes[i]
		}
	}
	return nil
}

type Filters struct {
	Category   string
	Search     string
	ActiveOnly bool
	Offset     int
	Limit      int
}
