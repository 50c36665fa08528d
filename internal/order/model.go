package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type Address struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Item is a snapshot of a product size at order time. Name, image and price
// are captured here so later catalog edits never change an existing order.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	ImageURL    string          `json:"image_url"`
	VolumeLabel string          `json:"volume_label"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

// HistoryEntry is one row of the append-only status audit log.
type HistoryEntry struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Payment struct {
	Method string        `json:"method"`
	Status PaymentStatus `json:"status"`
	Ref    string        `json:"ref,omitempty"`
	PaidAt *time.Time    `json:"paid_at,omitempty"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	Number          int64           `json:"number"`
	UserID          uuid.UUID       `json:"user_id"`
	Status          Status          `json:"status"`
	Items           []Item          `json:"items"`
	Shipping        Address         `json:"shipping_address"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	Payment         Payment         `json:"payment"`
	TrackingCarrier string          `json:"tracking_carrier,omitempty"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	History         []HistoryEntry  `json:"history"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Filters struct {
	Status Status
	UserID uuid.UUID
	Offset int
	Limit  int
}
