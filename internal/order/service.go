package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
	"github.com/vasiliy-maslov/attar-shop/internal/pricing"
)

const defaultPageSize = 20

var (
	ErrEmptyOrder        = errors.New("order: order must contain at least one item")
	ErrNotOwner          = errors.New("order: order belongs to another user")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

type ItemInput struct {
	ProductID   uuid.UUID
	VolumeLabel string
	Quantity    int
}

type PlaceOrderInput struct {
	Items         []ItemInput
	Shipping      Address
	PaymentMethod string
	CouponCode    string
}

// CartQuote is the result of a validate-cart call: the priced lines plus the
// quote, with nothing persisted.
type CartQuote struct {
	Items []Item        `json:"items"`
	Quote pricing.Quote `json:"quote"`
}

type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*Order, error)
	ValidateCart(ctx context.Context, items []ItemInput, couponCode string) (*CartQuote, error)
	GetOrder(ctx context.Context, requesterID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Order, int, error)
	AdminListOrders(ctx context.Context, f Filters) ([]Order, int, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) (*Order, error)
	AdminSetStatus(ctx context.Context, orderID uuid.UUID, status Status, message string) (*Order, error)
	AttachPaymentRef(ctx context.Context, orderID uuid.UUID, ref string) error
	MarkPaid(ctx context.Context, paymentRef string) error
	MarkPaymentFailed(ctx context.Context, paymentRef string) error
	HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type service struct {
	repo        Repository
	catalogRepo catalog.Repository
	coupons     pricing.Table
}

func NewService(repo Repository, catalogRepo catalog.Repository, coupons pricing.Table) Service {
	return &service{
		repo:        repo,
		catalogRepo: catalogRepo,
		coupons:     coupons,
	}
}

// buildLines validates every requested item against the catalog and snapshots
// name, image and the current unit price into order items.
func (s *service) buildLines(ctx context.Context, items []ItemInput) ([]Item, []pricing.LineInput, error) {
	if len(items) == 0 {
		return nil, nil, ErrEmptyOrder
	}

	orderItems := make([]Item, 0, len(items))
	lines := make([]pricing.LineInput, 0, len(items))

	for _, in := range items {
		if in.Quantity < 1 {
			return nil, nil, fmt.Errorf("order: quantity for product %s must be at least 1", in.ProductID)
		}

		product, err := s.catalogRepo.GetByID(ctx, in.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if !product.Active {
			return nil, nil, catalog.ErrProductNotFound
		}

		size := product.SizeByLabel(in.VolumeLabel)
		if size == nil {
			return nil, nil, catalog.ErrSizeNotFound
		}
		if size.Stock < in.Quantity {
			return nil, nil, catalog.ErrInsufficientStock
		}

		orderItems = append(orderItems, Item{
			ProductID:   product.ID,
			ProductName: product.Name,
			ImageURL:    product.ImageURL,
			VolumeLabel: size.VolumeLabel,
			UnitPrice:   size.UnitPrice,
			Quantity:    in.Quantity,
		})
		lines = append(lines, pricing.LineInput{UnitPrice: size.UnitPrice, Quantity: in.Quantity})
	}

	return orderItems, lines, nil
}

func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*Order, error) {
	orderItems, lines, err := s.buildLines(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	coupon, err := s.coupons.Resolve(input.CouponCode)
	if err != nil {
		return nil, err
	}
	quote := pricing.Compute(lines, coupon)

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("order: failed to generate order ID: %w", err)
	}

	o := &Order{
		ID:          orderID,
		UserID:      userID,
		Status:      StatusPending,
		Items:       orderItems,
		Shipping:    input.Shipping,
		Subtotal:    quote.Subtotal,
		ShippingFee: quote.Shipping,
		Tax:         quote.Tax,
		Discount:    quote.Discount,
		Total:       quote.Total,
		CouponCode:  input.CouponCode,
		Payment: Payment{
			Method: input.PaymentMethod,
			Status: PaymentUnpaid,
		},
	}

	// Order record, items, seed history and every conditional stock decrement
	// commit in one transaction: a failed decrement aborts the whole order.
	err = s.repo.Create(ctx, o, func(ctx context.Context, q catalog.Querier) error {
		for _, item := range o.Items {
			if err := s.catalogRepo.DecrementStock(ctx, q, item.ProductID, item.VolumeLabel, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) || errors.Is(err, catalog.ErrSizeNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to place order")
		return nil, fmt.Errorf("service: failed to place order: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Int64("order_number", o.Number).
		Stringer("user_id", userID).
		Str("total", o.Total.String()).
		Msg("service: order placed")
	return o, nil
}

func (s *service) ValidateCart(ctx context.Context, items []ItemInput, couponCode string) (*CartQuote, error) {
	orderItems, lines, err := s.buildLines(ctx, items)
	if err != nil {
		return nil, err
	}

	coupon, err := s.coupons.Resolve(couponCode)
	if err != nil {
		return nil, err
	}

	return &CartQuote{Items: orderItems, Quote: pricing.Compute(lines, coupon)}, nil
}

func (s *service) GetOrder(ctx context.Context, requesterID uuid.UUID, isAdmin bool, orderID uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	if !isAdmin && o.UserID != requesterID {
		return nil, ErrNotOwner
	}
	return o, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Order, int, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	orders, total, err := s.repo.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to list user orders")
		return nil, 0, fmt.Errorf("service: failed to list user orders: %w", err)
	}
	return orders, total, nil
}

func (s *service) AdminListOrders(ctx context.Context, f Filters) ([]Order, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("order: unknown status %q", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = defaultPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	orders, total, err := s.repo.List(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, 0, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (s *service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order for cancellation: %w", err)
	}
	if o.UserID != userID {
		return nil, ErrNotOwner
	}
	if !CanCustomerCancel(o.Status) {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("status", o.Status).
			Msg("service: cancellation rejected for current status")
		return nil, ErrInvalidTransition
	}

	message := "cancelled by customer"
	if reason != "" {
		message = "cancelled by customer: " + reason
	}

	// CAS against the status read above; stock restoration rides the same
	// transaction. A concurrent webhook confirming the order makes this fail
	// with ErrStaleTransition instead of restoring stock for a live order.
	err = s.repo.TransitionStatus(ctx, TransitionParams{
		OrderID:    orderID,
		From:       o.Status,
		To:         StatusCancelled,
		Message:    message,
		ApplyStock: s.restoreStock(o.Items),
	})
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			return nil, ErrInvalidTransition
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to cancel order")
		return nil, fmt.Errorf("service: failed to cancel order: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Msg("service: order cancelled")
	return s.repo.GetByID(ctx, orderID)
}

func (s *service) restoreStock(items []Item) StockFunc {
	return func(ctx context.Context, q catalog.Querier) error {
		for _, item := range items {
			if err := s.catalogRepo.IncrementStock(ctx, q, item.ProductID, item.VolumeLabel, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	}
}

func (s *service) AdminSetStatus(ctx context.Context, orderID uuid.UUID, status Status, message string) (*Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("order: unknown status %q", status)
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order for status update: %w", err)
	}
	if o.Status == status {
		return o, nil
	}

	p := TransitionParams{
		OrderID: orderID,
		From:    o.Status,
		To:      status,
		Message: message,
	}
	// Delivery confirms payment receipt for pay-on-delivery methods.
	if status == StatusDelivered {
		p.StampPaidAt = true
		p.PaymentStatus = PaymentPaid
	}
	// Cancellation is the only transition that touches stock.
	if status == StatusCancelled {
		p.ApplyStock = s.restoreStock(o.Items)
	}
	if status == StatusRefunded {
		p.PaymentStatus = PaymentRefunded
	}

	if err := s.repo.TransitionStatus(ctx, p); err != nil {
		if errors.Is(err, ErrStaleTransition) {
			return nil, ErrInvalidTransition
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", status).Msg("service: failed to set order status")
		return nil, fmt.Errorf("service: failed to set order status: %w", err)
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("old_status", o.Status).
		Stringer("new_status", status).
		Msg("service: order status updated")
	return s.repo.GetByID(ctx, orderID)
}

func (s *service) AttachPaymentRef(ctx context.Context, orderID uuid.UUID, ref string) error {
	if err := s.repo.SetPaymentRef(ctx, orderID, ref); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to attach payment ref: %w", err)
	}
	return nil
}

// MarkPaid maps a gateway payment reference back to its order and confirms
// it. An order already past pending keeps its status; an already-cancelled
// order records nothing (the webhook lost the race on purpose).
func (s *service) MarkPaid(ctx context.Context, paymentRef string) error {
	o, err := s.repo.GetByPaymentRef(ctx, paymentRef)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to resolve payment ref: %w", err)
	}
	if o.Status != StatusPending {
		log.Warn().
			Stringer("order_id", o.ID).
			Stringer("status", o.Status).
			Msg("service: payment webhook for order no longer pending")
		return nil
	}

	err = s.repo.TransitionStatus(ctx, TransitionParams{
		OrderID:       o.ID,
		From:          StatusPending,
		To:            StatusConfirmed,
		Message:       "payment received",
		PaymentStatus: PaymentPaid,
		StampPaidAt:   true,
	})
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			// Lost the race against a cancellation; nothing to do.
			return nil
		}
		return fmt.Errorf("service: failed to confirm paid order: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Msg("service: order confirmed after payment")
	return nil
}

func (s *service) MarkPaymentFailed(ctx context.Context, paymentRef string) error {
	o, err := s.repo.GetByPaymentRef(ctx, paymentRef)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to resolve payment ref: %w", err)
	}

	err = s.repo.TransitionStatus(ctx, TransitionParams{
		OrderID:       o.ID,
		From:          o.Status,
		To:            o.Status,
		Message:       "payment failed",
		PaymentStatus: PaymentFailed,
	})
	if err != nil && !errors.Is(err, ErrStaleTransition) {
		return fmt.Errorf("service: failed to record failed payment: %w", err)
	}

	log.Warn().Stringer("order_id", o.ID).Msg("service: payment failed")
	return nil
}

func (s *service) HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	return s.repo.HasDeliveredProduct(ctx, userID, productID)
}
