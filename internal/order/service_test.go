package order_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
	"github.com/vasiliy-maslov/attar-shop/internal/order"
	"github.com/vasiliy-maslov/attar-shop/internal/pricing"
)

type mockOrderRepository struct {
	createFunc              func(ctx context.Context, o *order.Order, applyStock order.StockFunc) error
	getByIDFunc             func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	getByPaymentRefFunc     func(ctx context.Context, ref string) (*order.Order, error)
	listByUserFunc          func(ctx context.Context, userID uuid.UUID, offset, limit int) ([]order.Order, int, error)
	listFunc                func(ctx context.Context, f order.Filters) ([]order.Order, int, error)
	transitionStatusFunc    func(ctx context.Context, p order.TransitionParams) error
	setPaymentRefFunc       func(ctx context.Context, orderID uuid.UUID, ref string) error
	hasDeliveredProductFunc func(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

func (m *mockOrderRepository) Create(ctx context.Context, o *order.Order, applyStock order.StockFunc) error {
	return m.createFunc(ctx, o, applyStock)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderRepository) GetByPaymentRef(ctx context.Context, ref string) (*order.Order, error) {
	return m.getByPaymentRefFunc(ctx, ref)
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]order.Order, int, error) {
	return m.listByUserFunc(ctx, userID, offset, limit)
}

func (m *mockOrderRepository) List(ctx context.Context, f order.Filters) ([]order.Order, int, error) {
	return m.listFunc(ctx, f)
}

func (m *mockOrderRepository) TransitionStatus(ctx context.Context, p order.TransitionParams) error {
	return m.transitionStatusFunc(ctx, p)
}

func (m *mockOrderRepository) SetPaymentRef(ctx context.Context, orderID uuid.UUID, ref string) error {
	return m.setPaymentRefFunc(ctx, orderID, ref)
}

func (m *mockOrderRepository) HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	return m.hasDeliveredProductFunc(ctx, userID, productID)
}

// stockMove records one stock mutation performed through the mock catalog.
type stockMove struct {
	productID uuid.UUID
	label     string
	qty       int
}

type mockCatalogRepository struct {
	products   map[uuid.UUID]*catalog.Product
	decrements []stockMove
	increments []stockMove
}

func (m *mockCatalogRepository) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *mockCatalogRepository) List(ctx context.Context, f catalog.Filters) ([]catalog.Product, int, error) {
	return nil, 0, nil
}

func (m *mockCatalogRepository) Create(ctx context.Context, p *catalog.Product) error  { return nil }
func (m *mockCatalogRepository) Update(ctx context.Context, p *catalog.Product) error  { return nil }
func (m *mockCatalogRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return nil
}
func (m *mockCatalogRepository) UpdateRating(ctx context.Context, id uuid.UUID, average float64, count int) error {
	return nil
}

func (m *mockCatalogRepository) DecrementStock(ctx context.Context, q catalog.Querier, productID uuid.UUID, label string, qty int) error {
	m.decrements = append(m.decrements, stockMove{productID, label, qty})
	return nil
}

func (m *mockCatalogRepository) IncrementStock(ctx context.Context, q catalog.Querier, productID uuid.UUID, label string, qty int) error {
	m.increments = append(m.increments, stockMove{productID, label, qty})
	return nil
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV4()
	require.NoError(t, err)
	return id
}

func testProduct(t *testing.T, stock int) *catalog.Product {
	t.Helper()
	id := mustUUID(t)
	return &catalog.Product{
		ID:       id,
		Name:     "Oud Royale",
		Category: "attar",
		Active:   true,
		Sizes: []catalog.Size{
			{ProductID: id, VolumeLabel: "12ml", UnitPrice: decimal.NewFromInt(30), Stock: stock, StockUnit: "bottle"},
		},
	}
}

func coupons() pricing.Table {
	return pricing.Table{
		"WELCOME10": {Code: "WELCOME10", Effect: pricing.EffectPercentage, Value: decimal.NewFromInt(10)},
	}
}

func TestServicePlaceOrder(t *testing.T) {
	userID := uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))

	t.Run("successful_placement", func(t *testing.T) {
		product := testProduct(t, 5)
		catalogRepo := &mockCatalogRepository{products: map[uuid.UUID]*catalog.Product{product.ID: product}}

		var created *order.Order
		repo := &mockOrderRepository{
			createFunc: func(ctx context.Context, o *order.Order, applyStock order.StockFunc) error {
				created = o
				return applyStock(ctx, nil)
			},
		}

		svc := order.NewService(repo, catalogRepo, coupons())
		placed, err := svc.PlaceOrder(context.Background(), userID, order.PlaceOrderInput{
			Items:         []order.ItemInput{{ProductID: product.ID, VolumeLabel: "12ml", Quantity: 2}},
			PaymentMethod: "card",
		})
		require.NoError(t, err)
		require.NotNil(t, created)

		assert.Equal(t, order.StatusPending, placed.Status)
		assert.Equal(t, order.PaymentUnpaid, placed.Payment.Status)
		require.Len(t, placed.Items, 1)
		assert.Equal(t, "Oud Royale", placed.Items[0].ProductName)
		assert.True(t, placed.Items[0].UnitPrice.Equal(decimal.NewFromInt(30)))

		// 2 x 30 = 60 subtotal, 9.99 shipping, 3.00 tax.
		assert.True(t, placed.Subtotal.Equal(decimal.NewFromInt(60)), "subtotal %s", placed.Subtotal)
		assert.True(t, placed.Total.Equal(decimal.RequireFromString("72.99")), "total %s", placed.Total)

		expected := placed.Subtotal.Add(placed.ShippingFee).Add(placed.Tax).Sub(placed.Discount)
		assert.True(t, placed.Total.Equal(expected))

		require.Len(t, catalogRepo.decrements, 1)
		assert.Equal(t, stockMove{product.ID, "12ml", 2}, catalogRepo.decrements[0])
	})

	t.Run("insufficient_stock_leaves_everything_untouched", func(t *testing.T) {
		product := testProduct(t, 1)
		catalogRepo := &mockCatalogRepository{products: map[uuid.UUID]*catalog.Product{product.ID: product}}

		createCalled := false
		repo := &mockOrderRepository{
			createFunc: func(ctx context.Context, o *order.Order, applyStock order.StockFunc) error {
				createCalled = true
				return nil
			},
		}

		svc := order.NewService(repo, catalogRepo, coupons())
		_, err := svc.PlaceOrder(context.Background(), userID, order.PlaceOrderInput{
			Items:         []order.ItemInput{{ProductID: product.ID, VolumeLabel: "12ml", Quantity: 3}},
			PaymentMethod: "card",
		})

		assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
		assert.False(t, createCalled, "no order record may be written")
		assert.Empty(t, catalogRepo.decrements, "no stock may be decremented")
	})

	t.Run("inactive_product_is_not_found", func(t *testing.T) {
		product := testProduct(t, 5)
		product.Active = false
		catalogRepo := &mockCatalogRepository{products: map[uuid.UUID]*catalog.Product{product.ID: product}}
		repo := &mockOrderRepository{}

		svc := order.NewService(repo, catalogRepo, coupons())
		_, err := svc.PlaceOrder(context.Background(), userID, order.PlaceOrderInput{
			Items:         []order.ItemInput{{ProductID: product.ID, VolumeLabel: "12ml", Quantity: 1}},
			PaymentMethod: "card",
		})

		assert.ErrorIs(t, err, catalog.ErrProductNotFound)
	})

	t.Run("unknown_size_rejected", func(t *testing.T) {
		product := testProduct(t, 5)
		catalogRepo := &mockCatalogRepository{products: map[uuid.UUID]*catalog.Product{product.ID: product}}
		repo := &mockOrderRepository{}

		svc := order.NewService(repo, catalogRepo, coupons())
		_, err := svc.PlaceOrder(context.Background(), userID, order.PlaceOrderInput{
			Items:         []order.ItemInput{{ProductID: product.ID, VolumeLabel: "50ml", Quantity: 1}},
			PaymentMethod: "card",
		})

		assert.ErrorIs(t, err, catalog.ErrSizeNotFound)
	})

	t.Run("unknown_coupon_rejected_before_any_write", func(t *testing.T) {
		product := testProduct(t, 5)
		catalogRepo := &mockCatalogRepository{products: map[uuid.UUID]*catalog.Product{product.ID: product}}

		createCalled := false
		repo := &mockOrderRepository{
			createFunc: func(ctx context.Context, o *order.Order, applyStock order.StockFunc) error {
				createCalled = true
				return nil
			},
		}

		svc := order.NewService(repo, catalogRepo, coupons())
		_, err := svc.PlaceOrder(context.Background(), userID, order.PlaceOrderInput{
			Items:         []order.ItemInput{{ProductID: product.ID, VolumeLabel: "12ml", Quantity: 1}},
			PaymentMethod: "card",
			CouponCode:    "NOPE",
		})

		assert.ErrorIs(t, err, pricing.ErrInvalidCoupon)
		assert.False(t, createCalled)
	})

	t.Run("empty_order_rejected", func(t *testing.T) {
		svc := order.NewService(&mockOrderRepository{}, &mockCatalogRepository{}, coupons())
		_, err := svc.PlaceOrder(context.Background(), userID, order.PlaceOrderInput{PaymentMethod: "card"})
		assert.ErrorIs(t, err, order.ErrEmptyOrder)
	})
}

func TestServiceCancelOrder(t *testing.T) {
	userID := uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))
	otherUser := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	newOrder := func(t *testing.T, status order.Status) *order.Order {
		t.Helper()
		productID := mustUUID(t)
		return &order.Order{
			ID:     mustUUID(t),
			UserID: userID,
			Status: status,
			Items: []order.Item{
				{ProductID: productID, VolumeLabel: "12ml", Quantity: 2},
				{ProductID: productID, VolumeLabel: "24ml", Quantity: 1},
			},
		}
	}

	t.Run("cancel_pending_restores_stock", func(t *testing.T) {
		o := newOrder(t, order.StatusPending)
		catalogRepo := &mockCatalogRepository{}

		var transition order.TransitionParams
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				transition = p
				return p.ApplyStock(ctx, nil)
			},
		}

		svc := order.NewService(repo, catalogRepo, coupons())
		_, err := svc.CancelOrder(context.Background(), userID, o.ID, "changed my mind")
		require.NoError(t, err)

		assert.Equal(t, order.StatusPending, transition.From)
		assert.Equal(t, order.StatusCancelled, transition.To)

		require.Len(t, catalogRepo.increments, 2)
		assert.Equal(t, stockMove{o.Items[0].ProductID, "12ml", 2}, catalogRepo.increments[0])
		assert.Equal(t, stockMove{o.Items[1].ProductID, "24ml", 1}, catalogRepo.increments[1])
	})

	t.Run("cancel_confirmed_is_legal", func(t *testing.T) {
		o := newOrder(t, order.StatusConfirmed)
		catalogRepo := &mockCatalogRepository{}
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				return p.ApplyStock(ctx, nil)
			},
		}

		svc := order.NewService(repo, catalogRepo, coupons())
		_, err := svc.CancelOrder(context.Background(), userID, o.ID, "")
		assert.NoError(t, err)
	})

	t.Run("cancel_shipped_is_conflict_without_stock_mutation", func(t *testing.T) {
		o := newOrder(t, order.StatusShipped)
		catalogRepo := &mockCatalogRepository{}

		transitionCalled := false
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				transitionCalled = true
				return nil
			},
		}

		svc := order.NewService(repo, catalogRepo, coupons())
		_, err := svc.CancelOrder(context.Background(), userID, o.ID, "")

		assert.ErrorIs(t, err, order.ErrInvalidTransition)
		assert.False(t, transitionCalled)
		assert.Empty(t, catalogRepo.increments)
	})

	t.Run("cancel_by_non_owner_is_forbidden", func(t *testing.T) {
		o := newOrder(t, order.StatusPending)
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
		}

		svc := order.NewService(repo, &mockCatalogRepository{}, coupons())
		_, err := svc.CancelOrder(context.Background(), otherUser, o.ID, "")
		assert.ErrorIs(t, err, order.ErrNotOwner)
	})

	t.Run("concurrent_confirmation_wins_the_race", func(t *testing.T) {
		o := newOrder(t, order.StatusPending)
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				return order.ErrStaleTransition
			},
		}

		svc := order.NewService(repo, &mockCatalogRepository{}, coupons())
		_, err := svc.CancelOrder(context.Background(), userID, o.ID, "")
		assert.ErrorIs(t, err, order.ErrInvalidTransition)
	})
}

func TestServiceAdminSetStatus(t *testing.T) {
	t.Run("delivered_stamps_payment", func(t *testing.T) {
		o := &order.Order{ID: mustUUID(t), Status: order.StatusShipped}

		var transition order.TransitionParams
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				transition = p
				return nil
			},
		}

		svc := order.NewService(repo, &mockCatalogRepository{}, coupons())
		_, err := svc.AdminSetStatus(context.Background(), o.ID, order.StatusDelivered, "left at door")
		require.NoError(t, err)

		assert.True(t, transition.StampPaidAt)
		assert.Equal(t, order.PaymentPaid, transition.PaymentStatus)
		assert.Nil(t, transition.ApplyStock)
	})

	t.Run("admin_cancel_restores_stock", func(t *testing.T) {
		productID := mustUUID(t)
		o := &order.Order{
			ID:     mustUUID(t),
			Status: order.StatusProcessing,
			Items:  []order.Item{{ProductID: productID, VolumeLabel: "12ml", Quantity: 4}},
		}
		catalogRepo := &mockCatalogRepository{}
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				return p.ApplyStock(ctx, nil)
			},
		}

		svc := order.NewService(repo, catalogRepo, coupons())
		_, err := svc.AdminSetStatus(context.Background(), o.ID, order.StatusCancelled, "fraud check failed")
		require.NoError(t, err)

		require.Len(t, catalogRepo.increments, 1)
		assert.Equal(t, stockMove{productID, "12ml", 4}, catalogRepo.increments[0])
	})

	t.Run("same_status_is_a_noop", func(t *testing.T) {
		o := &order.Order{ID: mustUUID(t), Status: order.StatusShipped}
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				t.Fatal("transition must not be called")
				return nil
			},
		}

		svc := order.NewService(repo, &mockCatalogRepository{}, coupons())
		got, err := svc.AdminSetStatus(context.Background(), o.ID, order.StatusShipped, "")
		require.NoError(t, err)
		assert.Equal(t, o, got)
	})

	t.Run("unknown_status_rejected", func(t *testing.T) {
		svc := order.NewService(&mockOrderRepository{}, &mockCatalogRepository{}, coupons())
		_, err := svc.AdminSetStatus(context.Background(), uuid.Nil, order.Status("misplaced"), "")
		assert.Error(t, err)
	})
}

func TestServiceMarkPaid(t *testing.T) {
	t.Run("pending_order_confirms", func(t *testing.T) {
		o := &order.Order{ID: mustUUID(t), Status: order.StatusPending}

		var transition order.TransitionParams
		repo := &mockOrderRepository{
			getByPaymentRefFunc: func(ctx context.Context, ref string) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				transition = p
				return nil
			},
		}

		svc := order.NewService(repo, &mockCatalogRepository{}, coupons())
		require.NoError(t, svc.MarkPaid(context.Background(), "pi_123"))

		assert.Equal(t, order.StatusConfirmed, transition.To)
		assert.Equal(t, order.PaymentPaid, transition.PaymentStatus)
		assert.True(t, transition.StampPaidAt)
	})

	t.Run("cancelled_order_is_left_alone", func(t *testing.T) {
		o := &order.Order{ID: mustUUID(t), Status: order.StatusCancelled}
		repo := &mockOrderRepository{
			getByPaymentRefFunc: func(ctx context.Context, ref string) (*order.Order, error) { return o, nil },
			transitionStatusFunc: func(ctx context.Context, p order.TransitionParams) error {
				t.Fatal("transition must not be called")
				return nil
			},
		}

		svc := order.NewService(repo, &mockCatalogRepository{}, coupons())
		assert.NoError(t, svc.MarkPaid(context.Background(), "pi_123"))
	})

	t.Run("unknown_ref_is_not_found", func(t *testing.T) {
		repo := &mockOrderRepository{
			getByPaymentRefFunc: func(ctx context.Context, ref string) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
		}

		svc := order.NewService(repo, &mockCatalogRepository{}, coupons())
		assert.ErrorIs(t, svc.MarkPaid(context.Background(), "pi_missing"), order.ErrOrderNotFound)
	})
}

func TestServiceValidateCart(t *testing.T) {
	product := testProduct(t, 10)
	catalogRepo := &mockCatalogRepository{products: map[uuid.UUID]*catalog.Product{product.ID: product}}

	svc := order.NewService(&mockOrderRepository{}, catalogRepo, coupons())
	quote, err := svc.ValidateCart(context.Background(),
		[]order.ItemInput{{ProductID: product.ID, VolumeLabel: "12ml", Quantity: 2}}, "WELCOME10")
	require.NoError(t, err)

	// Nothing is persisted and no stock moves.
	assert.Empty(t, catalogRepo.decrements)
	assert.True(t, quote.Quote.Subtotal.Equal(decimal.NewFromInt(60)))
	assert.True(t, quote.Quote.Discount.Equal(decimal.NewFromInt(6)))
	require.Len(t, quote.Items, 1)
	assert.Equal(t, "Oud Royale", quote.Items[0].ProductName)
}
