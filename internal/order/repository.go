package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
)

var (
	ErrOrderNotFound   = errors.New("order: order not found")
	ErrStaleTransition = errors.New("order: order status changed concurrently")
)

// StockFunc runs inside the same transaction as the order write, so stock
// mutations and the order record commit or roll back together.
type StockFunc func(ctx context.Context, q catalog.Querier) error

// TransitionParams describes one status change. From is the status the caller
// observed; the update is a compare-and-swap against it, which serializes
// concurrent cancellations and payment-webhook updates on the same order.
type TransitionParams struct {
	OrderID       uuid.UUID
	From          Status
	To            Status
	Message       string
	PaymentStatus PaymentStatus // empty means leave unchanged
	StampPaidAt   bool          // set paid_at if currently null
	ApplyStock    StockFunc     // nil means no stock mutation
}

type Repository interface {
	Create(ctx context.Context, o *Order, applyStock StockFunc) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByPaymentRef(ctx context.Context, ref string) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Order, int, error)
	List(ctx context.Context, f Filters) ([]Order, int, error)
	TransitionStatus(ctx context.Context, p TransitionParams) error
	SetPaymentRef(ctx context.Context, orderID uuid.UUID, ref string) error
	HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, order_number, user_id, status,
	shipping_name, shipping_street, shipping_city, shipping_postal_code, shipping_country,
	subtotal, shipping_fee, tax, discount, total, coupon_code,
	payment_method, payment_status, payment_ref, paid_at,
	tracking_carrier, tracking_number, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.Number,
		&o.UserID,
		&o.Status,
		&o.Shipping.Name,
		&o.Shipping.Street,
		&o.Shipping.City,
		&o.Shipping.PostalCode,
		&o.Shipping.Country,
		&o.Subtotal,
		&o.ShippingFee,
		&o.Tax,
		&o.Discount,
		&o.Total,
		&o.CouponCode,
		&o.Payment.Method,
		&o.Payment.Status,
		&o.Payment.Ref,
		&o.Payment.PaidAt,
		&o.TrackingCarrier,
		&o.TrackingNumber,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order, applyStock StockFunc) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback order creation")
			}
		}
	}()

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	queryOrder := `
		INSERT INTO orders (id, user_id, status,
			shipping_name, shipping_street, shipping_city, shipping_postal_code, shipping_country,
			subtotal, shipping_fee, tax, discount, total, coupon_code,
			payment_method, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING order_number
	`
	err = tx.QueryRow(ctx, queryOrder,
		o.ID,
		o.UserID,
		o.Status,
		o.Shipping.Name,
		o.Shipping.Street,
		o.Shipping.City,
		o.Shipping.PostalCode,
		o.Shipping.Country,
		o.Subtotal,
		o.ShippingFee,
		o.Tax,
		o.Discount,
		o.Total,
		o.CouponCode,
		o.Payment.Method,
		o.Payment.Status,
		o.CreatedAt,
		o.UpdatedAt,
	).Scan(&o.Number)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, product_name, image_url, volume_label, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i := range o.Items {
		item := &o.Items[i]
		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			err = fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
			return err
		}
		item.ID = itemID
		item.OrderID = o.ID

		_, err = tx.Exec(ctx, queryItem,
			item.ID, item.OrderID, item.ProductID, item.ProductName,
			item.ImageURL, item.VolumeLabel, item.UnitPrice, item.Quantity)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	if err = appendHistory(ctx, tx, o.ID, o.Status, "order placed", now); err != nil {
		return err
	}
	o.History = []HistoryEntry{{OrderID: o.ID, Status: o.Status, Message: "order placed", CreatedAt: now}}

	if applyStock != nil {
		if err = applyStock(ctx, tx); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func appendHistory(ctx context.Context, q catalog.Querier, orderID uuid.UUID, status Status, message string, at time.Time) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate history ID: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO order_status_history (id, order_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, orderID, status, message, at)
	if err != nil {
		return fmt.Errorf("repository: failed to append status history for order %s: %w", orderID, err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}

	if err := r.loadDetails(ctx, map[uuid.UUID]*Order{o.ID: o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) GetByPaymentRef(ctx context.Context, ref string) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_ref = $1`, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by payment ref: %w", err)
	}

	if err := r.loadDetails(ctx, map[uuid.UUID]*Order{o.ID: o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Order, int, error) {
	return r.List(ctx, Filters{UserID: userID, Offset: offset, Limit: limit})
}

func (r *postgresRepository) List(ctx context.Context, f Filters) ([]Order, int, error) {
	conditions := []string{}
	args := []any{}

	if f.UserID != uuid.Nil {
		args = append(args, f.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var ordered []uuid.UUID
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		ordersMap[o.ID] = o
		ordered = append(ordered, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(ordered) > 0 {
		if err := r.loadDetails(ctx, ordersMap); err != nil {
			return nil, 0, err
		}
	}

	result := make([]Order, 0, len(ordered))
	for _, id := range ordered {
		result = append(result, *ordersMap[id])
	}
	return result, total, nil
}

// loadDetails attaches items and status history to every order in the map.
func (r *postgresRepository) loadDetails(ctx context.Context, orders map[uuid.UUID]*Order) error {
	ids := make([]uuid.UUID, 0, len(orders))
	for id, o := range orders {
		ids = append(ids, id)
		o.Items = []Item{}
		o.History = []HistoryEntry{}
	}

	itemRows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, image_url, volume_label, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item Item
		err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
			&item.ImageURL, &item.VolumeLabel, &item.UnitPrice, &item.Quantity)
		if err != nil {
			return fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		if o, ok := orders[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating order items: %w", err)
	}

	historyRows, err := r.db.Query(ctx, `
		SELECT id, order_id, status, message, created_at
		FROM order_status_history
		WHERE order_id = ANY($1)
		ORDER BY created_at
	`, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to query status history: %w", err)
	}
	defer historyRows.Close()

	for historyRows.Next() {
		var entry HistoryEntry
		if err := historyRows.Scan(&entry.ID, &entry.OrderID, &entry.Status, &entry.Message, &entry.CreatedAt); err != nil {
			return fmt.Errorf("repository: failed to scan status history: %w", err)
		}
		if o, ok := orders[entry.OrderID]; ok {
			o.History = append(o.History, entry)
		}
	}
	if err := historyRows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating status history: %w", err)
	}

	return nil
}

func (r *postgresRepository) TransitionStatus(ctx context.Context, p TransitionParams) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", p.OrderID).Msg("repository: failed to rollback status transition")
			}
		}
	}()

	now := time.Now().UTC()

	sets := []string{"status = $1", "updated_at = $2"}
	args := []any{p.To, now}
	if p.PaymentStatus != "" {
		args = append(args, p.PaymentStatus)
		sets = append(sets, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if p.StampPaidAt {
		args = append(args, now)
		sets = append(sets, fmt.Sprintf("paid_at = COALESCE(paid_at, $%d)", len(args)))
	}

	args = append(args, p.OrderID, p.From)
	query := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $%d AND status = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	cmdTag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s status: %w", p.OrderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Either the order vanished or the CAS lost: tell them apart.
		var exists bool
		if scanErr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, p.OrderID).Scan(&exists); scanErr != nil {
			err = fmt.Errorf("repository: failed to check order existence: %w", scanErr)
			return err
		}
		if !exists {
			err = ErrOrderNotFound
			return err
		}
		err = ErrStaleTransition
		return err
	}

	if err = appendHistory(ctx, tx, p.OrderID, p.To, p.Message, now); err != nil {
		return err
	}

	if p.ApplyStock != nil {
		if err = p.ApplyStock(ctx, tx); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) SetPaymentRef(ctx context.Context, orderID uuid.UUID, ref string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE orders SET payment_ref = $1, updated_at = $2 WHERE id = $3`,
		ref, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to set payment ref for order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// HasDeliveredProduct reports whether the user has a delivered order
// containing the product. Reviews use it for the verified-purchase flag.
func (r *postgresRepository) HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM orders o
			JOIN order_items i ON i.order_id = o.id
			WHERE o.user_id = $1 AND o.status = $2 AND i.product_id = $3
		)
	`, userID, StatusDelivered, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check delivered purchase: %w", err)
	}
	return exists, nil
}
