package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProductNotFound   = errors.New("catalog: product not found")
	ErrSizeNotFound      = errors.New("catalog: size not found for product")
	ErrInsufficientStock = errors.New("catalog: insufficient stock")
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the stock
// primitives can run inside the order workflow's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	List(ctx context.Context, f Filters) ([]Product, int, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	UpdateRating(ctx context.Context, id uuid.UUID, average float64, count int) error
	DecrementStock(ctx context.Context, q Querier, productID uuid.UUID, volumeLabel string, qty int) error
	IncrementStock(ctx context.Context, q Querier, productID uuid.UUID, volumeLabel string, qty int) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		SELECT id, name, description, category, image_url, rating_average, rating_count, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Category,
		&p.ImageURL,
		&p.RatingAverage,
		&p.RatingCount,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product %s: %w", id, err)
	}

	sizes, err := r.sizesForProducts(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	p.Sizes = sizes[id]
	if p.Sizes == nil {
		p.Sizes = []Size{}
	}

	return &p, nil
}

func (r *postgresRepository) List(ctx context.Context, f Filters) ([]Product, int, error) {
	conditions := []string{}
	args := []any{}

	if f.ActiveOnly {
		conditions = append(conditions, "active = TRUE")
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT count(*) FROM products " + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count products: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	listQuery := fmt.Sprintf(`
		SELECT id, name, description, category, image_url, rating_average, rating_count, active, created_at, updated_at
		FROM products %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	var ids []uuid.UUID
	for rows.Next() {
		var p Product
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Category,
			&p.ImageURL,
			&p.RatingAverage,
			&p.RatingCount,
			&p.Active,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		p.Sizes = []Size{}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository: error iterating products: %w", err)
	}

	if len(ids) > 0 {
		sizes, err := r.sizesForProducts(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range products {
			if s, ok := sizes[products[i].ID]; ok {
				products[i].Sizes = s
			}
		}
	}

	return products, total, nil
}

func (r *postgresRepository) sizesForProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]Size, error) {
	query := `
		SELECT id, product_id, volume_label, unit_price, stock, stock_unit
		FROM product_sizes
		WHERE product_id = ANY($1)
		ORDER BY unit_price
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query product sizes: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]Size)
	for rows.Next() {
		var s Size
		if err := rows.Scan(&s.ID, &s.ProductID, &s.VolumeLabel, &s.UnitPrice, &s.Stock, &s.StockUnit); err != nil {
			return nil, fmt.Errorf("repository: failed to scan product size: %w", err)
		}
		result[s.ProductID] = append(result[s.ProductID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating product sizes: %w", err)
	}

	return result, nil
}

func (r *postgresRepository) Create(ctx context.Context, p *Product) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO products (id, name, description, category, image_url, rating_average, rating_count, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, query, p.ID, p.Name, p.Description, p.Category, p.ImageURL, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}

	if err = insertSizes(ctx, tx, p); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) Update(ctx context.Context, p *Product) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE products
		SET name = $1, description = $2, category = $3, image_url = $4, active = $5, updated_at = $6
		WHERE id = $7
	`
	cmdTag, err := tx.Exec(ctx, query, p.Name, p.Description, p.Category, p.ImageURL, p.Active, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to update product %s: %w", p.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	// Labels missing from the input are removed; surviving labels are upserted
	// without touching stock, so a concurrent order's conditional decrement is
	// never overwritten by the stale count the admin read earlier. The client
	// stock value only seeds brand-new labels.
	labels := make([]string, 0, len(p.Sizes))
	for i := range p.Sizes {
		labels = append(labels, p.Sizes[i].VolumeLabel)
	}
	_, err = tx.Exec(ctx,
		`DELETE FROM product_sizes WHERE product_id = $1 AND volume_label <> ALL($2)`,
		p.ID, labels)
	if err != nil {
		return fmt.Errorf("repository: failed to delete removed sizes for product %s: %w", p.ID, err)
	}
	if err = upsertSizes(ctx, tx, p); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return nil
}

func insertSizes(ctx context.Context, tx pgx.Tx, p *Product) error {
	query := `
		INSERT INTO product_sizes (id, product_id, volume_label, unit_price, stock, stock_unit)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range p.Sizes {
		size := &p.Sizes[i]
		if size.ID == uuid.Nil {
			id, err := uuid.NewV4()
			if err != nil {
				return fmt.Errorf("repository: failed to generate size ID: %w", err)
			}
			size.ID = id
		}
		size.ProductID = p.ID

		_, err := tx.Exec(ctx, query, size.ID, size.ProductID, size.VolumeLabel, size.UnitPrice, size.Stock, size.StockUnit)
		if err != nil {
			return fmt.Errorf("repository: failed to insert size %q for product %s: %w", size.VolumeLabel, p.ID, err)
		}
	}
	return nil
}

// upsertSizes inserts new labels and updates price/unit on existing ones.
// Existing rows keep their id and their stock column: stock is only ever
// mutated through the conditional increment/decrement statements.
func upsertSizes(ctx context.Context, tx pgx.Tx, p *Product) error {
	query := `
		INSERT INTO product_sizes (id, product_id, volume_label, unit_price, stock, stock_unit)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, volume_label)
		DO UPDATE SET unit_price = EXCLUDED.unit_price, stock_unit = EXCLUDED.stock_unit
	`
	for i := range p.Sizes {
		size := &p.Sizes[i]
		if size.ID == uuid.Nil {
			id, err := uuid.NewV4()
			if err != nil {
				return fmt.Errorf("repository: failed to generate size ID: %w", err)
			}
			size.ID = id
		}
		size.ProductID = p.ID

		_, err := tx.Exec(ctx, query, size.ID, size.ProductID, size.VolumeLabel, size.UnitPrice, size.Stock, size.StockUnit)
		if err != nil {
			return fmt.Errorf("repository: failed to upsert size %q for product %s: %w", size.VolumeLabel, p.ID, err)
		}
	}
	return nil
}

func (r *postgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE products SET active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to set active for product %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateRating(ctx context.Context, id uuid.UUID, average float64, count int) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE products SET rating_average = $1, rating_count = $2, updated_at = $3 WHERE id = $4`,
		average, count, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("repository: failed to update rating for product %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DecrementStock performs the single conditional decrement that prevents
// oversell: the update only matches when enough stock remains, so two racing
// orders cannot both take the last unit.
func (r *postgresRepository) DecrementStock(ctx context.Context, q Querier, productID uuid.UUID, volumeLabel string, qty int) error {
	cmdTag, err := q.Exec(ctx, `
		UPDATE product_sizes
		SET stock = stock - $3
		WHERE product_id = $1 AND volume_label = $2 AND stock >= $3
	`, productID, volumeLabel, qty)
	if err != nil {
		return fmt.Errorf("repository: failed to decrement stock for product %s size %q: %w", productID, volumeLabel, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return r.classifyStockMiss(ctx, q, productID, volumeLabel)
	}
	return nil
}

func (r *postgresRepository) IncrementStock(ctx context.Context, q Querier, productID uuid.UUID, volumeLabel string, qty int) error {
	cmdTag, err := q.Exec(ctx, `
		UPDATE product_sizes
		SET stock = stock + $3
		WHERE product_id = $1 AND volume_label = $2
	`, productID, volumeLabel, qty)
	if err != nil {
		return fmt.Errorf("repository: failed to increment stock for product %s size %q: %w", productID, volumeLabel, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrSizeNotFound
	}
	return nil
}

// classifyStockMiss distinguishes "no such size" from "not enough stock"
// after a conditional decrement matched zero rows.
func (r *postgresRepository) classifyStockMiss(ctx context.Context, q Querier, productID uuid.UUID, volumeLabel string) error {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM product_sizes WHERE product_id = $1 AND volume_label = $2)`,
		productID, volumeLabel).Scan(&exists)
	if err != nil {
		return fmt.Errorf("repository: failed to check size existence for product %s: %w", productID, err)
	}
	if !exists {
		return ErrSizeNotFound
	}
	return ErrInsufficientStock
}
