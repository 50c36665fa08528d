package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrReviewNotFound  = errors.New("review: review not found")
	ErrDuplicateReview = errors.New("review: user already reviewed this product")
)

type Repository interface {
	Create(ctx context.Context, rv *Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*Review, error)
	Update(ctx context.Context, rv *Review) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProduct(ctx context.Context, productID uuid.UUID, offset, limit int) ([]Review, int, error)
	ToggleVote(ctx context.Context, reviewID, userID uuid.UUID) (voted bool, count int, err error)
	AggregateApproved(ctx context.Context, productID uuid.UUID) (average float64, count int, err error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const reviewColumns = `id, product_id, user_id, rating, title, comment, verified_purchase, approved, helpful_count, created_at, updated_at`

func scanReview(row pgx.Row) (*Review, error) {
	var rv Review
	err := row.Scan(
		&rv.ID,
		&rv.ProductID,
		&rv.UserID,
		&rv.Rating,
		&rv.Title,
		&rv.Comment,
		&rv.VerifiedPurchase,
		&rv.Approved,
		&rv.HelpfulCount,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *postgresRepository) Create(ctx context.Context, rv *Review) error {
	now := time.Now().UTC()
	rv.CreatedAt = now
	rv.UpdatedAt = now

	query := `
		INSERT INTO reviews (id, product_id, user_id, rating, title, comment, verified_purchase, approved, helpful_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		rv.ID, rv.ProductID, rv.UserID, rv.Rating, rv.Title, rv.Comment,
		rv.VerifiedPurchase, rv.Approved, rv.CreatedAt, rv.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateReview
		}
		return fmt.Errorf("repository: failed to insert review: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Review, error) {
	rv, err := scanReview(r.db.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("repository: failed to select review %s: %w", id, err)
	}
	return rv, nil
}

func (r *postgresRepository) Update(ctx context.Context, rv *Review) error {
	rv.UpdatedAt = time.Now().UTC()

	cmdTag, err := r.db.Exec(ctx, `
		UPDATE reviews
		SET rating = $1, title = $2, comment = $3, updated_at = $4
		WHERE id = $5
	`, rv.Rating, rv.Title, rv.Comment, rv.UpdatedAt, rv.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to update review %s: %w", rv.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete review %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (r *postgresRepository) ListByProduct(ctx context.Context, productID uuid.UUID, offset, limit int) ([]Review, int, error) {
	var total int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM reviews WHERE product_id = $1 AND approved`, productID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count reviews: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE product_id = $1 AND approved
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, productID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]Review, 0)
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository: failed to scan review: %w", err)
		}
		reviews = append(reviews, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository: error iterating reviews: %w", err)
	}

	return reviews, total, nil
}

// ToggleVote flips the user's membership in the review's voter set and keeps
// helpful_count equal to the set size, all in one transaction.
func (r *postgresRepository) ToggleVote(ctx context.Context, reviewID, userID uuid.UUID) (voted bool, count int, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("review_id", reviewID).Msg("repository: failed to rollback vote toggle")
			}
		}
	}()

	cmdTag, err := tx.Exec(ctx, `
		INSERT INTO review_votes (review_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (review_id, user_id) DO NOTHING
	`, reviewID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			// No such review to vote on.
			err = ErrReviewNotFound
			return false, 0, err
		}
		return false, 0, fmt.Errorf("repository: failed to insert vote: %w", err)
	}

	if cmdTag.RowsAffected() == 1 {
		voted = true
	} else {
		// Already voted: the toggle removes it.
		_, err = tx.Exec(ctx,
			`DELETE FROM review_votes WHERE review_id = $1 AND user_id = $2`, reviewID, userID)
		if err != nil {
			return false, 0, fmt.Errorf("repository: failed to delete vote: %w", err)
		}
	}

	// Re-derive the counter from the set instead of incrementing, so the
	// invariant helpful_count == |voter set| cannot drift.
	err = tx.QueryRow(ctx, `
		UPDATE reviews
		SET helpful_count = (SELECT count(*) FROM review_votes WHERE review_id = $1)
		WHERE id = $1
		RETURNING helpful_count
	`, reviewID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrReviewNotFound
			return false, 0, err
		}
		return false, 0, fmt.Errorf("repository: failed to update helpful count: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return false, 0, fmt.Errorf("repository: failed to commit transaction: %w", err)
	}
	return voted, count, nil
}

// AggregateApproved recomputes the mean rating (1 decimal) and count over all
// approved reviews of the product. Running it twice over an unchanged review
// set yields identical numbers.
func (r *postgresRepository) AggregateApproved(ctx context.Context, productID uuid.UUID) (float64, int, error) {
	var average float64
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0), count(*)
		FROM reviews
		WHERE product_id = $1 AND approved
	`, productID).Scan(&average, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("repository: failed to aggregate reviews for product %s: %w", productID, err)
	}
	return average, count, nil
}
