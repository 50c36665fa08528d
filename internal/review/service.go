package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
)

const defaultPageSize = 20

var (
	ErrInvalidRating = errors.New("review: rating must be between 1 and 5")
	ErrNotAuthor     = errors.New("review: review belongs to another user")
)

// PurchaseVerifier reports whether the user has a delivered order containing
// the product. The order service implements it.
type PurchaseVerifier interface {
	HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error)
}

type CreateInput struct {
	Rating  int
	Title   string
	Comment string
}

type Service interface {
	Create(ctx context.Context, userID, productID uuid.UUID, input CreateInput) (*Review, error)
	Update(ctx context.Context, userID, reviewID uuid.UUID, input CreateInput) (*Review, error)
	Delete(ctx context.Context, requesterID uuid.UUID, isAdmin bool, reviewID uuid.UUID) error
	ListByProduct(ctx context.Context, productID uuid.UUID, offset, limit int) ([]Review, int, error)
	ToggleHelpfulVote(ctx context.Context, userID, reviewID uuid.UUID) (voted bool, count int, err error)
}

type service struct {
	repo        Repository
	catalogRepo catalog.Repository
	purchases   PurchaseVerifier
}

func NewService(repo Repository, catalogRepo catalog.Repository, purchases PurchaseVerifier) Service {
	return &service{
		repo:        repo,
		catalogRepo: catalogRepo,
		purchases:   purchases,
	}
}

func (s *service) Create(ctx context.Context, userID, productID uuid.UUID, input CreateInput) (*Review, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, ErrInvalidRating
	}

	product, err := s.catalogRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, catalog.ErrProductNotFound
	}

	verified, err := s.purchases.HasDeliveredProduct(ctx, userID, productID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to check purchase history")
		return nil, fmt.Errorf("service: failed to check purchase history: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate review ID: %w", err)
	}

	rv := &Review{
		ID:               id,
		ProductID:        productID,
		UserID:           userID,
		Rating:           input.Rating,
		Title:            input.Title,
		Comment:          input.Comment,
		VerifiedPurchase: verified,
		Approved:         true,
	}

	if err := s.repo.Create(ctx, rv); err != nil {
		if errors.Is(err, ErrDuplicateReview) {
			return nil, ErrDuplicateReview
		}
		log.Error().Err(err).Stringer("product_id", productID).Msg("service: failed to create review")
		return nil, fmt.Errorf("service: failed to create review: %w", err)
	}

	if err := s.recomputeRating(ctx, productID); err != nil {
		return nil, err
	}

	log.Info().Stringer("review_id", rv.ID).Stringer("product_id", productID).Msg("service: review created")
	return rv, nil
}

func (s *service) Update(ctx context.Context, userID, reviewID uuid.UUID, input CreateInput) (*Review, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, ErrInvalidRating
	}

	rv, err := s.repo.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if rv.UserID != userID {
		return nil, ErrNotAuthor
	}

	rv.Rating = input.Rating
	rv.Title = input.Title
	rv.Comment = input.Comment

	if err := s.repo.Update(ctx, rv); err != nil {
		log.Error().Err(err).Stringer("review_id", reviewID).Msg("service: failed to update review")
		return nil, fmt.Errorf("service: failed to update review: %w", err)
	}

	if err := s.recomputeRating(ctx, rv.ProductID); err != nil {
		return nil, err
	}

	return rv, nil
}

func (s *service) Delete(ctx context.Context, requesterID uuid.UUID, isAdmin bool, reviewID uuid.UUID) error {
	rv, err := s.repo.GetByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if !isAdmin && rv.UserID != requesterID {
		return ErrNotAuthor
	}

	if err := s.repo.Delete(ctx, reviewID); err != nil {
		log.Error().Err(err).Stringer("review_id", reviewID).Msg("service: failed to delete review")
		return fmt.Errorf("service: failed to delete review: %w", err)
	}

	if err := s.recomputeRating(ctx, rv.ProductID); err != nil {
		return err
	}

	log.Info().Stringer("review_id", reviewID).Msg("service: review deleted")
	return nil
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID, offset, limit int) ([]Review, int, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	reviews, total, err := s.repo.ListByProduct(ctx, productID, offset, limit)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", productID).Msg("service: failed to list reviews")
		return nil, 0, fmt.Errorf("service: failed to list reviews: %w", err)
	}
	return reviews, total, nil
}

func (s *service) ToggleHelpfulVote(ctx context.Context, userID, reviewID uuid.UUID) (bool, int, error) {
	voted, count, err := s.repo.ToggleVote(ctx, reviewID, userID)
	if err != nil {
		if errors.Is(err, ErrReviewNotFound) {
			return false, 0, ErrReviewNotFound
		}
		log.Error().Err(err).Stringer("review_id", reviewID).Msg("service: failed to toggle helpful vote")
		return false, 0, fmt.Errorf("service: failed to toggle helpful vote: %w", err)
	}
	return voted, count, nil
}

// recomputeRating writes the aggregate over approved reviews back onto the
// product. The dependency runs this way on purpose: reviews call into the
// catalog, never the reverse, and there are no storage-side triggers.
func (s *service) recomputeRating(ctx context.Context, productID uuid.UUID) error {
	average, count, err := s.repo.AggregateApproved(ctx, productID)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", productID).Msg("service: failed to aggregate reviews")
		return fmt.Errorf("service: failed to aggregate reviews: %w", err)
	}

	if err := s.catalogRepo.UpdateRating(ctx, productID, average, count); err != nil {
		log.Error().Err(err).Stringer("product_id", productID).Msg("service: failed to write product rating")
		return fmt.Errorf("service: failed to write product rating: %w", err)
	}

	return nil
}
