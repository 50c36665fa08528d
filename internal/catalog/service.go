package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

const defaultPageSize = 20

type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	GetActiveProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	ListProducts(ctx context.Context, f Filters) ([]Product, int, error)
	CreateProduct(ctx context.Context, p *Product) (*Product, error)
	UpdateProduct(ctx context.Context, p *Product) (*Product, error)
	DeactivateProduct(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to fetch product")
		return nil, fmt.Errorf("service: failed to fetch product: %w", err)
	}
	return product, nil
}

// GetActiveProduct is the ordering-path lookup: a soft-deleted product is
// indistinguishable from an absent one.
func (s *service) GetActiveProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, ErrProductNotFound
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context, f Filters) ([]Product, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = defaultPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	products, total, err := s.repo.List(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list products")
		return nil, 0, fmt.Errorf("service: failed to list products: %w", err)
	}
	return products, total, nil
}

func (s *service) CreateProduct(ctx context.Context, p *Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate product ID: %w", err)
	}
	p.ID = id
	p.RatingAverage = 0
	p.RatingCount = 0

	if err := s.repo.Create(ctx, p); err != nil {
		log.Error().Err(err).Msg("service: failed to create product")
		return nil, fmt.Errorf("service: failed to create product: %w", err)
	}

	log.Info().Stringer("product_id", p.ID).Str("name", p.Name).Msg("service: product created")
	return p, nil
}

func (s *service) UpdateProduct(ctx context.Context, p *Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", p.ID).Msg("service: failed to update product")
		return nil, fmt.Errorf("service: failed to update product: %w", err)
	}

	// Stock on surviving labels belongs to the order workflow, so the stored
	// counts can differ from the submitted ones. Return what was persisted.
	return s.GetProduct(ctx, p.ID)
}

// DeactivateProduct soft-deletes: orders keep referencing the row, so it is
// never physically removed.
func (s *service) DeactivateProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to deactivate product")
		return fmt.Errorf("service: failed to deactivate product: %w", err)
	}
	log.Info().Stringer("product_id", id).Msg("service: product deactivated")
	return nil
}

func validateProduct(p *Product) error {
	if p.Name == "" {
		return errors.New("service: product name is required")
	}
	if p.Category == "" {
		return errors.New("service: product category is required")
	}
	if len(p.Sizes) == 0 {
		return errors.New("service: product must have at least one size")
	}
	for i := range p.Sizes {
		size := &p.Sizes[i]
		if size.VolumeLabel == "" {
			return errors.New("service: size volume label is required")
		}
		if size.UnitPrice.IsNegative() {
			return fmt.Errorf("service: unit price for size %q cannot be negative", size.VolumeLabel)
		}
		if size.Stock < 0 {
			return fmt.Errorf("service: stock for size %q cannot be negative", size.VolumeLabel)
		}
	}
	return nil
}
