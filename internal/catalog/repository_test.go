package catalog_test

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/attar-shop/internal/catalog"
	"github.com/vasiliy-maslov/attar-shop/internal/config"
	"github.com/vasiliy-maslov/attar-shop/internal/db"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	cfg := config.PostgresConfig{
		Host:            envOr("TEST_DB_HOST", "localhost"),
		Port:            envOr("TEST_DB_PORT", "5432"),
		User:            envOr("TEST_DB_USER", "postgres"),
		Password:        envOr("TEST_DB_PASSWORD", "postgres"),
		DBName:          envOr("TEST_DB_NAME", "attar_shop_test"),
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MigrationsPath:  "../../migrations",
	}

	pg, err := db.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v (host=%s, port=%s, dbname=%s)",
			err, cfg.Host, cfg.Port, cfg.DBName)
	}
	pool = pg.Pool

	exitCode := m.Run()

	pg.Close()
	os.Exit(exitCode)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func setup(t *testing.T) catalog.Repository {
	t.Helper()

	truncate := func() {
		_, err := pool.Exec(context.Background(),
			"TRUNCATE products RESTART IDENTITY CASCADE")
		if err != nil {
			t.Fatalf("Failed to truncate tables: %v", err)
		}
	}
	truncate()
	t.Cleanup(truncate)

	return catalog.NewRepository(pool)
}

func seedProduct(t *testing.T, repo catalog.Repository) *catalog.Product {
	t.Helper()

	p := &catalog.Product{
		Name:     "Rose Taifi",
		Category: "attar",
		Active:   true,
		Sizes: []catalog.Size{
			{VolumeLabel: "3ml", UnitPrice: decimal.NewFromInt(12), Stock: 2, StockUnit: "bottle"},
			{VolumeLabel: "6ml", UnitPrice: decimal.NewFromInt(20), Stock: 10, StockUnit: "bottle"},
			{VolumeLabel: "12ml", UnitPrice: decimal.NewFromInt(35), Stock: 5, StockUnit: "bottle"},
		},
	}
	id, err := uuid.NewV4()
	require.NoError(t, err)
	p.ID = id

	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func stockOf(t *testing.T, repo catalog.Repository, productID uuid.UUID, label string) int {
	t.Helper()
	p, err := repo.GetByID(context.Background(), productID)
	require.NoError(t, err)
	size := p.SizeByLabel(label)
	require.NotNil(t, size)
	return size.Stock
}

func TestRepositoryDecrementStock(t *testing.T) {
	repo := setup(t)
	p := seedProduct(t, repo)
	ctx := context.Background()

	t.Run("decrements_within_stock", func(t *testing.T) {
		err := repo.DecrementStock(ctx, pool, p.ID, "6ml", 4)
		require.NoError(t, err)
		assert.Equal(t, 6, stockOf(t, repo, p.ID, "6ml"))
	})

	t.Run("insufficient_stock_leaves_counter_untouched", func(t *testing.T) {
		err := repo.DecrementStock(ctx, pool, p.ID, "12ml", 6)
		assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
		assert.Equal(t, 5, stockOf(t, repo, p.ID, "12ml"))
	})

	t.Run("unknown_label_is_size_not_found", func(t *testing.T) {
		err := repo.DecrementStock(ctx, pool, p.ID, "50ml", 1)
		assert.ErrorIs(t, err, catalog.ErrSizeNotFound)
	})

	t.Run("unknown_product_is_size_not_found", func(t *testing.T) {
		otherID, err := uuid.NewV4()
		require.NoError(t, err)
		err = repo.DecrementStock(ctx, pool, otherID, "6ml", 1)
		assert.ErrorIs(t, err, catalog.ErrSizeNotFound)
	})

	t.Run("can_take_the_exact_remainder", func(t *testing.T) {
		err := repo.DecrementStock(ctx, pool, p.ID, "12ml", 5)
		require.NoError(t, err)
		assert.Equal(t, 0, stockOf(t, repo, p.ID, "12ml"))

		err = repo.DecrementStock(ctx, pool, p.ID, "12ml", 1)
		assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	})
}

func TestRepositoryIncrementStock(t *testing.T) {
	repo := setup(t)
	p := seedProduct(t, repo)
	ctx := context.Background()

	require.NoError(t, repo.DecrementStock(ctx, pool, p.ID, "6ml", 3))
	require.NoError(t, repo.IncrementStock(ctx, pool, p.ID, "6ml", 3))
	assert.Equal(t, 10, stockOf(t, repo, p.ID, "6ml"))

	err := repo.IncrementStock(ctx, pool, p.ID, "50ml", 1)
	assert.ErrorIs(t, err, catalog.ErrSizeNotFound)
}

func TestRepositoryUpdatePreservesStock(t *testing.T) {
	repo := setup(t)
	p := seedProduct(t, repo)
	ctx := context.Background()

	// An order takes two bottles after the admin read the product at stock 10.
	require.NoError(t, repo.DecrementStock(ctx, pool, p.ID, "6ml", 2))

	// The admin submits the stale count alongside a price change, drops the
	// 3ml size and introduces a 24ml one.
	updated := &catalog.Product{
		ID:       p.ID,
		Name:     "Rose Taifi",
		Category: "attar",
		Active:   true,
		Sizes: []catalog.Size{
			{VolumeLabel: "6ml", UnitPrice: decimal.NewFromInt(22), Stock: 10, StockUnit: "bottle"},
			{VolumeLabel: "12ml", UnitPrice: decimal.NewFromInt(35), Stock: 5, StockUnit: "bottle"},
			{VolumeLabel: "24ml", UnitPrice: decimal.NewFromInt(60), Stock: 7, StockUnit: "bottle"},
		},
	}
	require.NoError(t, repo.Update(ctx, updated))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)

	// The sold bottles stay sold: the live counter wins over the stale input.
	six := got.SizeByLabel("6ml")
	require.NotNil(t, six)
	assert.Equal(t, 8, six.Stock)
	assert.True(t, six.UnitPrice.Equal(decimal.NewFromInt(22)))

	// New labels take the submitted count as their initial stock.
	twentyFour := got.SizeByLabel("24ml")
	require.NotNil(t, twentyFour)
	assert.Equal(t, 7, twentyFour.Stock)

	// Removed labels are gone.
	assert.Nil(t, got.SizeByLabel("3ml"))
	assert.Len(t, got.Sizes, 3)
}

func TestRepositoryUpdateUnknownProduct(t *testing.T) {
	repo := setup(t)

	id, err := uuid.NewV4()
	require.NoError(t, err)
	p := &catalog.Product{
		ID:       id,
		Name:     "Oud Hindi",
		Category: "attar",
		Sizes: []catalog.Size{
			{VolumeLabel: "6ml", UnitPrice: decimal.NewFromInt(40), Stock: 1, StockUnit: "bottle"},
		},
	}
	assert.ErrorIs(t, repo.Update(context.Background(), p), catalog.ErrProductNotFound)
}

func TestRepositoryListFilters(t *testing.T) {
	repo := setup(t)
	p := seedProduct(t, repo)
	require.NoError(t, repo.SetActive(context.Background(), p.ID, false))

	active, total, err := repo.List(context.Background(), catalog.Filters{ActiveOnly: true, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, active)

	all, total, err := repo.List(context.Background(), catalog.Filters{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, all, 1)
	assert.Len(t, all[0].Sizes, 3)
}
