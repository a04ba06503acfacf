package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ironico1809/tienda-backend/internal/sales/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	require.NoError(t, repo.RunMigrations(creds))

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func testSale(status domain.SaleStatus) *domain.Sale {
	return &domain.Sale{
		ClientID:      3,
		PaymentMethod: "efectivo",
		Status:        status,
		Details: []domain.SaleDetail{
			{ProductID: 1, ProductName: "Laptop", Quantity: 1, UnitPrice: decimal.NewFromInt(1200)},
			{ProductID: 2, ProductName: "Mouse", Quantity: 3, UnitPrice: decimal.NewFromInt(50)},
		},
	}
}

func TestCreateSale_ComputesTotalFromDetails(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	sale := testSale(domain.SaleStatusCompleted)
	// A bogus client-supplied total must be ignored
	sale.TotalAmount = decimal.NewFromInt(1)

	id, err := repo.CreateSale(ctx, sale)
	require.NoError(t, err)
	require.Positive(t, id)

	stored, err := repo.GetSale(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(1350)), "total %s", stored.TotalAmount)
	require.Len(t, stored.Details, 2)
	assert.True(t, stored.Details[1].Subtotal.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, domain.SaleStatusCompleted, stored.Status)
}

func TestGetSale_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetSale(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestUpdateStatus_PendingToCompleted(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := repo.CreateSale(ctx, testSale(domain.SaleStatusPending))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, id, domain.SaleStatusCompleted))

	stored, err := repo.GetSale(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SaleStatusCompleted, stored.Status)
}

func TestUpdateStatus_ResolvedSaleIsImmutable(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := repo.CreateSale(ctx, testSale(domain.SaleStatusCompleted))
	require.NoError(t, err)

	err = repo.UpdateStatus(ctx, id, domain.SaleStatusCancelled)
	assert.ErrorIs(t, err, ErrSaleResolved)
}

func TestUpdateStatus_SaleNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.UpdateStatus(context.Background(), 9999, domain.SaleStatusCompleted)
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestLatestSales_OrdersAndLimits(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.CreateSale(ctx, testSale(domain.SaleStatusCompleted))
		require.NoError(t, err)
	}

	sales, err := repo.LatestSales(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
	assert.GreaterOrEqual(t, sales[0].ID, sales[1].ID)
}

func TestStats_CountsCompletedOnly(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateSale(ctx, testSale(domain.SaleStatusCompleted))
	require.NoError(t, err)
	_, err = repo.CreateSale(ctx, testSale(domain.SaleStatusPending))
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Today.Count)
	assert.True(t, stats.Today.Total.Equal(decimal.NewFromInt(1350)), "total %s", stats.Today.Total)
	assert.Equal(t, 1, stats.Month.Count)
}
