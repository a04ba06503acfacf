package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ironico1809/tienda-backend/internal/sales/domain"
)

var (
	ErrSaleNotFound = errors.New("sale not found")
	ErrSaleResolved = errors.New("sale is already resolved")
)

type SaleRepository interface {
	CreateSale(ctx context.Context, sale *domain.Sale) (int64, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]*domain.Sale, error)
	LatestSales(ctx context.Context, limit int) ([]*domain.Sale, error)
	UpdateStatus(ctx context.Context, id int64, to domain.SaleStatus) error
	Stats(ctx context.Context, now time.Time) (*domain.SalesStats, error)
	Close() error
	RunMigrations(*Credentials) error
}
