package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/ironico1809/tienda-backend/internal/sales/domain"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func decimalFromInt(i int) decimal.Decimal {
	return decimal.NewFromInt(int64(i))
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

// NewRepositoryWithDB wraps an existing connection; used when several
// repositories share one Postgres database.
func NewRepositoryWithDB(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "sales_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// CreateSale inserts the sale and its details in one transaction. The total
// is recomputed from the details inside this method.
func (r *Repository) CreateSale(ctx context.Context, sale *domain.Sale) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	total := sale.ComputeTotal()

	var saleID int64
	query := `INSERT INTO ventas (client_id, seller_id, payment_method, payment_reference, status, total_amount, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW())
	          RETURNING id`
	err = tx.QueryRowContext(ctx, query,
		sale.ClientID,
		sale.SellerID,
		sale.PaymentMethod,
		sale.PaymentReference,
		sale.Status,
		total,
	).Scan(&saleID)
	if err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}

	detailQuery := `INSERT INTO venta_detalles (venta_id, product_id, product_name, quantity, unit_price, subtotal)
	                VALUES ($1, $2, $3, $4, $5, $6)`
	for _, d := range sale.Details {
		subtotal := d.UnitPrice.Mul(decimalFromInt(d.Quantity))
		_, err := tx.ExecContext(ctx, detailQuery,
			saleID,
			d.ProductID,
			d.ProductName,
			d.Quantity,
			d.UnitPrice,
			subtotal,
		)
		if err != nil {
			return 0, fmt.Errorf("insert sale detail: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sale: %w", err)
	}

	sale.ID = saleID
	sale.TotalAmount = total
	return saleID, nil
}

func (r *Repository) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	query := `SELECT id, client_id, seller_id, payment_method, payment_reference, status, total_amount, created_at
	          FROM ventas WHERE id = $1`

	var sale domain.Sale
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sale.ID,
		&sale.ClientID,
		&sale.SellerID,
		&sale.PaymentMethod,
		&sale.PaymentReference,
		&sale.Status,
		&sale.TotalAmount,
		&sale.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query sale by id: %w", err)
	}

	details, err := r.saleDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Details = details

	return &sale, nil
}

func (r *Repository) saleDetails(ctx context.Context, saleID int64) ([]domain.SaleDetail, error) {
	query := `SELECT product_id, product_name, quantity, unit_price, subtotal
	          FROM venta_detalles WHERE venta_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("query sale details: %w", err)
	}
	defer rows.Close()

	var details []domain.SaleDetail
	for rows.Next() {
		var d domain.SaleDetail
		if err := rows.Scan(&d.ProductID, &d.ProductName, &d.Quantity, &d.UnitPrice, &d.Subtotal); err != nil {
			return nil, fmt.Errorf("scan sale detail: %w", err)
		}
		details = append(details, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return details, nil
}

func (r *Repository) ListSales(ctx context.Context) ([]*domain.Sale, error) {
	return r.querySales(ctx, `SELECT id, client_id, seller_id, payment_method, payment_reference, status, total_amount, created_at
	          FROM ventas ORDER BY created_at DESC`)
}

func (r *Repository) LatestSales(ctx context.Context, limit int) ([]*domain.Sale, error) {
	if limit <= 0 {
		limit = 10
	}
	return r.querySales(ctx, `SELECT id, client_id, seller_id, payment_method, payment_reference, status, total_amount, created_at
	          FROM ventas ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *Repository) querySales(ctx context.Context, query string, args ...interface{}) ([]*domain.Sale, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(
			&sale.ID,
			&sale.ClientID,
			&sale.SellerID,
			&sale.PaymentMethod,
			&sale.PaymentReference,
			&sale.Status,
			&sale.TotalAmount,
			&sale.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sale row: %w", err)
		}
		sales = append(sales, &sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return sales, nil
}

// UpdateStatus resolves a pending sale. Updating a sale that is not pending
// returns ErrSaleResolved, so verification can never flip a resolved sale.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, to domain.SaleStatus) error {
	if !domain.SaleStatusPending.CanTransitionTo(to) {
		return fmt.Errorf("cannot transition sale to %q", to)
	}

	query := `UPDATE ventas SET status = $1 WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, to, id, domain.SaleStatusPending)
	if err != nil {
		return fmt.Errorf("update sale status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.GetSale(ctx, id); getErr != nil {
			return getErr
		}
		return ErrSaleResolved
	}

	return nil
}

func (r *Repository) Stats(ctx context.Context, now time.Time) (*domain.SalesStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	stats := &domain.SalesStats{}

	query := `SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM ventas WHERE created_at >= $1 AND status = $2`

	err := r.db.QueryRowContext(ctx, query, dayStart, domain.SaleStatusCompleted).
		Scan(&stats.Today.Total, &stats.Today.Count)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}

	err = r.db.QueryRowContext(ctx, query, monthStart, domain.SaleStatusCompleted).
		Scan(&stats.Month.Total, &stats.Month.Count)
	if err != nil {
		return nil, fmt.Errorf("query monthly stats: %w", err)
	}

	return stats, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
