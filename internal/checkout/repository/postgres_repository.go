package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	d "github.com/ironico1809/tienda-backend/internal/checkout/domain"
	"github.com/lib/pq"
)

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
		MigrationsTable: "checkout_schema_migrations",
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

func (r *Repository) CreateSession(ctx context.Context, session *CheckoutSession) error {
	query := `INSERT INTO checkout_sessions (id, user_id, idempotency_key, status, cart_snapshot, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.IdempotencyKey,
		session.Status,
		session.CartSnapshot,
	)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}

	return nil
}

func (r *Repository) GetSessionByIdempotencyKey(ctx context.Context, key string) (*CheckoutSession, error) {
	session, err := r.querySession(ctx, `WHERE idempotency_key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIdempotencyKeyNotFound
	}
	return session, err
}

func (r *Repository) GetSessionByProviderID(ctx context.Context, providerSessionID string) (*CheckoutSession, error) {
	session, err := r.querySession(ctx, `WHERE provider_session_id = $1`, providerSessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (r *Repository) querySession(ctx context.Context, where string, args ...interface{}) (*CheckoutSession, error) {
	query := `SELECT id, user_id, idempotency_key, status, sale_id, provider_session_id, checkout_url, cart_snapshot, created_at, updated_at
	          FROM checkout_sessions ` + where

	var s CheckoutSession
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.ID,
		&s.UserID,
		&s.IdempotencyKey,
		&s.Status,
		&s.SaleID,
		&s.ProviderSessionID,
		&s.CheckoutURL,
		&s.CartSnapshot,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout session: %w", err)
	}

	return &s, nil
}

// Status writes are guarded compare-and-set updates: the row only changes
// when its current status equals the target (fields may be filled in without
// moving the session) or is a legal source for it, so a stale or concurrent
// writer cannot move a session backwards.

func (r *Repository) UpdateStatus(ctx context.Context, id string, status d.CheckoutStatus) error {
	query := `UPDATE checkout_sessions SET status = $1, updated_at = NOW()
	          WHERE id = $2 AND (status = $1 OR status = ANY($3))`
	res, err := r.db.ExecContext(ctx, query, status, id, sourceStatuses(status))
	if err != nil {
		return fmt.Errorf("update checkout status: %w", err)
	}
	return r.requireTransition(ctx, res, id, status)
}

// SetSale records the pending sale created for a session before the caller
// is sent to the payment provider.
func (r *Repository) SetSale(ctx context.Context, id string, saleID int64, status d.CheckoutStatus) error {
	query := `UPDATE checkout_sessions SET sale_id = $1, status = $2, updated_at = NOW()
	          WHERE id = $3 AND (status = $2 OR status = ANY($4))`
	res, err := r.db.ExecContext(ctx, query, saleID, status, id, sourceStatuses(status))
	if err != nil {
		return fmt.Errorf("set checkout sale: %w", err)
	}
	return r.requireTransition(ctx, res, id, status)
}

func (r *Repository) SetProviderSession(ctx context.Context, id, providerSessionID, checkoutURL string, status d.CheckoutStatus) error {
	query := `UPDATE checkout_sessions SET provider_session_id = $1, checkout_url = $2, status = $3, updated_at = NOW()
	          WHERE id = $4 AND (status = $3 OR status = ANY($5))`
	res, err := r.db.ExecContext(ctx, query, providerSessionID, checkoutURL, status, id, sourceStatuses(status))
	if err != nil {
		return fmt.Errorf("set provider session: %w", err)
	}
	return r.requireTransition(ctx, res, id, status)
}

// CompleteSession resolves the session and writes the sale.completed outbox
// event in the same transaction, so the event is published if and only if the
// session actually resolved.
func (r *Repository) CompleteSession(ctx context.Context, id string, payload []byte, status d.CheckoutStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `UPDATE checkout_sessions SET status = $1, updated_at = NOW()
	          WHERE id = $2 AND (status = $1 OR status = ANY($3))`
	res, err := tx.ExecContext(ctx, query, status, id, sourceStatuses(status))
	if err != nil {
		return fmt.Errorf("update checkout status: %w", err)
	}
	if err := r.requireTransition(ctx, res, id, status); err != nil {
		return err
	}

	outboxQuery := `INSERT INTO checkout_outbox (aggregate_id, event_type, payload, created_at)
	                VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, outboxQuery, id, "sale.completed", payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout completion: %w", err)
	}

	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at, processed_at
	          FROM checkout_outbox WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	query := `UPDATE checkout_outbox SET processed_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark event as processed: %w", err)
	}
	return nil
}

func sourceStatuses(to d.CheckoutStatus) pq.StringArray {
	sources := pq.StringArray{}
	for _, from := range d.TransitionSources(to) {
		sources = append(sources, string(from))
	}
	return sources
}

// requireTransition turns a zero-row guarded update into the right error:
// the session does not exist, or its current status cannot reach the target.
func (r *Repository) requireTransition(ctx context.Context, res sql.Result, id string, to d.CheckoutStatus) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current d.CheckoutStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM checkout_sessions WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("query checkout status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, to)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
