package repository

import (
	"context"
	"errors"
	"time"

	d "github.com/ironico1809/tienda-backend/internal/checkout/domain"
)

var (
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	ErrSessionNotFound        = errors.New("checkout session not found")
	ErrIllegalTransition      = errors.New("illegal checkout status transition")
)

type CheckoutSession struct {
	ID                string
	UserID            string
	IdempotencyKey    string
	Status            d.CheckoutStatus
	SaleID            *int64
	ProviderSessionID *string
	CheckoutURL       *string
	CartSnapshot      []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type RepoInterface interface {
	CreateSession(ctx context.Context, session *CheckoutSession) error
	GetSessionByIdempotencyKey(ctx context.Context, key string) (*CheckoutSession, error)
	GetSessionByProviderID(ctx context.Context, providerSessionID string) (*CheckoutSession, error)
	UpdateStatus(ctx context.Context, id string, status d.CheckoutStatus) error
	SetSale(ctx context.Context, id string, saleID int64, status d.CheckoutStatus) error
	SetProviderSession(ctx context.Context, id, providerSessionID, checkoutURL string, status d.CheckoutStatus) error
	CompleteSession(ctx context.Context, id string, payload []byte, status d.CheckoutStatus) error
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	Close() error
	RunMigrations(*Credentials) error
}
