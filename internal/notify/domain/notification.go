package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
)

const TypeSaleCompleted = "sale.completed"

// Notification is a queued customer notification derived from a completed
// sale. One notification exists per checkout and type; redelivered events
// never produce duplicates.
type Notification struct {
	ID         uuid.UUID          `json:"id"`
	CheckoutID uuid.UUID          `json:"checkout_id"`
	SaleID     int64              `json:"sale_id"`
	UserID     string             `json:"user_id"`
	Type       string             `json:"type"`
	Message    string             `json:"message"`
	Total      decimal.Decimal    `json:"total"`
	Status     NotificationStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
}
