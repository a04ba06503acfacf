package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "Pendiente"
	SaleStatusCompleted SaleStatus = "Completada"
	SaleStatusCancelled SaleStatus = "Cancelada"
)

// CanTransitionTo reports whether a sale status change is allowed. Only a
// pending sale can be resolved; resolved sales never change again.
func (s SaleStatus) CanTransitionTo(to SaleStatus) bool {
	if s != SaleStatusPending {
		return false
	}
	return to == SaleStatusCompleted || to == SaleStatusCancelled
}

func (s SaleStatus) String() string {
	return string(s)
}

type Sale struct {
	ID               int64           `json:"id"`
	ClientID         int64           `json:"client_id"`
	SellerID         *int64          `json:"seller_id,omitempty"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Status           SaleStatus      `json:"status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	CreatedAt        time.Time       `json:"created_at"`
	Details          []SaleDetail    `json:"details"`
}

type SaleDetail struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// ComputeTotal derives the sale total from its details. The stored total is
// always this sum, never a client-provided figure.
func (s *Sale) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range s.Details {
		total = total.Add(d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity))))
	}
	return total
}

type SalesStats struct {
	Today PeriodStats `json:"today"`
	Month PeriodStats `json:"month"`
}

type PeriodStats struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}
