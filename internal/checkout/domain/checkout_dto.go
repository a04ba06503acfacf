package domain

import "github.com/shopspring/decimal"

type CheckoutRequest struct {
	UserID           string
	ClientID         int64
	PaymentMethod    string
	PaymentReference string
	IdempotencyKey   string
}

type CheckoutResponse struct {
	CheckoutID string         `json:"checkout_id"`
	SaleID     int64          `json:"sale_id"`
	Status     CheckoutStatus `json:"status"`
	// CheckoutURL is set only on the card path: the hosted page the browser
	// must be redirected to.
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type VerifyResult struct {
	CheckoutID    string          `json:"checkout_id"`
	SaleID        int64           `json:"sale_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentStatus string          `json:"payment_status"`
}
