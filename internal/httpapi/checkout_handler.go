package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	d "github.com/ironico1809/tienda-backend/internal/checkout/domain"
)

type CheckoutAPI interface {
	InitiateCheckout(ctx context.Context, req *d.CheckoutRequest) (*d.CheckoutResponse, error)
	VerifyCheckout(ctx context.Context, providerSessionID string) (*d.VerifyResult, error)
}

type CheckoutHandler struct {
	checkout CheckoutAPI
	timeout  time.Duration
}

func NewCheckoutHandler(checkout CheckoutAPI, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, timeout: timeout}
}

type CheckoutRequestDTO struct {
	ClientID         int64  `json:"client_id"`
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

func (h *CheckoutHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var dto CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	req := &d.CheckoutRequest{
		UserID:           userID,
		ClientID:         dto.ClientID,
		PaymentMethod:    dto.PaymentMethod,
		PaymentReference: dto.PaymentReference,
		IdempotencyKey:   r.Header.Get("Idempotency-Key"),
	}

	resp, err := h.checkout.InitiateCheckout(ctx, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

func (h *CheckoutHandler) VerifyCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := UserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	result, err := h.checkout.VerifyCheckout(ctx, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
