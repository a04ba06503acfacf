package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ironico1809/tienda-backend/internal/cart/repository"
	cartsvc "github.com/ironico1809/tienda-backend/internal/cart/service"
	"github.com/ironico1809/tienda-backend/internal/catalog"
	checkoutrepo "github.com/ironico1809/tienda-backend/internal/checkout/repository"
	checkoutsvc "github.com/ironico1809/tienda-backend/internal/checkout/service"
	notifyrepo "github.com/ironico1809/tienda-backend/internal/notify/repository"
	"github.com/ironico1809/tienda-backend/internal/payments"
	salesrepo "github.com/ironico1809/tienda-backend/internal/sales/repository"
	"go.uber.org/zap"
)

var ErrInvalidToken = errors.New("invalid token")

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError translates domain errors into HTTP responses. Nothing
// propagates uncaught: unknown errors become a 500 without leaking internals.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkoutsvc.ErrEmptyCart),
		errors.Is(err, checkoutsvc.ErrMissingClient),
		errors.Is(err, checkoutsvc.ErrMissingPaymentMethod),
		errors.Is(err, checkoutsvc.ErrUnknownPaymentMethod),
		errors.Is(err, cartsvc.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, repository.ErrItemNotFound),
		errors.Is(err, salesrepo.ErrSaleNotFound),
		errors.Is(err, checkoutrepo.ErrSessionNotFound),
		errors.Is(err, notifyrepo.ErrNotificationNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, catalog.ErrInsufficientStock),
		errors.Is(err, salesrepo.ErrSaleResolved),
		errors.Is(err, checkoutsvc.ErrIllegalTransition),
		errors.Is(err, checkoutrepo.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, checkoutsvc.ErrPaymentNotCompleted):
		respondError(w, http.StatusPaymentRequired, "payment_not_completed", err.Error())
	case errors.Is(err, checkoutsvc.ErrVerificationUnsettled):
		respondError(w, http.StatusBadGateway, "verification_unsettled", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		var provErr *payments.ProviderError
		if errors.As(err, &provErr) {
			respondError(w, http.StatusBadGateway, "provider_error", provErr.Message)
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
