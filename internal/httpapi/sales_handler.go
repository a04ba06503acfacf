package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ironico1809/tienda-backend/internal/sales/domain"
)

type SalesAPI interface {
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]*domain.Sale, error)
	LatestSales(ctx context.Context, limit int) ([]*domain.Sale, error)
	Stats(ctx context.Context, now time.Time) (*domain.SalesStats, error)
}

type SalesHandler struct {
	sales   SalesAPI
	timeout time.Duration
}

func NewSalesHandler(sales SalesAPI, timeout time.Duration) *SalesHandler {
	return &SalesHandler{sales: sales, timeout: timeout}
}

func (h *SalesHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sales, err := h.sales.ListSales(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if sales == nil {
		sales = []*domain.Sale{}
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *SalesHandler) LatestSales(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 100 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	sales, err := h.sales.LatestSales(ctx, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if sales == nil {
		sales = []*domain.Sale{}
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *SalesHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	idStr := chi.URLParam(r, "sale_id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_sale_id", "sale_id must be a positive integer")
		return
	}

	sale, err := h.sales.GetSale(ctx, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sale)
}

func (h *SalesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.sales.Stats(ctx, time.Now())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

func (h *SalesHandler) PaymentMethods(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, domain.PaymentMethods())
}
