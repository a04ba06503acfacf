package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ironico1809/tienda-backend/internal/catalog"
	"github.com/shopspring/decimal"
)

type ProductLister interface {
	ListActiveProducts(ctx context.Context) ([]*catalog.Product, error)
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
}

type CatalogHandler struct {
	repo    ProductLister
	pricing catalog.Pricing
	timeout time.Duration
}

func NewCatalogHandler(repo ProductLister, pricing catalog.Pricing, timeout time.Duration) *CatalogHandler {
	return &CatalogHandler{repo: repo, pricing: pricing, timeout: timeout}
}

type ProductDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	PriceBob    decimal.Decimal `json:"price_bob"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url,omitempty"`
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.repo.ListActiveProducts(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, h.toDTO(p))
	}

	respondJSON(w, http.StatusOK, dtos)
}

func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	idStr := chi.URLParam(r, "product_id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	product, err := h.repo.GetProduct(ctx, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.toDTO(product))
}

func (h *CatalogHandler) toDTO(p *catalog.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		PriceBob:    h.pricing.Convert(p.Price),
		Stock:       p.Stock,
		ImageURL:    p.ImageURL,
	}
}
