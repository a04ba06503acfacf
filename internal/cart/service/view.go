package service

import (
	"context"
	"fmt"

	"github.com/ironico1809/tienda-backend/internal/cart/domain"
	"github.com/shopspring/decimal"
)

// BuildView prices the stored cart against the catalog and computes the
// derived totals. Prices are never stored with the cart, so the view always
// reflects current catalog prices.
func (s *CartService) BuildView(ctx context.Context, userID string) (*domain.CartView, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &domain.CartView{
		UserID:       userID,
		Items:        make([]domain.CartViewItem, 0, len(cart.Items)),
		ExchangeRate: s.pricing.ExchangeRate,
	}

	subtotal := decimal.Zero
	for _, item := range cart.Items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to price cart item %d: %w", item.ProductID, err)
		}

		lineSubtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))

		view.Items = append(view.Items, domain.CartViewItem{
			ProductID:   item.ProductID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    item.Quantity,
			Subtotal:    lineSubtotal,
			Stock:       product.Stock,
			ImageURL:    product.ImageURL,
		})

		subtotal = subtotal.Add(lineSubtotal)
		view.TotalItems += item.Quantity
	}

	view.Subtotal = subtotal
	view.Tax = s.pricing.Tax(subtotal)
	view.Total = subtotal.Add(view.Tax)
	view.TotalBob = s.pricing.Convert(view.Total)

	return view, nil
}
