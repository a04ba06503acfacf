package service

import (
	"context"
	"errors"
	"time"

	"github.com/ironico1809/tienda-backend/internal/cart/cache"
	"github.com/ironico1809/tienda-backend/internal/cart/domain"
	"github.com/ironico1809/tienda-backend/internal/cart/repository"
	"github.com/ironico1809/tienda-backend/internal/catalog"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrInvalidQuantity = errors.New("quantity must be a positive integer")

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.RepoInterface
	pricing catalog.Pricing
	logger  *zap.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(
	repo repository.CartRepository,
	cartCache cache.CartCache,
	cat catalog.RepoInterface,
	pricing catalog.Pricing,
	logger *zap.Logger,
) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cartCache,
		catalog: cat,
		pricing: pricing,
		logger:  logger,
	}
}

func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {

		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil // cart is in cache
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get error", zap.String("user_id", userID), zap.Error(err))
		}

		cart, errGet := s.repo.GetCart(ctx, userID)
		if errGet != nil && errors.Is(errGet, repository.ErrCartNotFound) {
			// A user without a stored cart gets an empty one
			return &domain.Cart{
				UserID:    userID,
				Items:     nil,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		// set cache
		go func() {
			if errSet := s.cache.Set(context.Background(), userID, cart); errSet != nil {
				s.logger.Warn("cache set error", zap.String("user_id", userID), zap.Error(errSet))
			}
		}()

		return cart, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem validates the product against the catalog and appends it to the
// user's cart; adding a product that is already present increments its
// quantity.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return err
	}

	item := domain.CartItem{
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   time.Now(),
	}

	if err := s.repo.AddItem(ctx, userID, item); err != nil {
		s.logger.Error("repo add item error", zap.String("user_id", userID), zap.Int64("product_id", productID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

// UpdateQuantity sets an item's quantity. A quantity of zero or less removes
// the item, so a zero-quantity line is never observable.
func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	if err := s.repo.UpdateItemQuantity(ctx, userID, productID, quantity); err != nil {
		s.logger.Error("repo update quantity error", zap.String("user_id", userID), zap.Int64("product_id", productID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64) error {
	if err := s.repo.RemoveItem(ctx, userID, productID); err != nil {
		s.logger.Error("repo remove item error", zap.String("user_id", userID), zap.Int64("product_id", productID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

// ClearCart deletes the cart document. Clearing a cart that does not exist
// is treated as success so the post-sale cleanup path is idempotent.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.logger.Error("repo delete cart error", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
	}
}
