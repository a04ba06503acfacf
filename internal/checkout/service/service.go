package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	cartdomain "github.com/ironico1809/tienda-backend/internal/cart/domain"
	d "github.com/ironico1809/tienda-backend/internal/checkout/domain"
	"github.com/ironico1809/tienda-backend/internal/checkout/repository"
	"github.com/ironico1809/tienda-backend/internal/payments"
	salesdomain "github.com/ironico1809/tienda-backend/internal/sales/domain"
	salesrepo "github.com/ironico1809/tienda-backend/internal/sales/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartGateway is the slice of the cart service the checkout needs: a priced
// view to snapshot and a way to empty the cart after a confirmed sale.
type CartGateway interface {
	BuildView(ctx context.Context, userID string) (*cartdomain.CartView, error)
	ClearCart(ctx context.Context, userID string) error
}

type SaleStore interface {
	CreateSale(ctx context.Context, sale *salesdomain.Sale) (int64, error)
	UpdateStatus(ctx context.Context, id int64, to salesdomain.SaleStatus) error
}

type StockStore interface {
	DecrementStock(ctx context.Context, id int64, qty int) error
	RestoreStock(ctx context.Context, id int64, qty int) error
}

type PaymentProvider interface {
	CreateSession(ctx context.Context, req *payments.CreateSessionRequest) (*payments.Session, error)
	GetSession(ctx context.Context, id string) (*payments.Session, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, session *repository.CheckoutSession) error
	GetSessionByIdempotencyKey(ctx context.Context, key string) (*repository.CheckoutSession, error)
	GetSessionByProviderID(ctx context.Context, providerSessionID string) (*repository.CheckoutSession, error)
	UpdateStatus(ctx context.Context, id string, status d.CheckoutStatus) error
	SetSale(ctx context.Context, id string, saleID int64, status d.CheckoutStatus) error
	SetProviderSession(ctx context.Context, id, providerSessionID, checkoutURL string, status d.CheckoutStatus) error
	CompleteSession(ctx context.Context, id string, payload []byte, status d.CheckoutStatus) error
}

type Config struct {
	FrontendURL string
	Currency    string
	SellerID    *int64
}

type CheckoutService struct {
	sessions SessionStore
	cart     CartGateway
	sales    SaleStore
	stock    StockStore
	provider PaymentProvider
	cfg      Config
	logger   *zap.Logger
}

func NewCheckoutService(sessions SessionStore, cart CartGateway, sales SaleStore, stock StockStore, provider PaymentProvider, cfg Config, logger *zap.Logger) *CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &CheckoutService{
		sessions: sessions,
		cart:     cart,
		sales:    sales,
		stock:    stock,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// InitiateCheckout validates the request, snapshots the cart and follows one
// of two paths: non-card methods close the sale immediately, card payments
// create a pending sale and hand the caller a hosted payment page.
func (s *CheckoutService) InitiateCheckout(ctx context.Context, req *d.CheckoutRequest) (*d.CheckoutResponse, error) {
	if req.ClientID <= 0 {
		return nil, ErrMissingClient
	}
	if req.PaymentMethod == "" {
		return nil, ErrMissingPaymentMethod
	}
	if !salesdomain.IsKnownPaymentMethod(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, req.PaymentMethod)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.sessions.GetSessionByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return responseFromSession(existing), nil
		}
		if !errors.Is(err, repository.ErrIdempotencyKeyNotFound) {
			return nil, err
		}
	}

	view, err := s.cart.BuildView(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(view.Items) == 0 {
		return nil, ErrEmptyCart
	}

	snapshot := snapshotFromView(view, s.cfg.Currency)
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal cart snapshot: %w", err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.New().String()
	}
	session := &repository.CheckoutSession{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		IdempotencyKey: key,
		Status:         d.CheckoutStatusValidating,
		CartSnapshot:   snapshotJSON,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if req.PaymentMethod == salesdomain.PaymentMethodCard {
		return s.initiateCardCheckout(ctx, session, req, snapshot)
	}
	return s.initiateDirectSale(ctx, session, req, snapshot)
}

// initiateDirectSale commits stock, sale and cart in one pass. Stock is
// decremented first and restored if the sale cannot be created.
func (s *CheckoutService) initiateDirectSale(ctx context.Context, session *repository.CheckoutSession, req *d.CheckoutRequest, snapshot *d.CartSnapshot) (*d.CheckoutResponse, error) {
	if err := s.decrementStock(ctx, snapshot); err != nil {
		s.fail(ctx, session.ID)
		return nil, err
	}

	sale := saleFromSnapshot(req, snapshot, salesdomain.SaleStatusCompleted, s.cfg.SellerID)
	saleID, err := s.sales.CreateSale(ctx, sale)
	if err != nil {
		s.restoreStock(ctx, snapshot)
		s.fail(ctx, session.ID)
		return nil, fmt.Errorf("create sale: %w", err)
	}

	if err := s.sessions.SetSale(ctx, session.ID, saleID, d.CheckoutStatusDirectSale); err != nil {
		return nil, err
	}

	if err := s.cart.ClearCart(ctx, req.UserID); err != nil {
		s.logger.Warn("failed to clear cart after direct sale",
			zap.String("user_id", req.UserID),
			zap.Int64("sale_id", saleID),
			zap.Error(err))
	}

	payload, err := completionPayload(session.ID, req.UserID, saleID, snapshot.TotalAmount)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.CompleteSession(ctx, session.ID, payload, d.CheckoutStatusResolved); err != nil {
		return nil, err
	}

	s.logger.Info("direct sale completed",
		zap.String("checkout_id", session.ID),
		zap.Int64("sale_id", saleID),
		zap.String("payment_method", req.PaymentMethod))

	return &d.CheckoutResponse{
		CheckoutID: session.ID,
		SaleID:     saleID,
		Status:     d.CheckoutStatusResolved,
	}, nil
}

// initiateCardCheckout records a pending sale before the browser leaves for
// the provider, so a sale row exists no matter how the redirect ends.
func (s *CheckoutService) initiateCardCheckout(ctx context.Context, session *repository.CheckoutSession, req *d.CheckoutRequest, snapshot *d.CartSnapshot) (*d.CheckoutResponse, error) {
	sale := saleFromSnapshot(req, snapshot, salesdomain.SaleStatusPending, s.cfg.SellerID)
	saleID, err := s.sales.CreateSale(ctx, sale)
	if err != nil {
		s.fail(ctx, session.ID)
		return nil, fmt.Errorf("create pending sale: %w", err)
	}
	if err := s.sessions.SetSale(ctx, session.ID, saleID, d.CheckoutStatusValidating); err != nil {
		return nil, err
	}

	provReq := &payments.CreateSessionRequest{
		LineItems:  lineItemsFromSnapshot(snapshot),
		Currency:   s.cfg.Currency,
		SuccessURL: fmt.Sprintf("%s/pago-exitoso?success=true&sale_id=%d&session_id=%s", s.cfg.FrontendURL, saleID, payments.SessionIDToken),
		CancelURL:  s.cfg.FrontendURL + "/carrito",
		Metadata: map[string]string{
			"checkout_id": session.ID,
			"sale_id":     fmt.Sprintf("%d", saleID),
			"user_id":     req.UserID,
		},
	}

	provSession, err := s.provider.CreateSession(ctx, provReq)
	if err != nil {
		s.cancelSale(ctx, saleID)
		s.fail(ctx, session.ID)
		return nil, fmt.Errorf("create provider session: %w", err)
	}

	if err := s.sessions.SetProviderSession(ctx, session.ID, provSession.ID, provSession.URL, d.CheckoutStatusAwaitingPayment); err != nil {
		return nil, err
	}

	s.logger.Info("card checkout awaiting payment",
		zap.String("checkout_id", session.ID),
		zap.Int64("sale_id", saleID),
		zap.String("provider_session_id", provSession.ID))

	return &d.CheckoutResponse{
		CheckoutID:  session.ID,
		SaleID:      saleID,
		Status:      d.CheckoutStatusAwaitingPayment,
		CheckoutURL: provSession.URL,
	}, nil
}

// VerifyCheckout asks the provider whether the hosted payment succeeded and
// settles the sale accordingly. It is safe to call more than once for the
// same provider session.
func (s *CheckoutService) VerifyCheckout(ctx context.Context, providerSessionID string) (*d.VerifyResult, error) {
	session, err := s.sessions.GetSessionByProviderID(ctx, providerSessionID)
	if err != nil {
		return nil, err
	}

	var snapshot d.CartSnapshot
	if err := json.Unmarshal(session.CartSnapshot, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}

	switch session.Status {
	case d.CheckoutStatusResolved:
		// A previous verification already settled this session; the charged
		// amount equals the snapshot total by construction.
		return verifyResult(session, snapshot.TotalAmount, payments.PaymentStatusPaid), nil
	case d.CheckoutStatusFailed:
		return nil, ErrPaymentNotCompleted
	default:
		if !d.CanTransitionTo(session.Status, d.CheckoutStatusVerifying) {
			return nil, fmt.Errorf("%w: cannot verify from %s", ErrIllegalTransition, session.Status)
		}
	}

	if err := s.sessions.UpdateStatus(ctx, session.ID, d.CheckoutStatusVerifying); err != nil {
		return nil, err
	}

	provSession, err := s.provider.GetSession(ctx, providerSessionID)
	if err != nil {
		var provErr *payments.ProviderError
		if !errors.As(err, &provErr) {
			// Transport failure: the outcome is unknown, stay in
			// VERIFYING so the check can be retried.
			return nil, fmt.Errorf("%w: %v", ErrVerificationUnsettled, err)
		}
		s.fail(ctx, session.ID)
		return nil, fmt.Errorf("provider rejected session lookup: %w", err)
	}

	if !provSession.Paid() {
		// The sale stays Pendiente; the user may start a new checkout.
		s.fail(ctx, session.ID)
		s.logger.Info("payment not completed",
			zap.String("checkout_id", session.ID),
			zap.String("payment_status", provSession.PaymentStatus))
		return nil, fmt.Errorf("%w: provider reports %q", ErrPaymentNotCompleted, provSession.PaymentStatus)
	}

	if session.SaleID == nil {
		return nil, fmt.Errorf("checkout session %s has no sale", session.ID)
	}

	if err := s.decrementStock(ctx, &snapshot); err != nil {
		// Payment is captured but stock could not be committed. Keep
		// VERIFYING so the next attempt retries the decrement.
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnsettled, err)
	}

	if err := s.sales.UpdateStatus(ctx, *session.SaleID, salesdomain.SaleStatusCompleted); err != nil {
		if !errors.Is(err, salesrepo.ErrSaleResolved) {
			s.restoreStock(ctx, &snapshot)
			return nil, fmt.Errorf("complete sale: %w", err)
		}
		// Concurrent verification won the race; undo our decrement.
		s.restoreStock(ctx, &snapshot)
	}

	if err := s.cart.ClearCart(ctx, session.UserID); err != nil {
		s.logger.Warn("failed to clear cart after payment",
			zap.String("user_id", session.UserID),
			zap.Error(err))
	}

	payload, err := completionPayload(session.ID, session.UserID, *session.SaleID, snapshot.TotalAmount)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.CompleteSession(ctx, session.ID, payload, d.CheckoutStatusResolved); err != nil {
		return nil, err
	}

	s.logger.Info("payment verified",
		zap.String("checkout_id", session.ID),
		zap.Int64("sale_id", *session.SaleID))

	// Report the amount the provider actually settled.
	return verifyResult(session, provSession.Amount(), provSession.PaymentStatus), nil
}

func (s *CheckoutService) decrementStock(ctx context.Context, snapshot *d.CartSnapshot) error {
	for i, item := range snapshot.Items {
		if err := s.stock.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			for _, done := range snapshot.Items[:i] {
				if e2 := s.stock.RestoreStock(ctx, done.ProductID, done.Quantity); e2 != nil {
					s.logger.Error("failed to restore stock",
						zap.Int64("product_id", done.ProductID),
						zap.Error(e2))
				}
			}
			return fmt.Errorf("decrement stock for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

func (s *CheckoutService) restoreStock(ctx context.Context, snapshot *d.CartSnapshot) {
	for _, item := range snapshot.Items {
		if err := s.stock.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("failed to restore stock",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

func (s *CheckoutService) fail(ctx context.Context, sessionID string) {
	if err := s.sessions.UpdateStatus(ctx, sessionID, d.CheckoutStatusFailed); err != nil {
		s.logger.Error("failed to mark checkout as failed",
			zap.String("checkout_id", sessionID),
			zap.Error(err))
	}
}

func (s *CheckoutService) cancelSale(ctx context.Context, saleID int64) {
	if err := s.sales.UpdateStatus(ctx, saleID, salesdomain.SaleStatusCancelled); err != nil {
		s.logger.Error("failed to cancel pending sale",
			zap.Int64("sale_id", saleID),
			zap.Error(err))
	}
}

func snapshotFromView(view *cartdomain.CartView, currency string) *d.CartSnapshot {
	items := make([]d.CartSnapshotItem, 0, len(view.Items))
	for _, it := range view.Items {
		items = append(items, d.CartSnapshotItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
		})
	}
	return &d.CartSnapshot{
		Items:       items,
		Subtotal:    view.Subtotal,
		Tax:         view.Tax,
		TotalAmount: view.Total,
		Currency:    currency,
		CapturedAt:  time.Now().UTC(),
	}
}

func saleFromSnapshot(req *d.CheckoutRequest, snapshot *d.CartSnapshot, status salesdomain.SaleStatus, sellerID *int64) *salesdomain.Sale {
	details := make([]salesdomain.SaleDetail, 0, len(snapshot.Items))
	for _, it := range snapshot.Items {
		details = append(details, salesdomain.SaleDetail{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
		})
	}
	return &salesdomain.Sale{
		ClientID:         req.ClientID,
		SellerID:         sellerID,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Status:           status,
		Details:          details,
	}
}

// lineItemsFromSnapshot converts the snapshot into provider line items. Tax
// is carried as its own line so the charged amount equals the snapshot's
// TotalAmount exactly.
func lineItemsFromSnapshot(snapshot *d.CartSnapshot) []payments.LineItem {
	items := make([]payments.LineItem, 0, len(snapshot.Items)+1)
	for _, it := range snapshot.Items {
		items = append(items, payments.LineItem{
			Name:       it.ProductName,
			UnitAmount: minorUnits(it.UnitPrice),
			Quantity:   it.Quantity,
		})
	}
	if snapshot.Tax.IsPositive() {
		items = append(items, payments.LineItem{
			Name:       "IGV (18%)",
			UnitAmount: minorUnits(snapshot.Tax),
			Quantity:   1,
		})
	}
	return items
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func completionPayload(checkoutID, userID string, saleID int64, total decimal.Decimal) ([]byte, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"checkout_id": checkoutID,
		"sale_id":     saleID,
		"user_id":     userID,
		"total":       total,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion payload: %w", err)
	}
	return payload, nil
}

func responseFromSession(session *repository.CheckoutSession) *d.CheckoutResponse {
	resp := &d.CheckoutResponse{
		CheckoutID: session.ID,
		Status:     session.Status,
	}
	if session.SaleID != nil {
		resp.SaleID = *session.SaleID
	}
	if session.CheckoutURL != nil {
		resp.CheckoutURL = *session.CheckoutURL
	}
	return resp
}

func verifyResult(session *repository.CheckoutSession, amount decimal.Decimal, paymentStatus string) *d.VerifyResult {
	res := &d.VerifyResult{
		CheckoutID:    session.ID,
		Amount:        amount,
		PaymentStatus: paymentStatus,
	}
	if session.SaleID != nil {
		res.SaleID = *session.SaleID
	}
	return res
}
