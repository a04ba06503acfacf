package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	cartdomain "github.com/ironico1809/tienda-backend/internal/cart/domain"
	d "github.com/ironico1809/tienda-backend/internal/checkout/domain"
	"github.com/ironico1809/tienda-backend/internal/checkout/repository"
	"github.com/ironico1809/tienda-backend/internal/payments"
	salesdomain "github.com/ironico1809/tienda-backend/internal/sales/domain"
	salesrepo "github.com/ironico1809/tienda-backend/internal/sales/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSessionStore struct {
	sessions     map[string]*repository.CheckoutSession
	byKey        map[string]string
	byProvider   map[string]string
	createCalls  int
	completeErr  error
	outboxWrites int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{
		sessions:   make(map[string]*repository.CheckoutSession),
		byKey:      make(map[string]string),
		byProvider: make(map[string]string),
	}
}

func (m *mockSessionStore) CreateSession(_ context.Context, s *repository.CheckoutSession) error {
	m.createCalls++
	if _, ok := m.byKey[s.IdempotencyKey]; ok {
		return errors.New("duplicate idempotency key")
	}
	cp := *s
	m.sessions[s.ID] = &cp
	m.byKey[s.IdempotencyKey] = s.ID
	return nil
}

func (m *mockSessionStore) GetSessionByIdempotencyKey(_ context.Context, key string) (*repository.CheckoutSession, error) {
	id, ok := m.byKey[key]
	if !ok {
		return nil, repository.ErrIdempotencyKeyNotFound
	}
	cp := *m.sessions[id]
	return &cp, nil
}

func (m *mockSessionStore) GetSessionByProviderID(_ context.Context, providerID string) (*repository.CheckoutSession, error) {
	id, ok := m.byProvider[providerID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *m.sessions[id]
	return &cp, nil
}

func (m *mockSessionStore) UpdateStatus(_ context.Context, id string, status d.CheckoutStatus) error {
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.Status = status
	return nil
}

func (m *mockSessionStore) SetSale(_ context.Context, id string, saleID int64, status d.CheckoutStatus) error {
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.SaleID = &saleID
	s.Status = status
	return nil
}

func (m *mockSessionStore) SetProviderSession(_ context.Context, id, providerID, url string, status d.CheckoutStatus) error {
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.ProviderSessionID = &providerID
	s.CheckoutURL = &url
	s.Status = status
	m.byProvider[providerID] = id
	return nil
}

func (m *mockSessionStore) CompleteSession(_ context.Context, id string, _ []byte, status d.CheckoutStatus) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	s.Status = status
	m.outboxWrites++
	return nil
}

type mockCartGateway struct {
	view       *cartdomain.CartView
	viewErr    error
	clearCalls int
	clearErr   error
}

func (m *mockCartGateway) BuildView(_ context.Context, _ string) (*cartdomain.CartView, error) {
	if m.viewErr != nil {
		return nil, m.viewErr
	}
	return m.view, nil
}

func (m *mockCartGateway) ClearCart(_ context.Context, _ string) error {
	m.clearCalls++
	return m.clearErr
}

type mockSaleStore struct {
	nextID        int64
	createCalls   int
	createErr     error
	created       []*salesdomain.Sale
	statusUpdates map[int64]salesdomain.SaleStatus
	updateErr     error
}

func newMockSaleStore() *mockSaleStore {
	return &mockSaleStore{nextID: 100, statusUpdates: make(map[int64]salesdomain.SaleStatus)}
}

func (m *mockSaleStore) CreateSale(_ context.Context, sale *salesdomain.Sale) (int64, error) {
	m.createCalls++
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	sale.ID = m.nextID
	m.created = append(m.created, sale)
	return m.nextID, nil
}

func (m *mockSaleStore) UpdateStatus(_ context.Context, id int64, to salesdomain.SaleStatus) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.statusUpdates[id] = to
	return nil
}

type mockStockStore struct {
	decremented map[int64]int
	restored    map[int64]int
	failOn      int64
}

func newMockStockStore() *mockStockStore {
	return &mockStockStore{decremented: make(map[int64]int), restored: make(map[int64]int)}
}

func (m *mockStockStore) DecrementStock(_ context.Context, id int64, qty int) error {
	if id == m.failOn {
		return errors.New("insufficient stock")
	}
	m.decremented[id] += qty
	return nil
}

func (m *mockStockStore) RestoreStock(_ context.Context, id int64, qty int) error {
	m.restored[id] += qty
	return nil
}

type mockProvider struct {
	createCalls   int
	createErr     error
	getCalls      int
	getErr        error
	session       *payments.Session
	lastCreateReq *payments.CreateSessionRequest
}

func (m *mockProvider) CreateSession(_ context.Context, req *payments.CreateSessionRequest) (*payments.Session, error) {
	m.createCalls++
	m.lastCreateReq = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.session, nil
}

func (m *mockProvider) GetSession(_ context.Context, _ string) (*payments.Session, error) {
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.session, nil
}

type fixture struct {
	svc      *CheckoutService
	sessions *mockSessionStore
	cart     *mockCartGateway
	sales    *mockSaleStore
	stock    *mockStockStore
	provider *mockProvider
}

func testCartView() *cartdomain.CartView {
	return &cartdomain.CartView{
		UserID: "user-42",
		Items: []cartdomain.CartViewItem{
			{ProductID: 1, ProductName: "Laptop HP Pavilion", UnitPrice: decimal.NewFromInt(1200), Quantity: 1, Subtotal: decimal.NewFromInt(1200)},
			{ProductID: 2, ProductName: "Mouse Logitech M185", UnitPrice: decimal.NewFromInt(50), Quantity: 3, Subtotal: decimal.NewFromInt(150)},
		},
		Subtotal:   decimal.NewFromInt(1350),
		Tax:        decimal.NewFromInt(243),
		Total:      decimal.NewFromInt(1593),
		TotalItems: 4,
	}
}

func newFixture() *fixture {
	f := &fixture{
		sessions: newMockSessionStore(),
		cart:     &mockCartGateway{view: testCartView()},
		sales:    newMockSaleStore(),
		stock:    newMockStockStore(),
		provider: &mockProvider{
			session: &payments.Session{
				ID:            "cs_test_abc",
				URL:           "https://pay.example/cs_test_abc",
				PaymentStatus: payments.PaymentStatusPaid,
				AmountTotal:   159300,
				Currency:      "usd",
			},
		},
	}
	cfg := Config{FrontendURL: "https://tienda.example", Currency: "usd"}
	f.svc = NewCheckoutService(f.sessions, f.cart, f.sales, f.stock, f.provider, cfg, zap.NewNop())
	return f
}

func cashRequest() *d.CheckoutRequest {
	return &d.CheckoutRequest{UserID: "user-42", ClientID: 3, PaymentMethod: "efectivo"}
}

func cardRequest() *d.CheckoutRequest {
	return &d.CheckoutRequest{UserID: "user-42", ClientID: 3, PaymentMethod: "tarjeta"}
}

func TestInitiateCheckout_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.InitiateCheckout(ctx, &d.CheckoutRequest{UserID: "u", PaymentMethod: "efectivo"})
	assert.ErrorIs(t, err, ErrMissingClient)

	_, err = f.svc.InitiateCheckout(ctx, &d.CheckoutRequest{UserID: "u", ClientID: 3})
	assert.ErrorIs(t, err, ErrMissingPaymentMethod)

	_, err = f.svc.InitiateCheckout(ctx, &d.CheckoutRequest{UserID: "u", ClientID: 3, PaymentMethod: "bitcoin"})
	assert.ErrorIs(t, err, ErrUnknownPaymentMethod)

	assert.Zero(t, f.sessions.createCalls)
	assert.Zero(t, f.sales.createCalls)
}

func TestInitiateCheckout_EmptyCart(t *testing.T) {
	f := newFixture()
	f.cart.view = &cartdomain.CartView{UserID: "user-42"}

	_, err := f.svc.InitiateCheckout(context.Background(), cashRequest())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, f.sessions.createCalls)
}

func TestInitiateCheckout_DirectSale(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.InitiateCheckout(context.Background(), cashRequest())
	require.NoError(t, err)

	assert.Equal(t, d.CheckoutStatusResolved, resp.Status)
	assert.Positive(t, resp.SaleID)
	assert.Empty(t, resp.CheckoutURL)

	// One completed sale, no provider involvement.
	require.Len(t, f.sales.created, 1)
	assert.Equal(t, salesdomain.SaleStatusCompleted, f.sales.created[0].Status)
	assert.Zero(t, f.provider.createCalls)

	assert.Equal(t, 1, f.stock.decremented[1])
	assert.Equal(t, 3, f.stock.decremented[2])
	assert.Equal(t, 1, f.cart.clearCalls)
	assert.Equal(t, 1, f.sessions.outboxWrites)
}

func TestInitiateCheckout_DirectSale_StockFailureCompensates(t *testing.T) {
	f := newFixture()
	f.stock.failOn = 2

	_, err := f.svc.InitiateCheckout(context.Background(), cashRequest())
	require.Error(t, err)

	// Product 1 was decremented before product 2 failed, so it is restored.
	assert.Equal(t, 1, f.stock.restored[1])
	assert.Zero(t, f.sales.createCalls)
	assert.Zero(t, f.cart.clearCalls)

	session := singleSession(t, f.sessions)
	assert.Equal(t, d.CheckoutStatusFailed, session.Status)
}

func TestInitiateCheckout_DirectSale_CreateSaleFailureRestoresStock(t *testing.T) {
	f := newFixture()
	f.sales.createErr = errors.New("db down")

	_, err := f.svc.InitiateCheckout(context.Background(), cashRequest())
	require.Error(t, err)

	assert.Equal(t, 1, f.stock.restored[1])
	assert.Equal(t, 3, f.stock.restored[2])
	assert.Equal(t, d.CheckoutStatusFailed, singleSession(t, f.sessions).Status)
}

func TestInitiateCheckout_Card(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	assert.Equal(t, d.CheckoutStatusAwaitingPayment, resp.Status)
	assert.Equal(t, "https://pay.example/cs_test_abc", resp.CheckoutURL)

	// Exactly one pending sale and one provider session before the
	// browser leaves for the hosted page.
	require.Len(t, f.sales.created, 1)
	assert.Equal(t, salesdomain.SaleStatusPending, f.sales.created[0].Status)
	assert.Equal(t, 1, f.provider.createCalls)

	// Nothing is committed yet: no stock movement, cart untouched.
	assert.Empty(t, f.stock.decremented)
	assert.Zero(t, f.cart.clearCalls)
	assert.Zero(t, f.sessions.outboxWrites)

	session := singleSession(t, f.sessions)
	require.NotNil(t, session.ProviderSessionID)
	assert.Equal(t, "cs_test_abc", *session.ProviderSessionID)
}

func TestInitiateCheckout_Card_LineItemsChargeSnapshotTotal(t *testing.T) {
	f := newFixture()

	_, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	req := f.provider.lastCreateReq
	require.NotNil(t, req)

	// The charged cents must equal the snapshot total, tax included, so the
	// provider and the sale never disagree on the amount.
	var charged int64
	for _, li := range req.LineItems {
		charged += li.UnitAmount * int64(li.Quantity)
	}
	assert.Equal(t, int64(159300), charged)

	// Tax rides as its own line item.
	last := req.LineItems[len(req.LineItems)-1]
	assert.Equal(t, "IGV (18%)", last.Name)
	assert.Equal(t, int64(24300), last.UnitAmount)
}

func TestInitiateCheckout_Card_ProviderFailureCancelsSale(t *testing.T) {
	f := newFixture()
	f.provider.createErr = &payments.ProviderError{StatusCode: 502, Message: "upstream down"}

	_, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.Error(t, err)

	require.Len(t, f.sales.created, 1)
	saleID := f.sales.created[0].ID
	assert.Equal(t, salesdomain.SaleStatusCancelled, f.sales.statusUpdates[saleID])
	assert.Equal(t, d.CheckoutStatusFailed, singleSession(t, f.sessions).Status)
}

func TestInitiateCheckout_IdempotencyReplay(t *testing.T) {
	f := newFixture()
	req := cardRequest()
	req.IdempotencyKey = "key-1"

	first, err := f.svc.InitiateCheckout(context.Background(), req)
	require.NoError(t, err)

	second, err := f.svc.InitiateCheckout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.CheckoutID, second.CheckoutID)
	assert.Equal(t, first.SaleID, second.SaleID)
	assert.Equal(t, first.CheckoutURL, second.CheckoutURL)

	// The replay performs no new work.
	assert.Equal(t, 1, f.sessions.createCalls)
	assert.Equal(t, 1, f.sales.createCalls)
	assert.Equal(t, 1, f.provider.createCalls)
}

func TestVerifyCheckout_Paid(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	result, err := f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	require.NoError(t, err)

	assert.Equal(t, resp.SaleID, result.SaleID)
	assert.Equal(t, payments.PaymentStatusPaid, result.PaymentStatus)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(1593)), "amount %s", result.Amount)

	assert.Equal(t, salesdomain.SaleStatusCompleted, f.sales.statusUpdates[resp.SaleID])
	assert.Equal(t, 1, f.stock.decremented[1])
	assert.Equal(t, 3, f.stock.decremented[2])
	assert.Equal(t, 1, f.cart.clearCalls)
	assert.Equal(t, 1, f.sessions.outboxWrites)
	assert.Equal(t, d.CheckoutStatusResolved, singleSession(t, f.sessions).Status)
}

func TestVerifyCheckout_ReportsProviderAmount(t *testing.T) {
	f := newFixture()
	f.provider.session.AmountTotal = 160000

	_, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	result, err := f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	require.NoError(t, err)

	// The result carries what the provider settled, not a recomputed total.
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(1600)), "amount %s", result.Amount)
}

func TestVerifyCheckout_SessionWithoutSaleLeavesStockUntouched(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	snapshotJSON, err := json.Marshal(snapshotFromView(testCartView(), "usd"))
	require.NoError(t, err)
	session := &repository.CheckoutSession{
		ID:             "sess-no-sale",
		UserID:         "user-42",
		IdempotencyKey: "key-no-sale",
		Status:         d.CheckoutStatusValidating,
		CartSnapshot:   snapshotJSON,
	}
	require.NoError(t, f.sessions.CreateSession(ctx, session))
	require.NoError(t, f.sessions.SetProviderSession(ctx, session.ID, "cs_test_abc", "https://pay.example/cs_test_abc", d.CheckoutStatusAwaitingPayment))

	_, err = f.svc.VerifyCheckout(ctx, "cs_test_abc")
	require.Error(t, err)
	assert.Empty(t, f.stock.decremented)
}

func TestVerifyCheckout_NotPaid(t *testing.T) {
	f := newFixture()
	f.provider.session.PaymentStatus = "unpaid"

	resp, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	_, err = f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)

	// The pending sale is left alone and nothing was committed.
	_, updated := f.sales.statusUpdates[resp.SaleID]
	assert.False(t, updated)
	assert.Empty(t, f.stock.decremented)
	assert.Zero(t, f.cart.clearCalls)
	assert.Equal(t, d.CheckoutStatusFailed, singleSession(t, f.sessions).Status)
}

func TestVerifyCheckout_TransportFailureIsRetryable(t *testing.T) {
	f := newFixture()

	_, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	f.provider.getErr = errors.New("connection refused")
	_, err = f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	assert.ErrorIs(t, err, ErrVerificationUnsettled)
	assert.Equal(t, d.CheckoutStatusVerifying, singleSession(t, f.sessions).Status)

	// A later attempt succeeds from VERIFYING.
	f.provider.getErr = nil
	result, err := f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	require.NoError(t, err)
	assert.Equal(t, payments.PaymentStatusPaid, result.PaymentStatus)
	assert.Equal(t, d.CheckoutStatusResolved, singleSession(t, f.sessions).Status)
}

func TestVerifyCheckout_AlreadyResolved(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	_, err = f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	require.NoError(t, err)
	getCalls := f.provider.getCalls

	// Second verification is answered from the stored session.
	result, err := f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	require.NoError(t, err)
	assert.Equal(t, resp.SaleID, result.SaleID)
	assert.Equal(t, getCalls, f.provider.getCalls)
	assert.Equal(t, 1, f.stock.decremented[1], "stock must not be decremented twice")
}

func TestVerifyCheckout_AlreadyFailed(t *testing.T) {
	f := newFixture()
	f.provider.session.PaymentStatus = "unpaid"

	_, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	_, err = f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	require.ErrorIs(t, err, ErrPaymentNotCompleted)

	_, err = f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	assert.ErrorIs(t, err, ErrPaymentNotCompleted)
}

func TestVerifyCheckout_RaceWithOtherVerifier(t *testing.T) {
	f := newFixture()

	_, err := f.svc.InitiateCheckout(context.Background(), cardRequest())
	require.NoError(t, err)

	f.sales.updateErr = salesrepo.ErrSaleResolved
	result, err := f.svc.VerifyCheckout(context.Background(), "cs_test_abc")
	require.NoError(t, err)
	assert.Equal(t, payments.PaymentStatusPaid, result.PaymentStatus)

	// Our decrement is undone because the winner already committed it.
	assert.Equal(t, 1, f.stock.restored[1])
	assert.Equal(t, 3, f.stock.restored[2])
}

func TestVerifyCheckout_UnknownProviderSession(t *testing.T) {
	f := newFixture()

	_, err := f.svc.VerifyCheckout(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func singleSession(t *testing.T, store *mockSessionStore) *repository.CheckoutSession {
	t.Helper()
	require.Len(t, store.sessions, 1)
	for _, s := range store.sessions {
		return s
	}
	return nil
}
