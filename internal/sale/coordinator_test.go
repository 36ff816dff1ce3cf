package sale

import (
	"context"
	"errors"
	"testing"
	"time"

	"sales-engine/internal/domain"
	"sales-engine/internal/notify"
	pkgerrors "sales-engine/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSaleStore is a mock implementation of SaleStore
type MockSaleStore struct {
	mock.Mock
}

func (m *MockSaleStore) CommitSale(ctx context.Context, sale *domain.Sale, items []domain.SaleLineItem) (int64, error) {
	args := m.Called(ctx, sale, items)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSaleStore) MarkSynced(ctx context.Context, localID int64, remoteID string) error {
	args := m.Called(ctx, localID, remoteID)
	return args.Error(0)
}

func (m *MockSaleStore) GetSale(ctx context.Context, localID int64) (*domain.Sale, error) {
	args := m.Called(ctx, localID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Sale), args.Error(1)
}

func (m *MockSaleStore) GetSaleItems(ctx context.Context, localID int64) ([]domain.SaleLineItem, error) {
	args := m.Called(ctx, localID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SaleLineItem), args.Error(1)
}

func (m *MockSaleStore) ListPendingSales(ctx context.Context) ([]domain.Sale, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Sale), args.Error(1)
}

func (m *MockSaleStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

// MockInventory is a mock implementation of Inventory
type MockInventory struct {
	mock.Mock
}

func (m *MockInventory) ResolveAssignedWarehouse(ctx context.Context, sellerID string) (*domain.WarehouseRef, error) {
	args := m.Called(ctx, sellerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WarehouseRef), args.Error(1)
}

func (m *MockInventory) DecrementOnSale(ctx context.Context, productID string, qty int) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

// MockRemoteLedger is a mock implementation of RemoteLedger
type MockRemoteLedger struct {
	mock.Mock
}

func (m *MockRemoteLedger) Send(ctx context.Context, sale *domain.Sale, items []domain.SaleLineItem) (string, error) {
	args := m.Called(ctx, sale, items)
	return args.String(0), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifySupervisor(ctx context.Context, notice notify.SaleNotice) error {
	args := m.Called(ctx, notice)
	return args.Error(0)
}

func testCart() domain.Cart {
	return domain.Cart{
		{ProductID: "p1", Name: "Agua 1L", UnitPrice: 10, Quantity: 3},
		{ProductID: "p2", Name: "Hielo 5kg", UnitPrice: 5, Quantity: 1},
	}
}

func testSession() Session {
	return Session{SellerID: "seller-1", SellerName: "Juan", RouteName: "Ruta 5", Online: true}
}

func warehouse() *domain.WarehouseRef {
	return &domain.WarehouseRef{ID: "wh-1", Name: "Almacén Norte"}
}

func drain(t *testing.T, results <-chan TaskResult) []TaskResult {
	t.Helper()
	var out []TaskResult
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatal("timed out waiting for follow-up tasks")
		}
	}
}

func TestValidateCart_EmptyCart(t *testing.T) {
	c := NewCoordinator(new(MockSaleStore), new(MockInventory), new(MockRemoteLedger), nil, nil, nil, 1, zap.NewNop())

	err := c.ValidateCart(context.Background(), testSession(), domain.Cart{})

	var stdErr *pkgerrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, "EmptyCart", stdErr.Code)
}

func TestValidateCart_NoWarehouse(t *testing.T) {
	inv := new(MockInventory)
	inv.On("ResolveAssignedWarehouse", mock.Anything, "seller-1").Return(nil, nil)

	st := new(MockSaleStore)
	c := NewCoordinator(st, inv, new(MockRemoteLedger), nil, nil, nil, 1, zap.NewNop())

	err := c.ValidateCart(context.Background(), testSession(), testCart())

	var stdErr *pkgerrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, "NoWarehouse", stdErr.Code)
	// Rejection happens before any persistence.
	st.AssertNotCalled(t, "CommitSale", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateCart_InsufficientStock(t *testing.T) {
	inv := new(MockInventory)
	inv.On("ResolveAssignedWarehouse", mock.Anything, "seller-1").Return(warehouse(), nil)

	st := new(MockSaleStore)
	st.On("GetProduct", mock.Anything, "p1").Return(&domain.Product{ID: "p1", AvailableQty: 2}, nil)

	c := NewCoordinator(st, inv, new(MockRemoteLedger), nil, nil, nil, 1, zap.NewNop())

	err := c.ValidateCart(context.Background(), testSession(), testCart())

	var stdErr *pkgerrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, "InsufficientStock", stdErr.Code)
}

func TestValidateCart_OK(t *testing.T) {
	inv := new(MockInventory)
	inv.On("ResolveAssignedWarehouse", mock.Anything, "seller-1").Return(warehouse(), nil)

	st := new(MockSaleStore)
	st.On("GetProduct", mock.Anything, "p1").Return(&domain.Product{ID: "p1", AvailableQty: 5}, nil)
	st.On("GetProduct", mock.Anything, "p2").Return(&domain.Product{ID: "p2", AvailableQty: 5}, nil)

	c := NewCoordinator(st, inv, new(MockRemoteLedger), nil, nil, nil, 1, zap.NewNop())

	assert.NoError(t, c.ValidateCart(context.Background(), testSession(), testCart()))
}

func TestCommitSale_DurabilityFailureIsFatal(t *testing.T) {
	inv := new(MockInventory)
	inv.On("ResolveAssignedWarehouse", mock.Anything, "seller-1").Return(warehouse(), nil)

	st := new(MockSaleStore)
	st.On("GetProduct", mock.Anything, mock.Anything).Return(&domain.Product{AvailableQty: 10}, nil)
	st.On("CommitSale", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), errors.New("disk full"))

	c := NewCoordinator(st, inv, new(MockRemoteLedger), nil, nil, nil, 1, zap.NewNop())

	_, results, err := c.CommitSale(context.Background(), testSession(), CommitInput{
		ClientID: "c1", ClientName: "Tienda Lupita", Cart: testCart(), PaymentMethod: "efectivo",
	})

	require.Error(t, err)
	assert.Nil(t, results)
	// No side effects fire when the durability boundary fails.
	inv.AssertNotCalled(t, "DecrementOnSale", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommitSale_OfflineDefersSyncButCommits(t *testing.T) {
	session := testSession()
	session.Online = false

	inv := new(MockInventory)
	inv.On("ResolveAssignedWarehouse", mock.Anything, "seller-1").Return(warehouse(), nil)
	inv.On("DecrementOnSale", mock.Anything, "p1", 3).Return(nil)
	inv.On("DecrementOnSale", mock.Anything, "p2", 1).Return(nil)

	st := new(MockSaleStore)
	st.On("GetProduct", mock.Anything, mock.Anything).Return(&domain.Product{AvailableQty: 10}, nil)
	st.On("CommitSale", mock.Anything, mock.Anything, mock.Anything).Return(int64(7), nil)

	notifier := new(MockNotifier)
	notifier.On("NotifySupervisor", mock.Anything, mock.Anything).Return(nil)

	ledger := new(MockRemoteLedger)
	c := NewCoordinator(st, inv, ledger, notifier, nil, nil, 1, zap.NewNop())

	localID, results, err := c.CommitSale(context.Background(), session, CommitInput{
		ClientID: "c1", ClientName: "Tienda Lupita", Cart: testCart(), PaymentMethod: "efectivo",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), localID)

	tasks := drain(t, results)
	// Sync never ran offline; notification still fired.
	for _, task := range tasks {
		assert.NotEqual(t, "sync", task.Name)
	}
	ledger.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	notifier.AssertExpectations(t)
	inv.AssertExpectations(t)
}

func TestCommitSale_DecrementFailureIsNotFatal(t *testing.T) {
	session := testSession()
	session.Online = false

	inv := new(MockInventory)
	inv.On("ResolveAssignedWarehouse", mock.Anything, "seller-1").Return(warehouse(), nil)
	inv.On("DecrementOnSale", mock.Anything, "p1", 3).Return(errors.New("row gone"))
	inv.On("DecrementOnSale", mock.Anything, "p2", 1).Return(nil)

	st := new(MockSaleStore)
	st.On("GetProduct", mock.Anything, mock.Anything).Return(&domain.Product{AvailableQty: 10}, nil)
	st.On("CommitSale", mock.Anything, mock.Anything, mock.Anything).Return(int64(8), nil)

	c := NewCoordinator(st, inv, new(MockRemoteLedger), nil, nil, nil, 1, zap.NewNop())

	localID, results, err := c.CommitSale(context.Background(), session, CommitInput{
		ClientID: "c1", ClientName: "Tienda Lupita", Cart: testCart(), PaymentMethod: "efectivo",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(8), localID)
	drain(t, results)
}

func TestCommitSale_OnlineRunsSync(t *testing.T) {
	inv := new(MockInventory)
	inv.On("ResolveAssignedWarehouse", mock.Anything, "seller-1").Return(warehouse(), nil)
	inv.On("DecrementOnSale", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	committed := &domain.Sale{LocalID: 9, WarehouseID: "wh-1", SyncState: domain.SyncPending}
	items := []domain.SaleLineItem{{ProductID: "p1", Name: "Agua 1L", UnitPrice: 10, Quantity: 3}}

	st := new(MockSaleStore)
	st.On("GetProduct", mock.Anything, mock.Anything).Return(&domain.Product{AvailableQty: 10}, nil)
	st.On("CommitSale", mock.Anything, mock.Anything, mock.Anything).Return(int64(9), nil)
	st.On("GetSale", mock.Anything, int64(9)).Return(committed, nil)
	st.On("GetSaleItems", mock.Anything, int64(9)).Return(items, nil)
	st.On("MarkSynced", mock.Anything, int64(9), "remote-9").Return(nil)

	ledger := new(MockRemoteLedger)
	ledger.On("Send", mock.Anything, committed, items).Return("remote-9", nil)

	c := NewCoordinator(st, inv, ledger, nil, nil, nil, 1, zap.NewNop())

	_, results, err := c.CommitSale(context.Background(), testSession(), CommitInput{
		ClientID: "c1", ClientName: "Tienda Lupita", Cart: testCart(), PaymentMethod: "efectivo",
	})
	require.NoError(t, err)

	tasks := drain(t, results)
	require.Len(t, tasks, 1)
	assert.Equal(t, "sync", tasks[0].Name)
	assert.NoError(t, tasks[0].Err)
	st.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestAttemptSync_FailureLeavesSalePending(t *testing.T) {
	pending := &domain.Sale{LocalID: 5, WarehouseID: "wh-1", SyncState: domain.SyncPending}
	items := []domain.SaleLineItem{{ProductID: "p1", Name: "Agua 1L", UnitPrice: 10, Quantity: 3}}

	st := new(MockSaleStore)
	st.On("GetSale", mock.Anything, int64(5)).Return(pending, nil)
	st.On("GetSaleItems", mock.Anything, int64(5)).Return(items, nil)

	ledger := new(MockRemoteLedger)
	ledger.On("Send", mock.Anything, pending, items).Return("", errors.New("connection refused")).Once()
	ledger.On("Send", mock.Anything, pending, items).Return("remote-5", nil).Once()

	c := NewCoordinator(st, new(MockInventory), ledger, nil, nil, nil, 1, zap.NewNop())

	// First attempt: transport error, sale stays pending, nothing marked.
	outcome, err := c.AttemptSync(context.Background(), testSession(), 5)
	require.NoError(t, err)
	assert.Equal(t, SyncFailed, outcome.Status)
	st.AssertNotCalled(t, "MarkSynced", mock.Anything, mock.Anything, mock.Anything)

	// Retry succeeds: same local id keys the submission, so the remote
	// cannot end up with two records, and the sale moves to SYNCED.
	st.On("MarkSynced", mock.Anything, int64(5), "remote-5").Return(nil)
	outcome, err = c.AttemptSync(context.Background(), testSession(), 5)
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, outcome.Status)
	assert.Equal(t, "remote-5", outcome.RemoteID)

	// No second sale was ever created locally.
	st.AssertNotCalled(t, "CommitSale", mock.Anything, mock.Anything, mock.Anything)
	ledger.AssertExpectations(t)
}

func TestAttemptSync_AlreadySyncedIsIdempotent(t *testing.T) {
	synced := &domain.Sale{LocalID: 5, RemoteID: "remote-5", WarehouseID: "wh-1", SyncState: domain.SyncSynced}

	st := new(MockSaleStore)
	st.On("GetSale", mock.Anything, int64(5)).Return(synced, nil)

	ledger := new(MockRemoteLedger)
	c := NewCoordinator(st, new(MockInventory), ledger, nil, nil, nil, 1, zap.NewNop())

	outcome, err := c.AttemptSync(context.Background(), testSession(), 5)
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, outcome.Status)
	assert.Equal(t, "remote-5", outcome.RemoteID)
	ledger.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestAttemptSync_Deferred(t *testing.T) {
	pending := &domain.Sale{LocalID: 5, WarehouseID: "wh-1", SyncState: domain.SyncPending}
	noWarehouse := &domain.Sale{LocalID: 6, SyncState: domain.SyncPending}

	st := new(MockSaleStore)
	st.On("GetSale", mock.Anything, int64(5)).Return(pending, nil)
	st.On("GetSale", mock.Anything, int64(6)).Return(noWarehouse, nil)

	c := NewCoordinator(st, new(MockInventory), new(MockRemoteLedger), nil, nil, nil, 1, zap.NewNop())

	offline := testSession()
	offline.Online = false
	outcome, err := c.AttemptSync(context.Background(), offline, 5)
	require.NoError(t, err)
	assert.Equal(t, SyncDeferred, outcome.Status)

	outcome, err = c.AttemptSync(context.Background(), testSession(), 6)
	require.NoError(t, err)
	assert.Equal(t, SyncDeferred, outcome.Status)
}

func TestSyncPending_Report(t *testing.T) {
	sales := []domain.Sale{
		{LocalID: 1, WarehouseID: "wh-1", SyncState: domain.SyncPending},
		{LocalID: 2, WarehouseID: "", SyncState: domain.SyncPending},
		{LocalID: 3, WarehouseID: "wh-1", SyncState: domain.SyncPending},
	}
	items := []domain.SaleLineItem{{ProductID: "p1", Name: "Agua 1L", UnitPrice: 10, Quantity: 1}}

	st := new(MockSaleStore)
	st.On("ListPendingSales", mock.Anything).Return(sales, nil)
	st.On("GetSale", mock.Anything, int64(1)).Return(&sales[0], nil)
	st.On("GetSale", mock.Anything, int64(2)).Return(&sales[1], nil)
	st.On("GetSale", mock.Anything, int64(3)).Return(&sales[2], nil)
	st.On("GetSaleItems", mock.Anything, mock.Anything).Return(items, nil)
	st.On("MarkSynced", mock.Anything, int64(1), "remote-1").Return(nil)

	ledger := new(MockRemoteLedger)
	ledger.On("Send", mock.Anything, &sales[0], items).Return("remote-1", nil)
	ledger.On("Send", mock.Anything, &sales[2], items).Return("", errors.New("rechazado: stock insuficiente"))

	c := NewCoordinator(st, new(MockInventory), ledger, nil, nil, nil, 2, zap.NewNop())

	report, err := c.SyncPending(context.Background(), testSession())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 1, report.Deferred)
	assert.Equal(t, 1, report.Failed)
}
