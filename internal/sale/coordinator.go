package sale

import (
	"context"
	"fmt"
	"time"

	"sales-engine/internal/domain"
	"sales-engine/internal/notify"
	pkgerrors "sales-engine/pkg/errors"

	"go.uber.org/zap"
)

// Session carries the operator identity and connectivity status through
// every coordinator call. It replaces ambient global auth state: callers
// construct it explicitly and inject it per request.
type Session struct {
	SellerID   string
	SellerName string
	RouteName  string
	Online     bool
}

// SaleStore is the persistence port the coordinator needs.
type SaleStore interface {
	CommitSale(ctx context.Context, sale *domain.Sale, items []domain.SaleLineItem) (int64, error)
	MarkSynced(ctx context.Context, localID int64, remoteID string) error
	GetSale(ctx context.Context, localID int64) (*domain.Sale, error)
	GetSaleItems(ctx context.Context, localID int64) ([]domain.SaleLineItem, error)
	ListPendingSales(ctx context.Context) ([]domain.Sale, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Inventory is the mirror port: warehouse resolution and the local-only
// decrement.
type Inventory interface {
	ResolveAssignedWarehouse(ctx context.Context, sellerID string) (*domain.WarehouseRef, error)
	DecrementOnSale(ctx context.Context, productID string, qty int) error
}

// RemoteLedger submits a committed sale to the remote endpoint.
type RemoteLedger interface {
	Send(ctx context.Context, sale *domain.Sale, items []domain.SaleLineItem) (string, error)
}

// Notifier posts the best-effort supervisor push.
type Notifier interface {
	NotifySupervisor(ctx context.Context, notice notify.SaleNotice) error
}

// Printer and ReceiptGenerator are out-of-scope collaborators consumed
// through narrow interfaces; their failures never touch sale state.
type Printer interface {
	PrintReceipt(ctx context.Context, sale *domain.Sale, items []domain.SaleLineItem) error
}

type ReceiptGenerator interface {
	GenerateReceipt(ctx context.Context, sale *domain.Sale, items []domain.SaleLineItem) (string, error)
}

// TaskResult reports the outcome of one detached follow-up task spawned
// by a commit (sync, notify, receipt, print).
type TaskResult struct {
	Name string
	Err  error
}

// Coordinator is the single orchestration point for committing a sale:
// it validates the cart against cached stock, persists the sale locally,
// decrements the mirror, and drives the asynchronous follow-ups.
type Coordinator struct {
	store     SaleStore
	inventory Inventory
	ledger    RemoteLedger
	notifier  Notifier
	printer   Printer
	receipts  ReceiptGenerator
	logger    *zap.Logger

	syncConcurrency int
	taskTimeout     time.Duration
}

// NewCoordinator creates a new sale transaction coordinator. printer and
// receipts may be nil when the device has no such collaborator attached.
func NewCoordinator(store SaleStore, inventory Inventory, ledger RemoteLedger, notifier Notifier, printer Printer, receipts ReceiptGenerator, syncConcurrency int, logger *zap.Logger) *Coordinator {
	if syncConcurrency < 1 {
		syncConcurrency = 1
	}
	return &Coordinator{
		store:           store,
		inventory:       inventory,
		ledger:          ledger,
		notifier:        notifier,
		printer:         printer,
		receipts:        receipts,
		logger:          logger,
		syncConcurrency: syncConcurrency,
		taskTimeout:     30 * time.Second,
	}
}

// CommitInput is everything a commit needs besides the session.
type CommitInput struct {
	ClientID       string
	ClientName     string
	ClientImageRef string
	Cart           domain.Cart
	PaymentMethod  string
}

// ValidateCart rejects a cart before any persistence occurs: empty cart,
// unresolved warehouse, or any line exceeding the cached available
// quantity. The check is advisory and local; the remote ledger performs
// the authoritative validation on sync.
func (c *Coordinator) ValidateCart(ctx context.Context, session Session, cart domain.Cart) error {
	if len(cart) == 0 {
		return pkgerrors.NewEmptyCart()
	}

	warehouse, err := c.inventory.ResolveAssignedWarehouse(ctx, session.SellerID)
	if err != nil {
		return pkgerrors.NewDatabaseError("resolve warehouse", err)
	}
	if warehouse == nil {
		return pkgerrors.NewNoWarehouse(session.SellerID)
	}

	for _, line := range cart {
		if line.Quantity <= 0 {
			return pkgerrors.NewInvalidRequest("line quantity must be positive", fmt.Sprintf("Product: %s", line.ProductID))
		}
		product, err := c.store.GetProduct(ctx, line.ProductID)
		if err != nil {
			return pkgerrors.NewProductNotFound(line.ProductID)
		}
		if line.Quantity > product.AvailableQty {
			return pkgerrors.NewInsufficientStock(line.ProductID, product.AvailableQty, line.Quantity)
		}
	}

	return nil
}

// CommitSale commits a sale: the local transaction is the durability
// boundary and must succeed before this returns; everything after it
// (mirror decrement, sync, notification, receipt, print) is best-effort.
// The returned channel reports each detached task's outcome and is closed
// once all of them finish; callers may abandon it freely.
func (c *Coordinator) CommitSale(ctx context.Context, session Session, input CommitInput) (int64, <-chan TaskResult, error) {
	if err := c.ValidateCart(ctx, session, input.Cart); err != nil {
		return 0, nil, err
	}

	warehouse, err := c.inventory.ResolveAssignedWarehouse(ctx, session.SellerID)
	if err != nil {
		return 0, nil, pkgerrors.NewDatabaseError("resolve warehouse", err)
	}
	warehouseID := ""
	if warehouse != nil {
		warehouseID = warehouse.ID
	}

	sale := domain.NewSale(input.ClientID, input.ClientName, input.ClientImageRef, input.Cart, input.PaymentMethod, session.SellerID, warehouseID)

	items := make([]domain.SaleLineItem, 0, len(input.Cart))
	for _, line := range input.Cart {
		items = append(items, domain.SaleLineItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			ImageRef:  line.ImageRef,
		})
	}

	// Durability boundary. A failure here fails the whole commit and
	// nothing below fires.
	localID, err := c.store.CommitSale(ctx, sale, items)
	if err != nil {
		return 0, nil, pkgerrors.NewDatabaseError("commit sale", err)
	}

	// Local-only optimistic decrement per line. A failure is logged, not
	// fatal: the sale is already durable.
	for _, line := range input.Cart {
		if err := c.inventory.DecrementOnSale(ctx, line.ProductID, line.Quantity); err != nil {
			c.logger.Warn("Failed to decrement mirrored stock",
				zap.Int64("local_id", localID),
				zap.String("product_id", line.ProductID),
				zap.Int("quantity", line.Quantity),
				zap.Error(err),
			)
		}
	}

	results := c.runFollowUps(session, sale, items, localID)
	return localID, results, nil
}

// runFollowUps spawns the detached post-commit pipeline. Tasks run on a
// background context: tearing down the caller's scope abandons them
// without consequence because the committed rows are already consistent.
func (c *Coordinator) runFollowUps(session Session, sale *domain.Sale, items []domain.SaleLineItem, localID int64) <-chan TaskResult {
	results := make(chan TaskResult, 4)

	go func() {
		defer close(results)

		ctx, cancel := context.WithTimeout(context.Background(), c.taskTimeout)
		defer cancel()

		if session.Online && sale.WarehouseID != "" {
			outcome, err := c.AttemptSync(ctx, session, localID)
			if err == nil && outcome.Status == SyncFailed {
				err = fmt.Errorf("sync failed: %s", outcome.Reason)
			}
			c.report(results, "sync", err)
		} else {
			c.logger.Info("Sale sync deferred",
				zap.Int64("local_id", localID),
				zap.Bool("online", session.Online),
				zap.String("warehouse_id", sale.WarehouseID),
			)
		}

		if c.notifier != nil {
			err := c.notifier.NotifySupervisor(ctx, notify.SaleNotice{
				SellerName:     session.SellerName,
				RouteName:      session.RouteName,
				ClientName:     sale.ClientName,
				Total:          sale.Total,
				ClientImageRef: sale.ClientImageRef,
				SaleRef:        fmt.Sprintf("%d", localID),
			})
			c.report(results, "notify", err)
		}

		if c.receipts != nil {
			_, err := c.receipts.GenerateReceipt(ctx, sale, items)
			c.report(results, "receipt", err)
		}

		if c.printer != nil {
			err := c.printer.PrintReceipt(ctx, sale, items)
			c.report(results, "print", err)
		}
	}()

	return results
}

func (c *Coordinator) report(results chan<- TaskResult, name string, err error) {
	if err != nil {
		c.logger.Warn("Post-commit task failed", zap.String("task", name), zap.Error(err))
	}
	select {
	case results <- TaskResult{Name: name, Err: err}:
	default:
	}
}
