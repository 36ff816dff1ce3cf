package domain

import (
	"time"
)

// SyncState tracks whether a locally committed sale has been accepted
// by the remote ledger. Transitions are forward-only: PENDING -> SYNCED.
type SyncState string

const (
	SyncPending SyncState = "PENDING"
	SyncSynced  SyncState = "SYNCED"
)

// CartLine is a transient in-memory cart entry before commit.
// Name and UnitPrice are denormalized at selection time; they become
// the immutable snapshot on commit.
type CartLine struct {
	ProductID string
	Name      string
	UnitPrice float64
	Quantity  int
	ImageRef  string
}

// Cart is the transient list of lines the operator builds before commit.
type Cart []CartLine

// Total computes the cart total from its snapshot prices.
func (c Cart) Total() float64 {
	total := 0.0
	for _, line := range c {
		total += line.UnitPrice * float64(line.Quantity)
	}
	return total
}

// SaleLineItem is the immutable, persisted version of a cart line,
// created once at commit and never updated.
type SaleLineItem struct {
	ID          string
	SaleLocalID int64
	ProductID   string
	Name        string
	UnitPrice   float64
	Quantity    int
	ImageRef    string
}

// Sale is a committed, line-itemized transaction. LocalID is a monotonic
// local key assigned at commit; RemoteID is empty until the remote ledger
// accepts the sale. Total is computed once at commit and never recalculated
// from live prices.
type Sale struct {
	LocalID        int64
	RemoteID       string
	ClientID       string
	ClientName     string
	ClientImageRef string
	Total          float64
	PaymentMethod  string
	SellerID       string
	WarehouseID    string
	SyncState      SyncState
	CreatedAt      time.Time
}

// NewSale builds a pending sale from a cart snapshot. The total is fixed
// here; later price changes on the mirrored products do not affect it.
func NewSale(clientID, clientName, clientImageRef string, cart Cart, paymentMethod, sellerID, warehouseID string) *Sale {
	return &Sale{
		ClientID:       clientID,
		ClientName:     clientName,
		ClientImageRef: clientImageRef,
		Total:          cart.Total(),
		PaymentMethod:  paymentMethod,
		SellerID:       sellerID,
		WarehouseID:    warehouseID,
		SyncState:      SyncPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// MarkSynced attaches the remote identifier and moves the sale to SYNCED.
// A sale already synced with the same remote id is a no-op (idempotent
// retry); a different remote id is a conflict.
func (s *Sale) MarkSynced(remoteID string) error {
	if s.SyncState == SyncSynced {
		if s.RemoteID == remoteID {
			return nil
		}
		return ErrRemoteIDConflict
	}
	s.RemoteID = remoteID
	s.SyncState = SyncSynced
	return nil
}

// Domain errors
var (
	ErrEmptyCart         = &DomainError{Message: "cart has no lines"}
	ErrInsufficientStock = &DomainError{Message: "insufficient cached stock"}
	ErrNoWarehouse       = &DomainError{Message: "no warehouse assigned to seller"}
	ErrSaleNotFound      = &DomainError{Message: "sale not found"}
	ErrProductNotFound   = &DomainError{Message: "product not found"}
	ErrRemoteIDConflict  = &DomainError{Message: "sale already synced with a different remote id"}
)

// DomainError represents a domain-level error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}
