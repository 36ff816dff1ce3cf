package domain

import (
	"time"
)

// Product is the local mirror of a remote warehouse stock line.
// ID is the stock-line identifier, not the catalog product id. Rows are
// mutated only by mirror updates and by the optimistic decrement-on-sale,
// and removed when the remote stock line for the warehouse disappears.
type Product struct {
	ID               string
	CatalogProductID string
	Name             string
	UnitPrice        float64
	AvailableQty     int
	ImageRef         string
	WarehouseID      string
	UpdatedAt        time.Time
}

// WarehouseRef identifies the stock-holding unit a seller is assigned to.
type WarehouseRef struct {
	ID   string
	Name string
}

// Route links a seller to a warehouse.
type Route struct {
	ID          string
	Name        string
	SellerID    string
	WarehouseID string
}

// Recipient is a cached directory row used by the notification
// dispatcher to find a delivery token for a role.
type Recipient struct {
	ID        string
	Name      string
	Role      string
	PushToken string
	Active    bool
}
