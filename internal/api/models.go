package api

import (
	"time"

	"sales-engine/internal/domain"
)

// CartLineRequest is one line of a cart as the device UI submits it. Name
// and price are snapshotted server-side from the cached product so the
// persisted line matches what the mirror held at commit time.
type CartLineRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

// ValidateCartRequest is the body of POST /cart/validate.
type ValidateCartRequest struct {
	Lines []CartLineRequest `json:"lines"`
}

// CommitSaleRequest is the body of POST /sales.
type CommitSaleRequest struct {
	ClientID       string            `json:"clientId" binding:"required"`
	ClientName     string            `json:"clientName" binding:"required"`
	ClientImageRef string            `json:"clientImageRef"`
	PaymentMethod  string            `json:"paymentMethod" binding:"required"`
	Lines          []CartLineRequest `json:"lines" binding:"required"`
}

// CommitSaleResponse acknowledges a commit. The sale is durable locally
// regardless of whether the background sync has run yet.
type CommitSaleResponse struct {
	LocalID   int64   `json:"localId"`
	SyncState string  `json:"syncState"`
	Total     float64 `json:"total"`
}

// SaleResponse is the read model of one sale.
type SaleResponse struct {
	LocalID       int64              `json:"localId"`
	RemoteID      string             `json:"remoteId,omitempty"`
	ClientID      string             `json:"clientId"`
	ClientName    string             `json:"clientName"`
	Total         float64            `json:"total"`
	PaymentMethod string             `json:"paymentMethod"`
	SellerID      string             `json:"sellerId"`
	SyncState     string             `json:"syncState"`
	CreatedAt     time.Time          `json:"createdAt"`
	Items         []SaleItemResponse `json:"items,omitempty"`
}

type SaleItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

// ProductResponse is the read model of one mirrored stock line.
type ProductResponse struct {
	ID               string  `json:"id"`
	CatalogProductID string  `json:"catalogProductId"`
	Name             string  `json:"name"`
	UnitPrice        float64 `json:"unitPrice"`
	AvailableQty     int     `json:"availableQty"`
	ImageRef         string  `json:"imageRef,omitempty"`
}

// SyncReportResponse is the body returned by the pending sweep.
type SyncReportResponse struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Deferred  int `json:"deferred"`
	Failed    int `json:"failed"`
}

func toSaleResponse(sale *domain.Sale, items []domain.SaleLineItem) SaleResponse {
	resp := SaleResponse{
		LocalID:       sale.LocalID,
		RemoteID:      sale.RemoteID,
		ClientID:      sale.ClientID,
		ClientName:    sale.ClientName,
		Total:         sale.Total,
		PaymentMethod: sale.PaymentMethod,
		SellerID:      sale.SellerID,
		SyncState:     string(sale.SyncState),
		CreatedAt:     sale.CreatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, SaleItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return resp
}

func toProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:               p.ID,
		CatalogProductID: p.CatalogProductID,
		Name:             p.Name,
		UnitPrice:        p.UnitPrice,
		AvailableQty:     p.AvailableQty,
		ImageRef:         p.ImageRef,
	}
}
