package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sales-engine/internal/domain"

	"go.uber.org/zap"
)

// Client is the stateless HTTP adapter that submits a committed sale to
// the remote ledger. It never retries internally; retries are the
// coordinator's responsibility, invoked explicitly.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new remote sync client
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// saleProduct is the wire shape of one sale line on the remote endpoint.
type saleProduct struct {
	ID        string  `json:"id"`
	Nombre    string  `json:"nombre"`
	Precio    float64 `json:"precio"`
	Cantidad  int     `json:"cantidad"`
	ImagenURL string  `json:"imagenUrl"`
}

// salePayload is the request body of the remote sale endpoint. The local
// sale id doubles as the idempotency key so the remote can deduplicate
// retried submissions.
type salePayload struct {
	VentaLocalID      int64         `json:"ventaLocalId"`
	ClienteID         string        `json:"clienteId"`
	ClienteNombre     string        `json:"clienteNombre"`
	Productos         []saleProduct `json:"productos"`
	MetodoPago        string        `json:"metodoPago"`
	VendedorID        string        `json:"vendedorId"`
	AlmacenVendedorID string        `json:"almacenVendedorId"`
}

type saleResponse struct {
	VentaID string `json:"ventaId"`
}

// Send submits a sale and its line items, keyed by the local id, and
// returns the remote identifier the ledger assigned. Any transport error,
// non-2xx status, or response missing ventaId is a failure.
func (c *Client) Send(ctx context.Context, sale *domain.Sale, items []domain.SaleLineItem) (string, error) {
	payload := salePayload{
		VentaLocalID:      sale.LocalID,
		ClienteID:         sale.ClientID,
		ClienteNombre:     sale.ClientName,
		Productos:         make([]saleProduct, 0, len(items)),
		MetodoPago:        sale.PaymentMethod,
		VendedorID:        sale.SellerID,
		AlmacenVendedorID: sale.WarehouseID,
	}
	for _, item := range items {
		payload.Productos = append(payload.Productos, saleProduct{
			ID:        item.ProductID,
			Nombre:    item.Name,
			Precio:    item.UnitPrice,
			Cantidad:  item.Quantity,
			ImagenURL: item.ImageRef,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sale payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build sale request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send sale: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read sale response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("remote ledger returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed saleResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse sale response: %w", err)
	}
	if parsed.VentaID == "" {
		return "", fmt.Errorf("sale response missing ventaId")
	}

	c.logger.Info("Sale accepted by remote ledger",
		zap.Int64("local_id", sale.LocalID),
		zap.String("remote_id", parsed.VentaID),
	)

	return parsed.VentaID, nil
}
