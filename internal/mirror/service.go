package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sales-engine/internal/cache"
	"sales-engine/internal/domain"
	"sales-engine/internal/store"

	"go.uber.org/zap"
)

// Stock feed event types carried in the message headers.
const (
	EventStockLineUpserted = "StockLineUpserted"
	EventStockLineDeleted  = "StockLineDeleted"
	EventStockSnapshot     = "StockSnapshot"
)

// stockLine is the wire shape of one stock-line document on the feed.
type stockLine struct {
	ID         string  `json:"id"`
	ProductoID string  `json:"productoId"`
	Nombre     string  `json:"nombre"`
	Precio     float64 `json:"precio"`
	Cantidad   int     `json:"cantidad"`
	ImagenURL  string  `json:"imagenUrl"`
	AlmacenID  string  `json:"almacenId"`
}

// stockSnapshot is the wire shape of a full per-warehouse batch.
type stockSnapshot struct {
	AlmacenID string      `json:"almacenId"`
	Lineas    []stockLine `json:"lineas"`
}

// Service keeps the local product cache equal to the remote per-warehouse
// stock collection, and applies the local-only decrement on sale.
type Service struct {
	store  *store.Store
	cache  cache.Cache
	logger *zap.Logger
}

// NewService creates a new inventory mirror service
func NewService(st *store.Store, ca cache.Cache, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		cache:  ca,
		logger: logger,
	}
}

// ResolveAssignedWarehouse performs the three-hop lookup
// seller -> assigned route -> assigned warehouse over the cached
// assignment rows. A nil result with nil error means "no inventory
// available" for this seller, not a failure.
func (s *Service) ResolveAssignedWarehouse(ctx context.Context, sellerID string) (*domain.WarehouseRef, error) {
	if sellerID == "" {
		return nil, nil
	}

	route, err := s.store.RouteForSeller(ctx, sellerID)
	if err != nil {
		if errors.Is(err, store.ErrRouteNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve route: %w", err)
	}

	if route.WarehouseID == "" {
		return nil, nil
	}

	warehouse, err := s.store.GetWarehouse(ctx, route.WarehouseID)
	if err != nil {
		if errors.Is(err, store.ErrWarehouseNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve warehouse: %w", err)
	}

	return warehouse, nil
}

// DecrementOnSale applies the local-only optimistic decrement, clamped at
// zero. Nothing is pushed upstream; the authoritative count arrives with
// the next mirrored update, which may overwrite this value. Last writer
// wins between this call and the live feed.
func (s *Service) DecrementOnSale(ctx context.Context, productID string, qty int) error {
	if err := s.store.DecrementProduct(ctx, productID, qty); err != nil {
		return err
	}
	s.invalidateProduct(ctx, productID, "")
	return nil
}

// HandleFeedEvent applies one stock-feed event scoped to the mirrored
// warehouse. Events for other warehouses are skipped. A malformed payload
// is an error for this event only; callers log it and keep consuming.
func (s *Service) HandleFeedEvent(ctx context.Context, warehouseID, eventType string, payload []byte) error {
	switch eventType {
	case EventStockLineUpserted:
		return s.applyUpsert(ctx, warehouseID, payload)
	case EventStockLineDeleted:
		return s.applyDelete(ctx, warehouseID, payload)
	case EventStockSnapshot:
		return s.applySnapshot(ctx, warehouseID, payload)
	default:
		return fmt.Errorf("unknown event type: %s", eventType)
	}
}

func (s *Service) applyUpsert(ctx context.Context, warehouseID string, payload []byte) error {
	var line stockLine
	if err := json.Unmarshal(payload, &line); err != nil {
		return fmt.Errorf("failed to unmarshal stock line: %w", err)
	}

	if line.AlmacenID != warehouseID {
		return nil
	}

	product, err := resolveLine(line)
	if err != nil {
		return err
	}

	if err := s.store.UpsertProduct(ctx, product); err != nil {
		return fmt.Errorf("failed to mirror stock line: %w", err)
	}

	s.invalidateProduct(ctx, line.ID, warehouseID)
	return nil
}

func (s *Service) applyDelete(ctx context.Context, warehouseID string, payload []byte) error {
	var line stockLine
	if err := json.Unmarshal(payload, &line); err != nil {
		return fmt.Errorf("failed to unmarshal stock line: %w", err)
	}

	if line.AlmacenID != warehouseID {
		return nil
	}
	if line.ID == "" {
		return fmt.Errorf("stock line delete without id")
	}

	if err := s.store.DeleteProduct(ctx, line.ID); err != nil {
		return fmt.Errorf("failed to delete mirrored stock line: %w", err)
	}

	s.invalidateProduct(ctx, line.ID, warehouseID)
	return nil
}

// applySnapshot reconciles the whole warehouse mirror against one batch:
// every resolvable line is upserted and every local product absent from
// the batch is deleted. One bad line is logged and skipped, never aborting
// the rest of the batch.
func (s *Service) applySnapshot(ctx context.Context, warehouseID string, payload []byte) error {
	var snapshot stockSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return fmt.Errorf("failed to unmarshal stock snapshot: %w", err)
	}

	if snapshot.AlmacenID != warehouseID {
		return nil
	}

	keepIDs := make([]string, 0, len(snapshot.Lineas))
	for _, line := range snapshot.Lineas {
		if line.ID != "" {
			// Present remotely, so never delete it here even if the
			// upsert below fails to resolve it.
			keepIDs = append(keepIDs, line.ID)
		}

		product, err := resolveLine(line)
		if err != nil {
			s.logger.Warn("Skipping unresolvable stock line",
				zap.String("stock_line_id", line.ID),
				zap.String("warehouse_id", warehouseID),
				zap.Error(err),
			)
			continue
		}

		if err := s.store.UpsertProduct(ctx, product); err != nil {
			s.logger.Warn("Failed to mirror stock line",
				zap.String("stock_line_id", line.ID),
				zap.Error(err),
			)
		}
	}

	deleted, err := s.store.DeleteProductsExcept(ctx, warehouseID, keepIDs)
	if err != nil {
		return fmt.Errorf("failed to reconcile vanished stock lines: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("Removed vanished stock lines",
			zap.String("warehouse_id", warehouseID),
			zap.Int64("deleted", deleted),
		)
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "product:*"); err != nil {
			s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
		}
		if err := s.cache.Delete(ctx, cache.ProductListKey(warehouseID)); err != nil {
			s.logger.Warn("Failed to invalidate product list cache", zap.Error(err))
		}
	}

	return nil
}

// resolveLine validates one feed document and maps it to the local model.
func resolveLine(line stockLine) (*domain.Product, error) {
	if line.ID == "" {
		return nil, fmt.Errorf("stock line without id")
	}
	if line.Nombre == "" {
		return nil, fmt.Errorf("stock line %s without name", line.ID)
	}
	if line.Cantidad < 0 {
		return nil, fmt.Errorf("stock line %s with negative quantity %d", line.ID, line.Cantidad)
	}

	return &domain.Product{
		ID:               line.ID,
		CatalogProductID: line.ProductoID,
		Name:             line.Nombre,
		UnitPrice:        line.Precio,
		AvailableQty:     line.Cantidad,
		ImageRef:         line.ImagenURL,
		WarehouseID:      line.AlmacenID,
	}, nil
}

func (s *Service) invalidateProduct(ctx context.Context, productID, warehouseID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ProductKey(productID)); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.String("product_id", productID), zap.Error(err))
	}
	if warehouseID != "" {
		if err := s.cache.Delete(ctx, cache.ProductListKey(warehouseID)); err != nil {
			s.logger.Warn("Failed to invalidate product list cache", zap.String("warehouse_id", warehouseID), zap.Error(err))
		}
	} else if err := s.cache.DeleteByPattern(ctx, "products:list:*"); err != nil {
		s.logger.Warn("Failed to invalidate product list cache", zap.Error(err))
	}
}
