package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sales-engine/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

// UpsertProduct inserts or replaces a mirrored stock line.
func (s *Store) UpsertProduct(ctx context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO products (id, catalog_product_id, name, unit_price, available_qty, image_ref, warehouse_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			catalog_product_id = excluded.catalog_product_id,
			name = excluded.name,
			unit_price = excluded.unit_price,
			available_qty = excluded.available_qty,
			image_ref = excluded.image_ref,
			warehouse_id = excluded.warehouse_id,
			updated_at = excluded.updated_at
	`

	qty := p.AvailableQty
	if qty < 0 {
		qty = 0
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.CatalogProductID, p.Name, p.UnitPrice, qty, p.ImageRef, p.WarehouseID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	s.notify(ChangeEvent{Table: "products", Key: p.ID, Op: "update"})
	return nil
}

// DeleteProductsExcept removes mirrored stock lines of a warehouse whose
// remote counterpart vanished from the latest snapshot batch. An empty
// keep list clears the whole warehouse mirror.
func (s *Store) DeleteProductsExcept(ctx context.Context, warehouseID string, keepIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result sql.Result
	var err error
	if len(keepIDs) == 0 {
		result, err = s.db.ExecContext(ctx, `DELETE FROM products WHERE warehouse_id = ?`, warehouseID)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keepIDs)), ",")
		args := make([]interface{}, 0, len(keepIDs)+1)
		args = append(args, warehouseID)
		for _, id := range keepIDs {
			args = append(args, id)
		}
		result, err = s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM products WHERE warehouse_id = ? AND id NOT IN (%s)`, placeholders),
			args...,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete vanished products: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		s.notify(ChangeEvent{Table: "products", Key: warehouseID, Op: "delete"})
	}
	return deleted, nil
}

// DeleteProduct removes a single mirrored stock line.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.notify(ChangeEvent{Table: "products", Key: id, Op: "delete"})
	return nil
}

// DecrementProduct applies the local-only optimistic decrement, clamped at
// zero. The read-modify-write happens inside a single UPDATE so it cannot
// interleave with a concurrent mirror upsert mid-computation; whichever
// write lands last wins, which is the documented reconciliation model.
func (s *Store) DecrementProduct(ctx context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET available_qty = MAX(0, available_qty - ?), updated_at = ?
		WHERE id = ?
	`, qty, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to decrement product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	s.notify(ChangeEvent{Table: "products", Key: id, Op: "update"})
	return nil
}

// GetProduct retrieves a mirrored stock line by id (read-only, no lock needed)
func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, catalog_product_id, name, unit_price, available_qty, image_ref, warehouse_id, updated_at
		FROM products
		WHERE id = ?
	`

	var p domain.Product
	var imageRef sql.NullString
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.CatalogProductID, &p.Name, &p.UnitPrice, &p.AvailableQty,
		&imageRef, &p.WarehouseID, &updatedAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	p.ImageRef = imageRef.String
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAtStr)

	return &p, nil
}

// ListProducts returns the mirrored stock lines of a warehouse.
func (s *Store) ListProducts(ctx context.Context, warehouseID string) ([]domain.Product, error) {
	query := `
		SELECT id, catalog_product_id, name, unit_price, available_qty, image_ref, warehouse_id, updated_at
		FROM products
		WHERE warehouse_id = ?
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		var imageRef sql.NullString
		var updatedAtStr string

		err := rows.Scan(
			&p.ID, &p.CatalogProductID, &p.Name, &p.UnitPrice, &p.AvailableQty,
			&imageRef, &p.WarehouseID, &updatedAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		p.ImageRef = imageRef.String
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAtStr)
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}
