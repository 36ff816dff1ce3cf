package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"sales-engine/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSaleNotFound     = errors.New("sale not found")
	ErrRemoteIDConflict = errors.New("sale already synced with a different remote id")
)

// CommitSale persists a sale and all its line items in one transaction.
// Either every row is written or none is; this is the durability boundary
// for a sale commit. The transaction deliberately ignores caller
// cancellation: once started it completes or rolls back, never leaving a
// half-written sale behind.
func (s *Store) CommitSale(ctx context.Context, sale *domain.Sale, items []domain.SaleLineItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := tx.Exec(`
		INSERT INTO sales (client_id, client_name, client_image_ref, total, payment_method, seller_id, warehouse_id, sync_state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sale.ClientID, sale.ClientName, sale.ClientImageRef,
		sale.Total, sale.PaymentMethod, sale.SellerID, sale.WarehouseID,
		string(domain.SyncPending), sale.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to insert sale: %w", err)
	}

	localID, err := result.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to get sale local id: %w", err)
	}

	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.Exec(`
			INSERT INTO sale_items (id, sale_local_id, product_id, name, unit_price, quantity, image_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, localID, item.ProductID, item.Name, item.UnitPrice, item.Quantity, item.ImageRef)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert sale item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sale: %w", err)
	}

	sale.LocalID = localID
	sale.SyncState = domain.SyncPending

	s.logger.Info("Sale committed",
		zap.Int64("local_id", localID),
		zap.String("client_id", sale.ClientID),
		zap.Float64("total", sale.Total),
		zap.Int("items", len(items)),
	)

	s.notify(ChangeEvent{Table: "sales", Key: strconv.FormatInt(localID, 10), Op: "insert"})
	return localID, nil
}

// MarkSynced attaches the remote identifier to a pending sale and moves it
// to SYNCED. The transition is forward-only: a sale already synced with the
// same remote id is an idempotent no-op; a different remote id is a conflict.
func (s *Store) MarkSynced(ctx context.Context, localID int64, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET remote_id = ?, sync_state = 'SYNCED'
		WHERE local_id = ? AND sync_state = 'PENDING'
	`, remoteID, localID)
	if err != nil {
		return fmt.Errorf("failed to mark sale synced: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		var existing sql.NullString
		var state string
		err := s.db.QueryRowContext(ctx, `SELECT remote_id, sync_state FROM sales WHERE local_id = ?`, localID).Scan(&existing, &state)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSaleNotFound
			}
			return fmt.Errorf("failed to read sale: %w", err)
		}
		// The domain transition rule decides whether this retry is the
		// idempotent case (same remote id landed twice) or a conflict.
		existingSale := domain.Sale{RemoteID: existing.String, SyncState: domain.SyncState(state)}
		if err := existingSale.MarkSynced(remoteID); err != nil {
			return ErrRemoteIDConflict
		}
		return nil
	}

	s.logger.Info("Sale synced",
		zap.Int64("local_id", localID),
		zap.String("remote_id", remoteID),
	)

	s.notify(ChangeEvent{Table: "sales", Key: strconv.FormatInt(localID, 10), Op: "update"})
	return nil
}

// GetSale retrieves a sale by its local id (read-only, no lock needed)
func (s *Store) GetSale(ctx context.Context, localID int64) (*domain.Sale, error) {
	query := `
		SELECT local_id, remote_id, client_id, client_name, client_image_ref, total, payment_method, seller_id, warehouse_id, sync_state, created_at
		FROM sales
		WHERE local_id = ?
	`

	var sale domain.Sale
	var remoteID, clientImageRef, warehouseID sql.NullString
	var syncState, createdAtStr string

	err := s.db.QueryRowContext(ctx, query, localID).Scan(
		&sale.LocalID, &remoteID, &sale.ClientID, &sale.ClientName, &clientImageRef,
		&sale.Total, &sale.PaymentMethod, &sale.SellerID, &warehouseID,
		&syncState, &createdAtStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSaleNotFound
		}
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}

	sale.RemoteID = remoteID.String
	sale.ClientImageRef = clientImageRef.String
	sale.WarehouseID = warehouseID.String
	sale.SyncState = domain.SyncState(syncState)
	sale.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)

	return &sale, nil
}

// GetSaleItems retrieves the immutable line items of a sale
func (s *Store) GetSaleItems(ctx context.Context, localID int64) ([]domain.SaleLineItem, error) {
	query := `
		SELECT id, sale_local_id, product_id, name, unit_price, quantity, image_ref
		FROM sale_items
		WHERE sale_local_id = ?
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sale items: %w", err)
	}
	defer rows.Close()

	var items []domain.SaleLineItem
	for rows.Next() {
		var item domain.SaleLineItem
		var imageRef sql.NullString
		if err := rows.Scan(&item.ID, &item.SaleLocalID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity, &imageRef); err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		item.ImageRef = imageRef.String
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale items: %w", err)
	}

	return items, nil
}

// ListPendingSales returns sales awaiting remote sync, oldest first.
func (s *Store) ListPendingSales(ctx context.Context) ([]domain.Sale, error) {
	query := `
		SELECT local_id, remote_id, client_id, client_name, client_image_ref, total, payment_method, seller_id, warehouse_id, sync_state, created_at
		FROM sales
		WHERE sync_state = 'PENDING'
		ORDER BY local_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		var sale domain.Sale
		var remoteID, clientImageRef, warehouseID sql.NullString
		var syncState, createdAtStr string

		err := rows.Scan(
			&sale.LocalID, &remoteID, &sale.ClientID, &sale.ClientName, &clientImageRef,
			&sale.Total, &sale.PaymentMethod, &sale.SellerID, &warehouseID,
			&syncState, &createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}

		sale.RemoteID = remoteID.String
		sale.ClientImageRef = clientImageRef.String
		sale.WarehouseID = warehouseID.String
		sale.SyncState = domain.SyncState(syncState)
		sale.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)

		sales = append(sales, sale)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending sales: %w", err)
	}

	return sales, nil
}
