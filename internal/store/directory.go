package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sales-engine/internal/domain"
)

var (
	ErrRouteNotFound     = errors.New("route not found")
	ErrWarehouseNotFound = errors.New("warehouse not found")
	ErrRecipientNotFound = errors.New("recipient not found")
)

// UpsertRoute inserts or replaces a cached seller/route assignment.
func (s *Store) UpsertRoute(ctx context.Context, r *domain.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO routes (id, name, seller_id, warehouse_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			seller_id = excluded.seller_id,
			warehouse_id = excluded.warehouse_id
	`
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.Name, r.SellerID, r.WarehouseID); err != nil {
		return fmt.Errorf("failed to upsert route: %w", err)
	}
	return nil
}

// RouteForSeller returns the route assigned to a seller.
func (s *Store) RouteForSeller(ctx context.Context, sellerID string) (*domain.Route, error) {
	var r domain.Route
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, seller_id, warehouse_id
		FROM routes
		WHERE seller_id = ?
	`, sellerID).Scan(&r.ID, &r.Name, &r.SellerID, &r.WarehouseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, fmt.Errorf("failed to get route for seller: %w", err)
	}
	return &r, nil
}

// UpsertWarehouse inserts or replaces a cached warehouse row.
func (s *Store) UpsertWarehouse(ctx context.Context, w *domain.WarehouseRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO warehouses (id, name)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	if _, err := s.db.ExecContext(ctx, query, w.ID, w.Name); err != nil {
		return fmt.Errorf("failed to upsert warehouse: %w", err)
	}
	return nil
}

// GetWarehouse retrieves a cached warehouse row by id.
func (s *Store) GetWarehouse(ctx context.Context, id string) (*domain.WarehouseRef, error) {
	var w domain.WarehouseRef
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM warehouses WHERE id = ?`, id).Scan(&w.ID, &w.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWarehouseNotFound
		}
		return nil, fmt.Errorf("failed to get warehouse: %w", err)
	}
	return &w, nil
}

// UpsertRecipient inserts or replaces a cached directory row.
func (s *Store) UpsertRecipient(ctx context.Context, r *domain.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	if r.Active {
		active = 1
	}

	query := `
		INSERT INTO recipients (id, name, role, push_token, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			push_token = excluded.push_token,
			active = excluded.active
	`
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.Name, r.Role, r.PushToken, active); err != nil {
		return fmt.Errorf("failed to upsert recipient: %w", err)
	}
	return nil
}

// ActiveRecipientByRole returns an active recipient carrying the given
// role flag, used by the notification dispatcher to find a delivery token.
func (s *Store) ActiveRecipientByRole(ctx context.Context, role string) (*domain.Recipient, error) {
	var r domain.Recipient
	var pushToken sql.NullString
	var active int

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, push_token, active
		FROM recipients
		WHERE role = ? AND active = 1
		LIMIT 1
	`, role).Scan(&r.ID, &r.Name, &r.Role, &pushToken, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecipientNotFound
		}
		return nil, fmt.Errorf("failed to get recipient by role: %w", err)
	}

	r.PushToken = pushToken.String
	r.Active = active == 1
	return &r, nil
}
