package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store implements Single Writer Principle for the device-local SQLite
// database. Only one writer can access the database at a time; the sale
// commit transaction is the durability boundary for the whole engine.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex // Mutex to ensure single writer

	watchMu  sync.Mutex
	watchers map[int]chan ChangeEvent
	watchSeq int
}

// ChangeEvent describes a committed write, emitted to watchers so query
// layers can refresh without polling.
type ChangeEvent struct {
	Table string
	Key   string
	Op    string // insert, update, delete
}

// New creates a new store with single writer principle
func New(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:       db,
		logger:   logger,
		watchers: make(map[int]chan ChangeEvent),
	}

	// Initialize schema
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema
func (s *Store) initSchema() error {
	schema := `
	-- Products table: local mirror of remote warehouse stock lines
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		catalog_product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit_price REAL NOT NULL DEFAULT 0,
		available_qty INTEGER NOT NULL DEFAULT 0,
		image_ref TEXT,
		warehouse_id TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK(available_qty >= 0)
	);

	-- Sales table: committed transactions; rows are never deleted locally
	CREATE TABLE IF NOT EXISTS sales (
		local_id INTEGER PRIMARY KEY AUTOINCREMENT,
		remote_id TEXT,
		client_id TEXT NOT NULL,
		client_name TEXT NOT NULL,
		client_image_ref TEXT,
		total REAL NOT NULL,
		payment_method TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		warehouse_id TEXT,
		sync_state TEXT NOT NULL DEFAULT 'PENDING',
		created_at TEXT NOT NULL,
		CHECK(sync_state IN ('PENDING', 'SYNCED'))
	);

	-- Sale items table: immutable snapshot of the cart at commit time
	CREATE TABLE IF NOT EXISTS sale_items (
		id TEXT PRIMARY KEY,
		sale_local_id INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		image_ref TEXT,
		FOREIGN KEY (sale_local_id) REFERENCES sales(local_id) ON DELETE CASCADE,
		CHECK(quantity > 0)
	);

	-- Routes table: cached seller -> warehouse assignments
	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		warehouse_id TEXT NOT NULL
	);

	-- Warehouses table: cached stock-holding units
	CREATE TABLE IF NOT EXISTS warehouses (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	-- Recipients table: cached directory rows for notification lookup
	CREATE TABLE IF NOT EXISTS recipients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		push_token TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		CHECK(active IN (0, 1))
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_products_warehouse ON products(warehouse_id);
	CREATE INDEX IF NOT EXISTS idx_sales_sync_state ON sales(sync_state);
	CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_local_id);
	CREATE INDEX IF NOT EXISTS idx_routes_seller ON routes(seller_id);
	CREATE INDEX IF NOT EXISTS idx_recipients_role ON recipients(role, active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection and all watcher channels.
func (s *Store) Close() error {
	s.watchMu.Lock()
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.watchMu.Unlock()
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping() error {
	return s.db.Ping()
}

// Watch registers a change observer. The returned cancel func is
// idempotent. Events are delivered best-effort: a watcher that is not
// draining its channel misses events rather than blocking writers.
func (s *Store) Watch() (<-chan ChangeEvent, func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	s.watchSeq++
	id := s.watchSeq
	ch := make(chan ChangeEvent, 64)
	s.watchers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			defer s.watchMu.Unlock()
			if c, ok := s.watchers[id]; ok {
				close(c)
				delete(s.watchers, id)
			}
		})
	}
	return ch, cancel
}

// notify fans a change event out to watchers without blocking.
func (s *Store) notify(ev ChangeEvent) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}
