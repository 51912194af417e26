// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides order/menu/staff persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer at a time; a single pooled connection avoids
	// SQLITE_BUSY and keeps :memory: databases from splitting per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS orders (
			id                TEXT PRIMARY KEY,
			customer_id       TEXT NOT NULL,
			customer_name     TEXT NOT NULL,
			restaurant_id     TEXT NOT NULL,
			table_id          TEXT NOT NULL,
			status            TEXT NOT NULL,
			total_amount      INTEGER NOT NULL,
			estimated_minutes INTEGER NOT NULL,
			created_at        TEXT NOT NULL,
			confirmed_at      TEXT,
			ready_at          TEXT,
			served_at         TEXT,

			CHECK (status IN ('pending', 'confirmed', 'preparing', 'ready', 'served', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_orders_restaurant_status
			ON orders(restaurant_id, status);

		CREATE INDEX IF NOT EXISTS idx_orders_customer
			ON orders(customer_id);

		CREATE TABLE IF NOT EXISTS order_items (
			order_id     TEXT NOT NULL,
			position     INTEGER NOT NULL,
			menu_item_id TEXT NOT NULL,
			variant_id   TEXT NOT NULL,
			name         TEXT NOT NULL,
			quantity     INTEGER NOT NULL,
			unit_price   INTEGER NOT NULL,
			subtotal     INTEGER NOT NULL,

			PRIMARY KEY (order_id, position),
			FOREIGN KEY (order_id) REFERENCES orders(id)
		);

		CREATE TABLE IF NOT EXISTS menu_variants (
			id            TEXT PRIMARY KEY,
			menu_item_id  TEXT NOT NULL,
			restaurant_id TEXT NOT NULL,
			name          TEXT NOT NULL,
			price         INTEGER NOT NULL,
			prep_minutes  INTEGER NOT NULL,
			available     INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_menu_variants_restaurant
			ON menu_variants(restaurant_id);

		CREATE TABLE IF NOT EXISTS tables (
			id            TEXT PRIMARY KEY,
			restaurant_id TEXT NOT NULL,
			label         TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS staff (
			id            TEXT PRIMARY KEY,
			external_id   TEXT NOT NULL UNIQUE,
			restaurant_id TEXT NOT NULL,
			name          TEXT NOT NULL,
			role          TEXT NOT NULL,
			password_hash TEXT,
			is_active     INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_staff_restaurant
			ON staff(restaurant_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateOrder inserts an order and its line items in a single transaction.
func (s *SQLiteStore) CreateOrder(ctx context.Context, order *Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, customer_name, restaurant_id, table_id,
			status, total_amount, estimated_minutes, created_at, confirmed_at, ready_at, served_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.CustomerID,
		order.CustomerName,
		order.RestaurantID,
		order.TableID,
		string(order.Status),
		order.TotalAmount,
		order.EstimatedMinutes,
		order.CreatedAt.UTC().Format(time.RFC3339),
		nullableTime(order.ConfirmedAt),
		nullableTime(order.ReadyAt),
		nullableTime(order.ServedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, menu_item_id, variant_id, name, quantity, unit_price, subtotal)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, i, item.MenuItemID, item.VariantID, item.Name, item.Quantity, item.UnitPrice, item.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("inserting order item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing order: %w", err)
	}

	s.logger.Debug("created order", "id", order.ID, "restaurant_id", order.RestaurantID)
	return nil
}

// GetOrder retrieves an order with its line items.
// Returns ErrNotFound if the order doesn't exist.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, customer_name, restaurant_id, table_id,
			status, total_amount, estimated_minutes, created_at, confirmed_at, ready_at, served_at
		FROM orders WHERE id = ?`, id)

	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT menu_item_id, variant_id, name, quantity, unit_price, subtotal
		FROM order_items WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.MenuItemID, &item.VariantID, &item.Name, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}

	return order, nil
}

// UpdateOrderStatus sets a new status and stamps any per-status timestamps
// present in times. Returns ErrNotFound if the order doesn't exist.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus, times StatusTimes) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET
			status = ?,
			confirmed_at = COALESCE(?, confirmed_at),
			ready_at = COALESCE(?, ready_at),
			served_at = COALESCE(?, served_at)
		WHERE id = ?`,
		string(status),
		nullableTime(times.ConfirmedAt),
		nullableTime(times.ReadyAt),
		nullableTime(times.ServedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated order status", "id", id, "status", status)
	return nil
}

// GetActiveOrders returns all orders for a restaurant whose status is not
// terminal. Line items are not loaded; callers needing them should use
// GetOrder.
func (s *SQLiteStore) GetActiveOrders(ctx context.Context, restaurantID string) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, customer_name, restaurant_id, table_id,
			status, total_amount, estimated_minutes, created_at, confirmed_at, ready_at, served_at
		FROM orders
		WHERE restaurant_id = ? AND status NOT IN ('served', 'cancelled')
		ORDER BY created_at`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("querying active orders: %w", err)
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}

	return orders, nil
}

// ActiveRestaurantIDs returns the distinct restaurants that currently have
// non-terminal orders. Used at startup to warm the kitchen load tracker.
func (s *SQLiteStore) ActiveRestaurantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT restaurant_id FROM orders
		WHERE status NOT IN ('served', 'cancelled')`)
	if err != nil {
		return nil, fmt.Errorf("querying active restaurants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning restaurant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating restaurant ids: %w", err)
	}
	return ids, nil
}

// GetMenuVariant retrieves a menu variant by ID.
// Returns ErrNotFound if the variant doesn't exist.
func (s *SQLiteStore) GetMenuVariant(ctx context.Context, id string) (*MenuVariant, error) {
	var v MenuVariant
	var available int

	err := s.db.QueryRowContext(ctx, `
		SELECT id, menu_item_id, restaurant_id, name, price, prep_minutes, available
		FROM menu_variants WHERE id = ?`, id).Scan(
		&v.ID, &v.MenuItemID, &v.RestaurantID, &v.Name, &v.Price, &v.PrepMinutes, &available,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying menu variant: %w", err)
	}

	v.Available = available != 0
	return &v, nil
}

// CreateMenuVariant inserts a menu variant. Used by seeding and tests.
func (s *SQLiteStore) CreateMenuVariant(ctx context.Context, v *MenuVariant) error {
	available := 0
	if v.Available {
		available = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO menu_variants (id, menu_item_id, restaurant_id, name, price, prep_minutes, available)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.MenuItemID, v.RestaurantID, v.Name, v.Price, v.PrepMinutes, available,
	)
	if err != nil {
		return fmt.Errorf("inserting menu variant: %w", err)
	}
	return nil
}

// GetTable retrieves a table by ID.
// Returns ErrNotFound if the table doesn't exist.
func (s *SQLiteStore) GetTable(ctx context.Context, id string) (*Table, error) {
	var t Table
	err := s.db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, label FROM tables WHERE id = ?`, id).Scan(
		&t.ID, &t.RestaurantID, &t.Label,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying table: %w", err)
	}
	return &t, nil
}

// CreateTable inserts a table. Used by seeding and tests.
func (s *SQLiteStore) CreateTable(ctx context.Context, t *Table) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tables (id, restaurant_id, label) VALUES (?, ?, ?)`,
		t.ID, t.RestaurantID, t.Label,
	)
	if err != nil {
		return fmt.Errorf("inserting table: %w", err)
	}
	return nil
}

// GetStaffByExternalID retrieves a staff record by its token identity.
// Returns ErrNotFound if no such staff member exists.
func (s *SQLiteStore) GetStaffByExternalID(ctx context.Context, externalID string) (*Staff, error) {
	var st Staff
	var passwordHash sql.NullString
	var active int

	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, restaurant_id, name, role, password_hash, is_active
		FROM staff WHERE external_id = ?`, externalID).Scan(
		&st.ID, &st.ExternalID, &st.RestaurantID, &st.Name, &st.Role, &passwordHash, &active,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying staff: %w", err)
	}

	st.PasswordHash = passwordHash.String
	st.IsActive = active != 0
	return &st, nil
}

// CreateStaff inserts a staff record. Used by seeding and tests.
func (s *SQLiteStore) CreateStaff(ctx context.Context, st *Staff) error {
	active := 0
	if st.IsActive {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, external_id, restaurant_id, name, role, password_hash, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.ExternalID, st.RestaurantID, st.Name, st.Role, st.PasswordHash, active,
	)
	if err != nil {
		return fmt.Errorf("inserting staff: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var order Order
	var status, createdAtStr string
	var confirmedAtStr, readyAtStr, servedAtStr sql.NullString

	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.CustomerName,
		&order.RestaurantID,
		&order.TableID,
		&status,
		&order.TotalAmount,
		&order.EstimatedMinutes,
		&createdAtStr,
		&confirmedAtStr,
		&readyAtStr,
		&servedAtStr,
	)
	if err != nil {
		return nil, err
	}

	order.Status = OrderStatus(status)
	order.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if order.ConfirmedAt, err = parseNullableTime(confirmedAtStr); err != nil {
		return nil, fmt.Errorf("parsing confirmed_at: %w", err)
	}
	if order.ReadyAt, err = parseNullableTime(readyAtStr); err != nil {
		return nil, fmt.Errorf("parsing ready_at: %w", err)
	}
	if order.ServedAt, err = parseNullableTime(servedAtStr); err != nil {
		return nil, fmt.Errorf("parsing served_at: %w", err)
	}

	return &order, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
