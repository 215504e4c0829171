package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/stockroom/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

//go:embed schema.sql
var schemaSQL string

const itemColumns = `id, sku, name, location, quantity, minimum_stock, version, last_updated, created_at`

const movementColumns = `id, type, item_id, sku, quantity, quantity_before, quantity_after,
	from_location, to_location, user_id, notes, reference, status, timestamp`

const orderColumns = `id, order_number, customer, email, address, status, items,
	tracking_number, carrier, notes, shipped_at, created_at, updated_at`

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates missing tables. It is safe to run on every start.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// Items

func (m *MySQLAdapter) GetItemByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return m.getItem(ctx, "id", id)
}

func (m *MySQLAdapter) GetItemBySKU(ctx context.Context, sku string) (*domain.InventoryItem, error) {
	return m.getItem(ctx, "sku", sku)
}

func (m *MySQLAdapter) getItem(ctx context.Context, column, value string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := m.db.GetContext(ctx, &item, `SELECT `+itemColumns+` FROM items WHERE `+column+` = ?`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &item, nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context, f domain.ItemFilter) ([]domain.InventoryItem, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.Location != "" {
		conditions = append(conditions, "location = :location")
		args["location"] = f.Location
	}
	if f.LowStock {
		conditions = append(conditions, "quantity <= minimum_stock")
	}
	if f.Search != "" {
		conditions = append(conditions, "(sku LIKE :search OR name LIKE :search)")
		args["search"] = "%" + f.Search + "%"
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY sku" + limitClause(f.Limit, f.Offset)

	nstmt, err := m.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare list items: %w", err)
	}
	defer nstmt.Close()

	items := []domain.InventoryItem{}
	if err := nstmt.SelectContext(ctx, &items, args); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (m *MySQLAdapter) CreateItem(ctx context.Context, item *domain.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := m.db.NamedExecContext(ctx, insertItemSQL, item)
	if isDuplicateEntry(err) {
		return domain.ErrDuplicateSKU
	}
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateItem(ctx context.Context, item domain.InventoryItem) error {
	result, err := m.db.NamedExecContext(ctx, updateItemSQL, item)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func (m *MySQLAdapter) DeleteItem(ctx context.Context, id string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

const insertItemSQL = `
	INSERT INTO items (id, sku, name, location, quantity, minimum_stock, version, last_updated, created_at)
	VALUES (:id, :sku, :name, :location, :quantity, :minimum_stock, 0, :last_updated, :created_at)`

const updateItemSQL = `
	UPDATE items
	SET name = :name, location = :location, quantity = :quantity, minimum_stock = :minimum_stock,
		last_updated = :last_updated, version = version + 1
	WHERE id = :id AND version = :version`

// Ledger

func (m *MySQLAdapter) CommitMovement(ctx context.Context, item *domain.InventoryItem, movement *domain.Movement) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	created := item.ID == ""
	if created {
		item.ID = uuid.NewString()
		if item.CreatedAt.IsZero() {
			item.CreatedAt = item.LastUpdated
		}
		if _, err := tx.NamedExecContext(ctx, insertItemSQL, item); err != nil {
			item.ID = ""
			if isDuplicateEntry(err) {
				// Another writer created the SKU first; the caller re-reads it.
				return domain.ErrVersionConflict
			}
			return fmt.Errorf("insert item: %w", err)
		}
	} else {
		result, err := tx.NamedExecContext(ctx, updateItemSQL, item)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return domain.ErrVersionConflict
		}
	}

	movement.ID = uuid.NewString()
	movement.ItemID = item.ID
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO movements (`+movementColumns+`)
		VALUES (:id, :type, :item_id, :sku, :quantity, :quantity_before, :quantity_after,
			:from_location, :to_location, :user_id, :notes, :reference, :status, :timestamp)`,
		movement,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if !created {
		item.Version++
	}
	return nil
}

// Movements

func (m *MySQLAdapter) GetMovement(ctx context.Context, id string) (*domain.Movement, error) {
	var mv domain.Movement
	err := m.db.GetContext(ctx, &mv, `SELECT `+movementColumns+` FROM movements WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query movement: %w", err)
	}
	return &mv, nil
}

func (m *MySQLAdapter) ListMovements(ctx context.Context, f domain.MovementFilter) ([]domain.Movement, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.SKU != "" {
		conditions = append(conditions, "sku = :sku")
		args["sku"] = f.SKU
	}
	if f.Type != "" {
		conditions = append(conditions, "type = :type")
		args["type"] = f.Type
	}
	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = f.Status
	}

	query := `SELECT ` + movementColumns + ` FROM movements`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC" + limitClause(f.Limit, f.Offset)

	nstmt, err := m.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare list movements: %w", err)
	}
	defer nstmt.Close()

	movements := []domain.Movement{}
	if err := nstmt.SelectContext(ctx, &movements, args); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

func (m *MySQLAdapter) UpdateMovementStatus(ctx context.Context, id string, from, to domain.MovementStatus, notes *string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE movements SET status = ?, notes = COALESCE(?, notes)
		WHERE id = ? AND status = ?`,
		to, notes, id, from,
	)
	if err != nil {
		return fmt.Errorf("update movement: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// Orders

type orderRow struct {
	ID             string     `db:"id"`
	OrderNumber    string     `db:"order_number"`
	Customer       string     `db:"customer"`
	Email          string     `db:"email"`
	Address        string     `db:"address"`
	Status         string     `db:"status"`
	Items          []byte     `db:"items"`
	TrackingNumber string     `db:"tracking_number"`
	Carrier        string     `db:"carrier"`
	Notes          string     `db:"notes"`
	ShippedAt      *time.Time `db:"shipped_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

func newOrderRow(o *domain.Order) (*orderRow, error) {
	items := o.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode order items: %w", err)
	}
	return &orderRow{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		Customer:       o.Customer,
		Email:          o.Email,
		Address:        o.Address,
		Status:         string(o.Status),
		Items:          raw,
		TrackingNumber: o.TrackingNumber,
		Carrier:        o.Carrier,
		Notes:          o.Notes,
		ShippedAt:      o.ShippedAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}, nil
}

func (r orderRow) toDomain() (*domain.Order, error) {
	o := &domain.Order{
		ID:             r.ID,
		OrderNumber:    r.OrderNumber,
		Customer:       r.Customer,
		Email:          r.Email,
		Address:        r.Address,
		Status:         domain.OrderStatus(r.Status),
		TrackingNumber: r.TrackingNumber,
		Carrier:        r.Carrier,
		Notes:          r.Notes,
		ShippedAt:      r.ShippedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if len(r.Items) > 0 {
		if err := json.Unmarshal(r.Items, &o.Items); err != nil {
			return nil, fmt.Errorf("decode order items: %w", err)
		}
	}
	return o, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return m.getOrder(ctx, "id", id)
}

func (m *MySQLAdapter) GetOrderByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return m.getOrder(ctx, "order_number", orderNumber)
}

func (m *MySQLAdapter) getOrder(ctx context.Context, column, value string) (*domain.Order, error) {
	var row orderRow
	err := m.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE `+column+` = ?`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return row.toDomain()
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	var rows []orderRow
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = "ORD-" + strings.ToUpper(order.ID[:8])
	}

	row, err := newOrderRow(order)
	if err != nil {
		return err
	}
	_, err = m.db.NamedExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (:id, :order_number, :customer, :email, :address, :status, :items,
			:tracking_number, :carrier, :notes, :shipped_at, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	_, err := m.db.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, status, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) MarkShipped(ctx context.Context, id, trackingNumber, carrier string, shippedAt time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET status = ?, tracking_number = ?, carrier = ?, shipped_at = ?, updated_at = ?
		WHERE id = ?`,
		domain.OrderStatusShipped, trackingNumber, carrier, shippedAt, shippedAt, id,
	)
	if err != nil {
		return fmt.Errorf("mark shipped: %w", err)
	}
	return nil
}

// Notifications

func (m *MySQLAdapter) SaveNotification(ctx context.Context, event *domain.LowStockEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	_, err := m.db.NamedExecContext(ctx, `
		INSERT INTO notifications (id, item_id, sku, name, previous_quantity, current_quantity, minimum_stock, timestamp)
		VALUES (:id, :item_id, :sku, :name, :previous_quantity, :current_quantity, :minimum_stock, :timestamp)`,
		event,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) ListNotifications(ctx context.Context, limit int) ([]domain.LowStockEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	events := []domain.LowStockEvent{}
	err := m.db.SelectContext(ctx, &events, `
		SELECT id, item_id, sku, name, previous_quantity, current_quantity, minimum_stock, timestamp
		FROM notifications ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return events, nil
}

func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}
