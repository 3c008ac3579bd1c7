package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/shop-core/internal/domain"
)

// PostgresStore — персистентность заказов, товаров и журнала остатков.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// WithinTx выполняет fn в одной транзакции; любая ошибка — полный откат.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderNumberTaken
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProduct(ctx context.Context, id domain.ProductID) (*domain.Product, error) {
	var p domain.Product
	err := t.tx.QueryRow(ctx, `SELECT id, name, price, stock_quantity
        FROM products WHERE id = $1 FOR UPDATE`, string(id)).
		Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock product %s: %w", id, err)
	}
	return &p, nil
}

func (t *pgTx) SetProductStock(ctx context.Context, id domain.ProductID, qty int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE products SET stock_quantity = $2 WHERE id = $1`, string(id), qty)
	if err != nil {
		return fmt.Errorf("set stock %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (t *pgTx) AppendInventoryLog(ctx context.Context, e *domain.InventoryLogEntry) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO inventory_log
        (id, product_id, type, delta, reason, reference, old_quantity, new_quantity, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, string(e.ProductID), string(e.Type), e.Delta, e.Reason, e.Reference,
		e.OldQuantity, e.NewQuantity, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append inventory log: %w", err)
	}
	return nil
}

func (t *pgTx) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check order number: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO orders
        (id, order_number, customer_id, status, payment_status,
         subtotal, tax, shipping, discount, total, notes, created_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(o.ID), o.OrderNumber, string(o.CustomerID), string(o.Status), string(o.PaymentStatus),
		o.Subtotal, o.Tax, o.Shipping, o.Discount, o.Total, o.Notes, o.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrOrderNumberTaken
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (t *pgTx) InsertOrderItem(ctx context.Context, it *domain.OrderItem) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO order_items
        (order_id, product_id, quantity, unit_price, total_price)
        VALUES ($1, $2, $3, $4, $5)`,
		string(it.OrderID), string(it.ProductID), it.Quantity, it.UnitPrice, it.TotalPrice)
	if err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (t *pgTx) InsertAddress(ctx context.Context, a *domain.Address) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO addresses
        (id, order_id, recipient, line1, line2, city, postal_code, country)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, string(a.OrderID), a.Recipient, a.Line1, a.Line2, a.City, a.PostalCode, a.Country)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, selectOrder+` WHERE id = $1 FOR UPDATE`, string(id)))
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET
        status = $2, payment_status = $3, notes = $4, shipped_at = $5, delivered_at = $6
        WHERE id = $1`,
		string(o.ID), string(o.Status), string(o.PaymentStatus), o.Notes, o.ShippedAt, o.DeliveredAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

const selectOrder = `SELECT id, order_number, COALESCE(customer_id, ''), status, payment_status,
    subtotal, tax, shipping, discount, total, notes, created_at, shipped_at, delivered_at
    FROM orders`

func (s *PostgresStore) GetOrder(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	o, err := scanOrder(s.Pool.QueryRow(ctx, selectOrder+` WHERE id = $1`, string(id)))
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, s.Pool, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, q domain.ListOrdersQuery) ([]domain.Order, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, selectOrder+`
        WHERE ($1 = '' OR customer_id = $1)
          AND ($2 = '' OR status = $2)
        ORDER BY created_at DESC
        LIMIT $3 OFFSET $4`,
		string(q.CustomerID), string(q.Status), limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) OrderStatistics(ctx context.Context, customerID domain.CustomerID) (*domain.OrderStatistics, error) {
	rows, err := s.Pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(total), 0)
        FROM orders
        WHERE ($1 = '' OR customer_id = $1)
        GROUP BY status`, string(customerID))
	if err != nil {
		return nil, fmt.Errorf("order statistics: %w", err)
	}
	defer rows.Close()

	st := &domain.OrderStatistics{OrdersByStatus: make(map[domain.OrderStatus]int64)}
	var revenueOrders int64
	for rows.Next() {
		var status string
		var count, sum int64
		if err := rows.Scan(&status, &count, &sum); err != nil {
			return nil, err
		}
		st.OrdersByStatus[domain.OrderStatus(status)] = count
		st.TotalOrders += count
		if domain.OrderStatus(status) == domain.OrderStatusCancelled {
			st.CancelledOrders = count
			continue
		}
		st.TotalRevenue += sum
		revenueOrders += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if revenueOrders > 0 {
		st.AverageOrder = st.TotalRevenue / revenueOrders
	}
	return st, nil
}

func (s *PostgresStore) ListInventoryLog(ctx context.Context, productID domain.ProductID, limit int) ([]domain.InventoryLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, product_id, type, delta, reason, reference,
        old_quantity, new_quantity, created_at
        FROM inventory_log WHERE product_id = $1
        ORDER BY created_at DESC LIMIT $2`, string(productID), limit)
	if err != nil {
		return nil, fmt.Errorf("list inventory log: %w", err)
	}
	defer rows.Close()

	var out []domain.InventoryLogEntry
	for rows.Next() {
		var e domain.InventoryLogEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Type, &e.Delta, &e.Reason, &e.Reference,
			&e.OldQuantity, &e.NewQuantity, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) OrderOwner(ctx context.Context, id domain.OrderID) (domain.CustomerID, error) {
	var owner string
	err := s.Pool.QueryRow(ctx, `SELECT COALESCE(customer_id, '') FROM orders WHERE id = $1`, string(id)).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("order owner: %w", err)
	}
	return domain.CustomerID(owner), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.Status, &o.PaymentStatus,
		&o.Subtotal, &o.Tax, &o.Shipping, &o.Discount, &o.Total, &o.Notes,
		&o.CreatedAt, &o.ShippedAt, &o.DeliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q querier, id domain.OrderID) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `SELECT order_id, product_id, quantity, unit_price, total_price
        FROM order_items WHERE order_id = $1`, string(id))
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ domain.Store = (*PostgresStore)(nil)
var _ domain.Tx = (*pgTx)(nil)

// EnsureSchema — создать необходимые таблицы, если отсутствуют.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS products (
  id text PRIMARY KEY,
  name text NOT NULL,
  price bigint NOT NULL,
  stock_quantity bigint NOT NULL DEFAULT 0 CHECK (stock_quantity >= 0)
);
CREATE TABLE IF NOT EXISTS orders (
  id text PRIMARY KEY,
  order_number text NOT NULL UNIQUE,
  customer_id text,
  status text NOT NULL,
  payment_status text NOT NULL,
  subtotal bigint NOT NULL,
  tax bigint NOT NULL,
  shipping bigint NOT NULL,
  discount bigint NOT NULL,
  total bigint NOT NULL,
  notes text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now(),
  shipped_at timestamptz,
  delivered_at timestamptz
);
CREATE TABLE IF NOT EXISTS order_items (
  order_id text NOT NULL REFERENCES orders(id),
  product_id text NOT NULL REFERENCES products(id),
  quantity bigint NOT NULL CHECK (quantity > 0),
  unit_price bigint NOT NULL,
  total_price bigint NOT NULL
);
CREATE TABLE IF NOT EXISTS addresses (
  id text PRIMARY KEY,
  order_id text NOT NULL REFERENCES orders(id),
  recipient text NOT NULL,
  line1 text NOT NULL,
  line2 text NOT NULL DEFAULT '',
  city text NOT NULL,
  postal_code text NOT NULL,
  country text NOT NULL
);
CREATE TABLE IF NOT EXISTS inventory_log (
  id text PRIMARY KEY,
  product_id text NOT NULL REFERENCES products(id),
  type text NOT NULL,
  delta bigint NOT NULL,
  reason text NOT NULL DEFAULT '',
  reference text NOT NULL DEFAULT '',
  old_quantity bigint NOT NULL,
  new_quantity bigint NOT NULL CHECK (new_quantity = old_quantity + delta),
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
CREATE INDEX IF NOT EXISTS idx_inventory_log_product ON inventory_log(product_id, created_at);
`)
	return err
}
