package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/order-gateway/db"
	"github.com/xenking/order-gateway/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(order_id, product_id, quantity, subtotal, shipping_address, shipping_zip, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	listOrdersSQL = `SELECT order_id, product_id, quantity, subtotal, shipping_address, shipping_zip, total
		FROM orders`
)

// PostgreSQL error codes a concurrent CREATE TABLE IF NOT EXISTS can lose
// with while racing another session for the same catalog entries.
var schemaRaceCodes = map[string]struct{}{
	"23505": {}, // unique_violation on pg_type
	"42P07": {}, // duplicate_table
	"42710": {}, // duplicate_object
}

// DefaultAcquireTimeout bounds the wait for a free pooled connection.
const DefaultAcquireTimeout = 5 * time.Second

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Every
// operation checks a connection out of the pool and returns it before
// returning, on success and on failure.
type OrderRepository struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
// A non-positive acquireTimeout selects DefaultAcquireTimeout.
func NewOrderRepository(pool *pgxpool.Pool, acquireTimeout time.Duration) *OrderRepository {
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &OrderRepository{pool: pool, acquireTimeout: acquireTimeout}
}

// acquire waits at most r.acquireTimeout for a connection. The returned
// connection is not bound to the acquire deadline.
func (r *OrderRepository) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, r.acquireTimeout)
	defer cancel()

	conn, err := r.pool.Acquire(actx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection")
	}
	return conn, nil
}

// EnsureSchema creates the orders table if it does not exist.
func (r *OrderRepository) EnsureSchema(ctx context.Context) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return &order.StoreError{Op: "ensure schema", Err: err}
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, db.Schema); err != nil && !isSchemaRace(err) {
		return &order.StoreError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Insert appends one row. Existing rows are never touched.
func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return &order.StoreError{Op: "insert", Err: err}
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, insertOrderSQL,
		o.OrderID, o.ProductID, o.Quantity, o.Subtotal,
		o.ShippingAddress, o.ShippingZip, o.Total,
	)
	if err != nil {
		return &order.StoreError{Op: "insert", Err: errors.Wrapf(err, "order %d", o.OrderID)}
	}
	return nil
}

// List returns every row in the order PostgreSQL returns them.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, &order.StoreError{Op: "list", Err: err}
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, &order.StoreError{Op: "list", Err: err}
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, &order.StoreError{Op: "list", Err: err}
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return orders, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.OrderID, &o.ProductID, &o.Quantity, &o.Subtotal,
		&o.ShippingAddress, &o.ShippingZip, &o.Total,
	)
	return o, err
}

func isSchemaRace(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := schemaRaceCodes[pgErr.Code]
	return ok
}
