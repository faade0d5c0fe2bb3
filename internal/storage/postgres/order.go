package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
	"github.com/xenking/citricloud-cart/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO cart_orders
	(id, order_number, created_at, total, status, items, invoice_number, invoice_url)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

	streamOrdersSQL = `SELECT id, order_number, created_at, total, status, items, invoice_number, invoice_url
	FROM cart_orders
	WHERE created_at >= $1
	ORDER BY created_at, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists an order. The line items are stored in the JSONB column
// in the same shape as the cart payload. Re-archiving an order is a no-op.
func (r *OrderRepository) Create(ctx context.Context, o *cart.Order) error {
	var e jx.Encoder
	cart.EncodeLineItems(&e, o.Items)

	var invoiceNumber, invoiceURL *string
	if o.Invoice != nil {
		invoiceNumber = &o.Invoice.InvoiceNumber
		invoiceURL = &o.Invoice.DownloadURL
	}

	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.Date, o.Total, string(o.Status), e.Bytes(), invoiceNumber, invoiceURL,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.OrderNumber)
	}
	return nil
}

// Stream iterates archived orders created at or after since, oldest first.
func (r *OrderRepository) Stream(ctx context.Context, since time.Time, fn func(cart.Order) error) error {
	rows, err := r.pool.Query(ctx, streamOrdersSQL, since)
	if err != nil {
		return errors.Wrap(err, "query orders")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			o             cart.Order
			status        string
			total         decimal.Decimal
			items         []byte
			invoiceNumber *string
			invoiceURL    *string
		)
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.Date, &total, &status, &items, &invoiceNumber, &invoiceURL); err != nil {
			return errors.Wrap(err, "scan order")
		}
		o.Total = total
		o.Status = cart.Status(status)
		o.Items, err = cart.DecodeLineItems(jx.DecodeBytes(items))
		if err != nil {
			return errors.Wrapf(err, "decode items of order %q", o.OrderNumber)
		}
		if invoiceNumber != nil {
			o.Invoice = &cart.Invoice{InvoiceNumber: *invoiceNumber}
			if invoiceURL != nil {
				o.Invoice.DownloadURL = *invoiceURL
			}
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate orders")
	}
	return nil
}
