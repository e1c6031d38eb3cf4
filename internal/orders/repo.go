package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
	"github.com/ariefcatur/clickcart-checkout/internal/postgres"
)

const paymentRefConstraint = "orders_payment_ref_key"

type Repo struct{ DB postgres.DB }

var _ Store = (*Repo)(nil)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, user_id, total_amount, status, stripe_payment_intent_id,
	shipping_address, billing_address, created_at, updated_at`

// Create inserts order + items and marks the reservations COMMITTED in one
// transaction. A second order for the same payment reference fails with
// ErrDuplicatePayment.
func (r *Repo) Create(ctx context.Context, o *Order, rs ...inventory.Reservation) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, total_amount, status, stripe_payment_intent_id, shipping_address, billing_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.TotalAmount, string(o.Status), o.PaymentReference, o.ShippingAddress, o.BillingAddress,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if postgres.IsUniqueViolation(err, paymentRefConstraint) {
		return ErrDuplicatePayment
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, product_name, quantity, unit_price, total_price, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.TotalPrice, i,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := inventory.CommitTx(ctx, tx, o.ID, rs...); err != nil {
		return fmt.Errorf("commit reservations: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repo) ByID(ctx context.Context, id string) (Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *Repo) ByPaymentReference(ctx context.Context, ref string) (Order, error) {
	return r.one(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_payment_intent_id=$1`, ref)
}

func (r *Repo) ByUser(ctx context.Context, userID string) ([]Order, error) {
	return r.many(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) All(ctx context.Context) ([]Order, error) {
	return r.many(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, from, to Status) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		 WHERE id=$1 AND status=$2
		RETURNING `+orderColumns, id, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		// distinguish a missing order from a lost race
		if _, err := r.ByID(ctx, id); err != nil {
			return Order{}, err
		}
		return Order{}, ErrStatusConflict
	}
	if err != nil {
		return Order{}, err
	}
	if err := loadItems(ctx, r.DB, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) one(ctx context.Context, sql string, args ...any) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if err := loadItems(ctx, r.DB, []*Order{&o}); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) many(ctx context.Context, sql string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*Order, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := loadItems(ctx, r.DB, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status, &o.PaymentReference,
		&o.ShippingAddress, &o.BillingAddress, &o.CreatedAt, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}

func loadItems(ctx context.Context, q querier, list []*Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	byID := make(map[string]*Order, len(list))
	for _, o := range list {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price
		  FROM order_items WHERE order_id = ANY($1)
		 ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return err
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}
