package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/clickcart-checkout/internal/postgres"
)

const (
	StatusReserved  = "RESERVED"
	StatusReleased  = "RELEASED"
	StatusCommitted = "COMMITTED"

	liveRefConstraint = "reservations_ref_live_key"
)

// Repo is the Postgres ledger. Stock is decremented with a conditional
// UPDATE so concurrent reservations against one product serialize on the
// row lock and never drive stock_quantity below zero. The reservation row
// is inserted first so reservations_ref_live_key rejects a second live
// reservation for the same ref before any stock moves.
type Repo struct{ DB postgres.DB }

var _ Ledger = (*Repo)(nil)

func (r *Repo) Product(ctx context.Context, productID string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, price, stock_quantity FROM products WHERE id=$1`, productID,
	).Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	return p, nil
}

func (r *Repo) Reserve(ctx context.Context, ref, productID string, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Reservation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res := Reservation{ID: uuid.NewString(), Ref: ref, ProductID: productID, Quantity: qty}
	err = tx.QueryRow(ctx, `
		INSERT INTO reservations(id, ref, product_id, quantity, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`, res.ID, ref, productID, qty, StatusReserved,
	).Scan(&res.CreatedAt)
	switch {
	case postgres.IsUniqueViolation(err, liveRefConstraint):
		return Reservation{}, ErrReservationInFlight
	case postgres.IsForeignKeyViolation(err, ""):
		return Reservation{}, ErrProductNotFound
	case err != nil:
		return Reservation{}, fmt.Errorf("record reservation: %w", err)
	}

	// the product row exists (foreign key), so no match means short stock
	err = tx.QueryRow(ctx, `
		UPDATE products
		   SET stock_quantity = stock_quantity - $2, updated_at = now()
		 WHERE id = $1 AND stock_quantity >= $2
		RETURNING name, price`, productID, qty,
	).Scan(&res.ProductName, &res.UnitPrice)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, ErrInsufficientStock
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("decrement stock %s: %w", productID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func (r *Repo) Release(ctx context.Context, res Reservation) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var productID string
	var qty int
	err = tx.QueryRow(ctx, `
		UPDATE reservations SET status=$2, updated_at=now()
		 WHERE id=$1 AND status=$3
		RETURNING product_id, quantity`, res.ID, StatusReleased, StatusReserved,
	).Scan(&productID, &qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil // already released or committed
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		 WHERE id=$1`, productID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CommitTx marks reservations as consumed by orderID inside the caller's
// transaction. Once committed a reservation can no longer be released.
func CommitTx(ctx context.Context, tx pgx.Tx, orderID string, rs ...Reservation) error {
	for _, res := range rs {
		ct, err := tx.Exec(ctx, `
			UPDATE reservations SET status=$3, order_id=$2, updated_at=now()
			 WHERE id=$1 AND status=$4`, res.ID, orderID, StatusCommitted, StatusReserved)
		if err != nil {
			return err
		}
		if ct.RowsAffected() != 1 {
			return fmt.Errorf("reservation %s is no longer held", res.ID)
		}
	}
	return nil
}
