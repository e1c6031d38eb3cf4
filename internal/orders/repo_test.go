package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
)

var (
	orderCols = []string{"id", "user_id", "total_amount", "status", "stripe_payment_intent_id",
		"shipping_address", "billing_address", "created_at", "updated_at"}
	itemCols = []string{"id", "order_id", "product_id", "product_name", "quantity", "unit_price", "total_price"}
)

func newMockRepo(t *testing.T) (*Repo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &Repo{DB: mock}, mock
}

func orderRow(id string, status Status, at time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(orderCols).
		AddRow(id, "u1", dec("51.00"), string(status), "pi_1", "ship", "bill", at, at)
}

func TestRepoCreateCommitsReservations(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := newOrder("u1", "pi_1")

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(at, at))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE reservations SET status`).
		WithArgs("r1", pgxmock.AnyArg(), inventory.StatusCommitted, inventory.StatusReserved).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), o, inventory.Reservation{ID: "r1"}))
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, at, o.CreatedAt)
	assert.Equal(t, o.ID, o.Items[0].OrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoCreateDuplicatePayment(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantDup bool
	}{
		{"payment reference taken", &pgconn.PgError{Code: "23505", ConstraintName: "orders_payment_ref_key"}, true},
		{"primary key clash", &pgconn.PgError{Code: "23505", ConstraintName: "orders_pkey"}, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectBeginTx(pgx.TxOptions{})
			mock.ExpectQuery(`INSERT INTO orders`).WillReturnError(tt.err)
			mock.ExpectRollback()

			err := repo.Create(context.Background(), newOrder("u1", "pi_1"), inventory.Reservation{ID: "r1"})
			require.Error(t, err)
			assert.Equal(t, tt.wantDup, errors.Is(err, ErrDuplicatePayment), err)
			assert.NoError(t, mock.ExpectationsWereMet(), "reservations are not committed")
		})
	}
}

func TestRepoCreateRollsBackWhenReservationGone(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Now()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(at, at))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE reservations SET status`).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), newOrder("u1", "pi_1"), inventory.Reservation{ID: "r1"})
	assert.ErrorContains(t, err, "no longer held")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoUpdateStatusCompareAndSet(t *testing.T) {
	at := time.Now().UTC()

	t.Run("applied", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`UPDATE orders SET status`).
			WithArgs("o1", string(StatusProcessing), string(StatusShipped)).
			WillReturnRows(orderRow("o1", StatusShipped, at))
		mock.ExpectQuery(`FROM order_items`).
			WillReturnRows(pgxmock.NewRows(itemCols).AddRow("i1", "o1", "p1", "Lamp", 2, dec("25.50"), dec("51.00")))

		o, err := repo.UpdateStatus(context.Background(), "o1", StatusProcessing, StatusShipped)
		require.NoError(t, err)
		assert.Equal(t, StatusShipped, o.Status)
		require.Len(t, o.Items, 1)
		assert.Equal(t, "Lamp", o.Items[0].ProductName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`UPDATE orders SET status`).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`FROM orders WHERE id`).WithArgs("o1").WillReturnRows(orderRow("o1", StatusCancelled, at))
		mock.ExpectQuery(`FROM order_items`).WillReturnRows(pgxmock.NewRows(itemCols))

		_, err := repo.UpdateStatus(context.Background(), "o1", StatusProcessing, StatusShipped)
		assert.ErrorIs(t, err, ErrStatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing order", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(`UPDATE orders SET status`).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(`FROM orders WHERE id`).WithArgs("o1").WillReturnError(pgx.ErrNoRows)

		_, err := repo.UpdateStatus(context.Background(), "o1", StatusProcessing, StatusShipped)
		assert.ErrorIs(t, err, ErrOrderNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepoByPaymentReference(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Now().UTC()
	mock.ExpectQuery(`WHERE stripe_payment_intent_id`).WithArgs("pi_1").WillReturnRows(orderRow("o1", StatusProcessing, at))
	mock.ExpectQuery(`FROM order_items`).
		WillReturnRows(pgxmock.NewRows(itemCols).AddRow("i1", "o1", "p1", "Lamp", 2, dec("25.50"), dec("51.00")))

	o, err := repo.ByPaymentReference(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "pi_1", o.PaymentReference)
	assert.True(t, o.TotalAmount.Equal(dec("51.00")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepoByUserLoadsItemsInOneQuery(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Now().UTC()
	rows := pgxmock.NewRows(orderCols).
		AddRow("o2", "u1", dec("25.50"), "SHIPPED", "pi_2", "ship", "bill", at, at).
		AddRow("o1", "u1", dec("51.00"), "PROCESSING", "pi_1", "ship", "bill", at, at)
	mock.ExpectQuery(`WHERE user_id`).WithArgs("u1").WillReturnRows(rows)
	mock.ExpectQuery(`FROM order_items`).WillReturnRows(pgxmock.NewRows(itemCols).
		AddRow("i1", "o1", "p1", "Lamp", 2, dec("25.50"), dec("51.00")).
		AddRow("i2", "o2", "p2", "Mug", 1, dec("25.50"), dec("25.50")))

	list, err := repo.ByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "o2", list[0].ID)
	assert.Equal(t, "Mug", list[0].Items[0].ProductName)
	assert.Equal(t, "Lamp", list[1].Items[0].ProductName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
