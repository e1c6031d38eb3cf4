package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
	"github.com/ariefcatur/clickcart-checkout/internal/notify"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
	"github.com/ariefcatur/clickcart-checkout/internal/payment"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) ofType(eventType string) []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Event
	for _, ev := range n.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	svc    *Service
	ledger *inventory.Memory
	gw     *payment.Sandbox
	store  *orders.Memory
	notes  *recordingNotifier
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(products ...inventory.Product) *fixture {
	ledger := inventory.NewMemory(products...)
	store := orders.NewMemory()
	store.OnCommit = ledger.Commit
	f := &fixture{
		ledger: ledger,
		gw:     payment.NewSandbox(),
		store:  store,
		notes:  &recordingNotifier{},
	}
	f.svc = &Service{
		Ledger:  ledger,
		Gateway: f.gw,
		Store:   store,
		Users: identity.NewMemory(
			identity.User{ID: "u1", Username: "alice", Email: "alice@example.com", FirstName: "Alice"},
			identity.User{ID: "u2", Username: "bob", Email: "bob@example.com", FirstName: "Bob"},
		),
		Notifier: f.notes,
		Currency: "usd",
	}
	return f
}

func lamp(stock int) inventory.Product {
	return inventory.Product{ID: "lamp", Name: "Desk Lamp", Price: dec("10.00"), StockQuantity: stock}
}

// paid runs the first checkout step and confirms the authorization.
func (f *fixture) paid(t *testing.T, user, product string, qty int) string {
	t.Helper()
	ctx := context.Background()
	d, err := f.svc.InitiateCheckout(ctx, CheckoutRequest{UserID: user, ProductID: product, Quantity: qty})
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(ctx, d.Authorization.ID)
	require.NoError(t, err)
	return d.Authorization.ID
}

func finalizeReq(user, auth, product string, qty int) FinalizeRequest {
	return FinalizeRequest{
		UserID:          user,
		AuthorizationID: auth,
		ProductID:       product,
		Quantity:        qty,
		ShippingAddress: "1 Main St",
		BillingAddress:  "1 Main St",
	}
}

func TestInitiateCheckoutAuthorizesWithoutReserving(t *testing.T) {
	f := newFixture(lamp(5))

	d, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "u1", ProductID: "lamp", Quantity: 3, ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, d.Authorization.ID)
	assert.NotEmpty(t, d.Authorization.ClientSecret)
	assert.Equal(t, int64(3000), d.Authorization.AmountMinor)
	assert.Equal(t, "usd", d.Authorization.Currency)
	assert.Equal(t, payment.StatusRequiresConfirmation, d.Authorization.Status)

	assert.Empty(t, d.Order.ID)
	assert.Equal(t, orders.StatusProcessing, d.Order.Status)
	assert.Equal(t, d.Authorization.ID, d.Order.PaymentReference)
	assert.True(t, d.Order.TotalAmount.Equal(dec("30.00")))

	assert.Equal(t, 5, f.ledger.Stock("lamp"))
	assert.Zero(t, f.store.Len())
}

func TestInitiateCheckoutErrors(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()

	cases := []struct {
		name string
		req  CheckoutRequest
		want error
	}{
		{"unknown product", CheckoutRequest{UserID: "u1", ProductID: "nope", Quantity: 1}, inventory.ErrProductNotFound},
		{"over stock", CheckoutRequest{UserID: "u1", ProductID: "lamp", Quantity: 6}, inventory.ErrInsufficientStock},
		{"zero quantity", CheckoutRequest{UserID: "u1", ProductID: "lamp", Quantity: 0}, inventory.ErrInvalidQuantity},
		{"unknown user", CheckoutRequest{UserID: "ghost", ProductID: "lamp", Quantity: 1}, identity.ErrUserNotFound},
		{"missing product", CheckoutRequest{UserID: "u1", Quantity: 1}, ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.InitiateCheckout(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	f.gw.FailNext(fmt.Errorf("%w: connection refused", payment.ErrGateway))
	_, err := f.svc.InitiateCheckout(ctx, CheckoutRequest{UserID: "u1", ProductID: "lamp", Quantity: 1})
	assert.ErrorIs(t, err, payment.ErrGateway)
}

func TestConfirmPaymentDeclined(t *testing.T) {
	f := newFixture(lamp(5))
	f.gw.DeclineAbove = 1500
	ctx := context.Background()

	d, err := f.svc.InitiateCheckout(ctx, CheckoutRequest{UserID: "u1", ProductID: "lamp", Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, d.Authorization.ID)
	assert.ErrorIs(t, err, payment.ErrPaymentDeclined)
	assert.Equal(t, "PAYMENT_DECLINED", Code(err))

	_, err = f.svc.FinalizeOrder(ctx, finalizeReq("u1", d.Authorization.ID, "lamp", 2))
	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)
}

func TestConcurrentFinalizeNeverOversells(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()
	qtys := []int{3, 4}
	auths := []string{f.paid(t, "u1", "lamp", 3), f.paid(t, "u2", "lamp", 4)}
	users := []string{"u1", "u2"}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	created := make([]orders.Order, 2)
	for i := range qtys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created[i], errs[i] = f.svc.FinalizeOrder(ctx, finalizeReq(users[i], auths[i], "lamp", qtys[i]))
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "only one finalize may succeed")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
		assert.Equal(t, auths[i], AuthorizationID(err))
	}
	require.NotEqual(t, -1, winner)
	assert.Equal(t, 5-qtys[winner], f.ledger.Stock("lamp"))
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, qtys[winner], created[winner].Items[0].Quantity)
}

func TestFinalizeRequiresSucceededAuthorization(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()

	d, err := f.svc.InitiateCheckout(ctx, CheckoutRequest{UserID: "u1", ProductID: "lamp", Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.FinalizeOrder(ctx, finalizeReq("u1", d.Authorization.ID, "lamp", 2))
	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)
	assert.Equal(t, d.Authorization.ID, AuthorizationID(err))
	assert.Zero(t, f.store.Len())
	assert.Equal(t, 5, f.ledger.Stock("lamp"))
	assert.Empty(t, f.notes.ofType(orders.EventOrderConfirmed))
}

func TestFinalizeThenShip(t *testing.T) {
	f := newFixture(inventory.Product{ID: "mug", Name: "Mug", Price: dec("25.50"), StockQuantity: 10})
	ctx := context.Background()
	auth := f.paid(t, "u1", "mug", 2)

	o, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "mug", 2))
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, auth, o.PaymentReference)
	assert.True(t, o.TotalAmount.Equal(dec("51.00")), o.TotalAmount.String())
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].UnitPrice.Equal(dec("25.50")))
	assert.NoError(t, o.Validate())
	assert.Equal(t, 8, f.ledger.Stock("mug"))
	assert.Len(t, f.notes.ofType(orders.EventOrderConfirmed), 1)

	shipped, err := f.svc.UpdateStatus(ctx, o.ID, orders.StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, shipped.Status)

	updates := f.notes.ofType(orders.EventOrderStatusUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, orders.StatusProcessing, updates[0].Previous)
	assert.Equal(t, orders.StatusShipped, updates[0].Order.Status)
}

func TestFinalizeReleasesStockWhenPersistenceFails(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 3)
	f.store.FailCreate = func(*orders.Order) error { return errors.New("disk full") }

	_, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrPaymentNotConfirmed)
	assert.Equal(t, "PERSISTENCE_ERROR", Code(err))
	assert.Equal(t, auth, AuthorizationID(err))

	assert.Equal(t, 5, f.ledger.Stock("lamp"))
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.notes.ofType(orders.EventOrderConfirmed))

	// the same authorization can be finalized once storage recovers
	f.store.FailCreate = nil
	o, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 3))
	require.NoError(t, err)
	assert.Equal(t, auth, o.PaymentReference)
	assert.Equal(t, 2, f.ledger.Stock("lamp"))
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 2)

	first, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 2))
	require.NoError(t, err)
	second, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 2))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, f.ledger.Stock("lamp"))
	assert.Equal(t, 1, f.store.Len())
	assert.Len(t, f.notes.ofType(orders.EventOrderConfirmed), 1)
}

func TestConcurrentFinalizeSameAuthorization(t *testing.T) {
	f := newFixture(lamp(100))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 3)

	const calls = 16
	var wg sync.WaitGroup
	ids := make([]string, calls)
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 3))
			ids[i], errs[i] = o.ID, err
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 97, f.ledger.Stock("lamp"))
	assert.Equal(t, 1, f.store.Len())
	assert.Len(t, f.notes.ofType(orders.EventOrderConfirmed), 1)
}

func TestConcurrentFinalizeSameAuthorizationScarceStock(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 3)

	const calls = 8
	var wg sync.WaitGroup
	ids := make([]string, calls)
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 3))
			ids[i], errs[i] = o.ID, err
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 2, f.ledger.Stock("lamp"))
	assert.Equal(t, 1, f.store.Len())
}

// slowCreateStore stands in for a database whose insert is not yet visible
// to other readers.
type slowCreateStore struct {
	orders.Store
	delay time.Duration
}

func (s slowCreateStore) Create(ctx context.Context, o *orders.Order, rs ...inventory.Reservation) error {
	time.Sleep(s.delay)
	return s.Store.Create(ctx, o, rs...)
}

func TestFinalizeWaitsForInFlightOrder(t *testing.T) {
	f := newFixture(lamp(3))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 3)
	f.svc.Store = slowCreateStore{Store: f.store, delay: 50 * time.Millisecond}

	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 3))
			ids[i], errs[i] = o.ID, err
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, ids[0], ids[1])
	assert.Zero(t, f.ledger.Stock("lamp"))
	assert.Equal(t, 1, f.store.Len())
	assert.Len(t, f.notes.ofType(orders.EventOrderConfirmed), 1)
}

func TestFinalizeRetriesAfterInFlightCallFails(t *testing.T) {
	f := newFixture(lamp(3))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 3)
	f.svc.Store = slowCreateStore{Store: f.store, delay: 50 * time.Millisecond}
	var creates atomic.Int32
	f.store.FailCreate = func(*orders.Order) error {
		if creates.Add(1) == 1 {
			return errors.New("connection reset")
		}
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 3))
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrPersistence)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Zero(t, f.ledger.Stock("lamp"))
	assert.Equal(t, 1, f.store.Len())
}

func TestFinalizeGivesUpOnHeldReservation(t *testing.T) {
	f := newFixture(lamp(5))
	auth := f.paid(t, "u1", "lamp", 1)
	_, err := f.ledger.Reserve(context.Background(), auth, "lamp", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, auth, AuthorizationID(err))
	assert.Equal(t, 4, f.ledger.Stock("lamp"))
	assert.Zero(t, f.store.Len())
}

func TestFinalizeReplayMismatch(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 2)

	first, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 2))
	require.NoError(t, err)

	_, err = f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 3))
	assert.ErrorIs(t, err, ErrAuthorizationMismatch)

	_, err = f.svc.FinalizeOrder(ctx, finalizeReq("u2", auth, "lamp", 2))
	assert.ErrorIs(t, err, ErrAuthorizationMismatch)
	assert.NotContains(t, err.Error(), first.ID, "another user's order id is not revealed")
	assert.Equal(t, 3, f.ledger.Stock("lamp"))
}

func TestFinalizeRejectsAmountMismatch(t *testing.T) {
	ctx := context.Background()

	t.Run("quantity raised after payment", func(t *testing.T) {
		f := newFixture(lamp(5))
		auth := f.paid(t, "u1", "lamp", 1)

		_, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 4))
		assert.ErrorIs(t, err, ErrAmountMismatch)
		assert.Equal(t, 5, f.ledger.Stock("lamp"))
		assert.Zero(t, f.store.Len())
	})

	t.Run("price changed after payment", func(t *testing.T) {
		f := newFixture(lamp(5))
		auth := f.paid(t, "u1", "lamp", 2)
		f.ledger.SetPrice("lamp", dec("12.00"))

		_, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 2))
		assert.ErrorIs(t, err, ErrAmountMismatch)
		assert.Equal(t, 5, f.ledger.Stock("lamp"))
	})
}

func TestFinalizeGatewayFailures(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 1)

	f.gw.FailNext(fmt.Errorf("%w: %w", payment.ErrGateway, payment.ErrGatewayTimeout))
	_, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 1))
	assert.ErrorIs(t, err, payment.ErrGatewayTimeout)
	assert.Equal(t, "GATEWAY_TIMEOUT", Code(err))
	assert.Equal(t, auth, AuthorizationID(err))

	_, err = f.svc.FinalizeOrder(ctx, finalizeReq("u1", "pi_unknown", "lamp", 1))
	assert.ErrorIs(t, err, payment.ErrAuthorizationNotFound)

	assert.Equal(t, 5, f.ledger.Stock("lamp"))
	assert.Zero(t, f.store.Len())
}

func TestFinalizeValidation(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()

	req := finalizeReq("u1", "pi_1", "lamp", 1)
	req.BillingAddress = " "
	_, err := f.svc.FinalizeOrder(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	var fe *FinalizeError
	assert.False(t, errors.As(err, &fe))

	_, err = f.svc.FinalizeOrder(ctx, finalizeReq("u1", "", "lamp", 1))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.FinalizeOrder(ctx, finalizeReq("u1", "pi_1", "lamp", 0))
	assert.ErrorIs(t, err, inventory.ErrInvalidQuantity)
}

func TestFinalizeUnknownUser(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 1)

	_, err := f.svc.FinalizeOrder(ctx, finalizeReq("ghost", auth, "lamp", 1))
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
	assert.Equal(t, 5, f.ledger.Stock("lamp"))
}

func TestUpdateStatusRejectsIllegalEdges(t *testing.T) {
	f := newFixture(lamp(5))
	ctx := context.Background()
	auth := f.paid(t, "u1", "lamp", 1)
	o, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", auth, "lamp", 1))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, o.ID, orders.StatusDelivered)
	assert.ErrorIs(t, err, orders.ErrIllegalTransition)

	_, err = f.svc.UpdateStatus(ctx, o.ID, orders.StatusCancelled)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, o.ID, orders.StatusShipped)
	assert.ErrorIs(t, err, orders.ErrIllegalTransition)

	_, err = f.svc.UpdateStatus(ctx, "missing", orders.StatusShipped)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	assert.Len(t, f.notes.ofType(orders.EventOrderStatusUpdated), 1)
}

func TestReads(t *testing.T) {
	f := newFixture(lamp(10))
	ctx := context.Background()

	a1 := f.paid(t, "u1", "lamp", 1)
	o1, err := f.svc.FinalizeOrder(ctx, finalizeReq("u1", a1, "lamp", 1))
	require.NoError(t, err)
	a2 := f.paid(t, "u2", "lamp", 2)
	o2, err := f.svc.FinalizeOrder(ctx, finalizeReq("u2", a2, "lamp", 2))
	require.NoError(t, err)

	ghost := orders.New("deleted-user", "pi_legacy", "x", "x", orders.NewItem("lamp", "Desk Lamp", 1, dec("10.00")))
	require.NoError(t, f.store.Create(ctx, &ghost))

	got, err := f.svc.GetOrder(ctx, o1.ID)
	require.NoError(t, err)
	assert.Equal(t, o1.ID, got.ID)

	mine, err := f.svc.UserOrders(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, o2.ID, mine[0].ID)

	all, err := f.svc.AllOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	byID := map[string]OrderWithUser{}
	for _, o := range all {
		byID[o.ID] = o
	}
	require.NotNil(t, byID[o1.ID].User)
	assert.Equal(t, "alice", byID[o1.ID].User.Username)
	assert.Equal(t, "bob", byID[o2.ID].User.Username)
	assert.Nil(t, byID[ghost.ID].User)
}

func TestCode(t *testing.T) {
	cases := map[string]error{
		"":                      nil,
		"INSUFFICIENT_STOCK":    fmt.Errorf("reserve: %w", inventory.ErrInsufficientStock),
		"RESERVATION_IN_FLIGHT": inventory.ErrReservationInFlight,
		"PAYMENT_NOT_CONFIRMED": &FinalizeError{AuthorizationID: "pi", Err: ErrPaymentNotConfirmed},
		"PERSISTENCE_ERROR":     fmt.Errorf("%w: %w", ErrPersistence, orders.ErrDuplicatePayment),
		"GATEWAY_ERROR":         fmt.Errorf("%w: 500", payment.ErrGateway),
		"ILLEGAL_TRANSITION":    orders.ErrIllegalTransition,
		"INTERNAL":              errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Code(err))
	}
}
