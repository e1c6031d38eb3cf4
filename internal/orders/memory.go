package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
)

// Memory is an in-process Store with the same uniqueness rule on payment
// reference as the Postgres schema.
type Memory struct {
	mu     sync.RWMutex
	orders map[string]Order
	byRef  map[string]string
	seq    int64

	// FailCreate, when set, is consulted before an order is stored.
	FailCreate func(o *Order) error
	// OnCommit receives reservations that became part of a stored order.
	OnCommit func(rs ...inventory.Reservation)
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{orders: make(map[string]Order), byRef: make(map[string]string)}
}

func (m *Memory) Create(_ context.Context, o *Order, rs ...inventory.Reservation) error {
	if err := o.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate != nil {
		if err := m.FailCreate(o); err != nil {
			return err
		}
	}
	if _, dup := m.byRef[o.PaymentReference]; dup {
		return ErrDuplicatePayment
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	// monotonic timestamps keep newest-first ordering stable in tests
	m.seq++
	now := time.Now().UTC().Add(time.Duration(m.seq) * time.Microsecond)
	o.CreatedAt, o.UpdatedAt = now, now
	for i := range o.Items {
		if o.Items[i].ID == "" {
			o.Items[i].ID = uuid.NewString()
		}
		o.Items[i].OrderID = o.ID
	}

	m.orders[o.ID] = o.clone()
	m.byRef[o.PaymentReference] = o.ID
	if m.OnCommit != nil && len(rs) > 0 {
		m.OnCommit(rs...)
	}
	return nil
}

func (m *Memory) ByID(_ context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o.clone(), nil
}

func (m *Memory) ByPaymentReference(_ context.Context, ref string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byRef[ref]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return m.orders[id].clone(), nil
}

func (m *Memory) ByUser(_ context.Context, userID string) ([]Order, error) {
	return m.filter(func(o Order) bool { return o.UserID == userID }), nil
}

func (m *Memory) All(_ context.Context) ([]Order, error) {
	return m.filter(func(Order) bool { return true }), nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, from, to Status) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if o.Status != from {
		return Order{}, ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	m.orders[id] = o
	return o.clone(), nil
}

// Len returns the number of stored orders.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}

func (m *Memory) filter(keep func(Order) bool) []Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
