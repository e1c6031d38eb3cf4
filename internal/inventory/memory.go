package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Ledger. One mutex guards every counter, which is
// enough to make reserve first-committer-wins.
type Memory struct {
	mu       sync.Mutex
	products map[string]*Product
	held     map[string]Reservation
	// live maps a ref to its reserved or committed reservation id.
	live map[string]string
}

var _ Ledger = (*Memory)(nil)

func NewMemory(products ...Product) *Memory {
	m := &Memory{
		products: make(map[string]*Product, len(products)),
		held:     make(map[string]Reservation),
		live:     make(map[string]string),
	}
	for _, p := range products {
		m.Put(p)
	}
	return m
}

// Put inserts or replaces a product.
func (m *Memory) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := p
	m.products[p.ID] = &clone
}

// SetPrice changes the catalog price without touching stock.
func (m *Memory) SetPrice(productID string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[productID]; ok {
		p.Price = price
	}
}

func (m *Memory) Product(_ context.Context, productID string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

func (m *Memory) Reserve(_ context.Context, ref, productID string, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live[ref]; ok {
		return Reservation{}, ErrReservationInFlight
	}
	p, ok := m.products[productID]
	if !ok {
		return Reservation{}, ErrProductNotFound
	}
	if p.StockQuantity < qty {
		return Reservation{}, ErrInsufficientStock
	}
	p.StockQuantity -= qty

	res := Reservation{
		ID:          uuid.NewString(),
		Ref:         ref,
		ProductID:   productID,
		ProductName: p.Name,
		Quantity:    qty,
		UnitPrice:   p.Price,
		CreatedAt:   time.Now().UTC(),
	}
	m.held[res.ID] = res
	m.live[ref] = res.ID
	return res, nil
}

func (m *Memory) Release(_ context.Context, res Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.held[res.ID]
	if !ok {
		return nil
	}
	delete(m.held, res.ID)
	if m.live[held.Ref] == held.ID {
		delete(m.live, held.Ref)
	}
	if p, ok := m.products[held.ProductID]; ok {
		p.StockQuantity += held.Quantity
	}
	return nil
}

// Commit drops reservations from the held set so later releases are no-ops.
// Their refs stay live.
func (m *Memory) Commit(rs ...Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		delete(m.held, r.ID)
	}
}

// Stock returns the current counter for productID, or -1 when unknown.
func (m *Memory) Stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[productID]; ok {
		return p.StockQuantity
	}
	return -1
}
