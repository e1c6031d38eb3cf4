package main

import (
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
)

// sandboxBackends returns in-memory stores seeded with a small catalog and
// one customer, enough to walk the checkout flow locally.
func sandboxBackends() (*inventory.Memory, *orders.Memory, *identity.Memory) {
	ledger := inventory.NewMemory(
		inventory.Product{ID: "mug", Name: "Ceramic Mug", Price: decimal.RequireFromString("12.50"), StockQuantity: 25},
		inventory.Product{ID: "lamp", Name: "Desk Lamp", Price: decimal.RequireFromString("39.90"), StockQuantity: 10},
		inventory.Product{ID: "tote", Name: "Canvas Tote", Price: decimal.RequireFromString("19.00"), StockQuantity: 40},
	)
	store := orders.NewMemory()
	store.OnCommit = ledger.Commit
	users := identity.NewMemory(
		identity.User{ID: "demo", Username: "demo", Email: "demo@clickcart.local", FirstName: "Demo", LastName: "User"},
		identity.User{ID: "admin", Username: "admin", Email: "admin@clickcart.local", FirstName: "Shop", LastName: "Admin"},
	)
	return ledger, store, users
}
