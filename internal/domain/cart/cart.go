// Package cart holds the shopping cart state container: line items, the
// orders placed from this cart, and the persistence contract that keeps them
// in a storage medium shared across subdomains of the site.
package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the lifecycle states of a locally created order.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusProcessing Status = "processing"
	StatusPending    Status = "pending"
)

// Valid reports whether s is one of the known order statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusProcessing, StatusPending:
		return true
	}
	return false
}

// ProductRef is the catalog data needed to put a product into the cart.
type ProductRef struct {
	ID            int64
	Slug          string
	Name          string
	Category      string
	Image         string
	Price         decimal.Decimal
	OriginalPrice *decimal.Decimal
}

// LineItem is one row of the cart. There is at most one line item per
// product ID and Quantity is always positive.
type LineItem struct {
	ID            int64
	Slug          string
	Name          string
	Category      string
	Image         string
	Price         decimal.Decimal
	OriginalPrice *decimal.Decimal
	Quantity      int
}

// Ref returns the product data of the line item without its quantity.
func (li LineItem) Ref() ProductRef {
	return ProductRef{
		ID:            li.ID,
		Slug:          li.Slug,
		Name:          li.Name,
		Category:      li.Category,
		Image:         li.Image,
		Price:         li.Price,
		OriginalPrice: cloneDecimal(li.OriginalPrice),
	}
}

// Subtotal returns Price × Quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Invoice references the invoice generated for an order.
type Invoice struct {
	InvoiceNumber string
	DownloadURL   string
}

// Order is an immutable record of a checkout. Items is a snapshot taken at
// creation time and never aliases the live cart.
type Order struct {
	ID          string
	OrderNumber string
	Date        time.Time
	Total       decimal.Decimal
	Status      Status
	Items       []LineItem
	Invoice     *Invoice
}

// State is the whole persisted cart: current line items and placed orders,
// most recent order first.
type State struct {
	Items  []LineItem
	Orders []Order
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{
		Items:  cloneItems(s.Items),
		Orders: make([]Order, len(s.Orders)),
	}
	for i, o := range s.Orders {
		out.Orders[i] = o.clone()
	}
	return out
}

func (o Order) clone() Order {
	c := o
	c.Items = cloneItems(o.Items)
	if o.Invoice != nil {
		inv := *o.Invoice
		c.Invoice = &inv
	}
	return c
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, it := range items {
		it.OriginalPrice = cloneDecimal(it.OriginalPrice)
		out[i] = it
	}
	return out
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
