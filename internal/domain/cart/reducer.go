package cart

import (
	"math"

	"github.com/shopspring/decimal"
)

// Empty returns the default state: no items, no orders.
func Empty() State {
	return State{Items: []LineItem{}, Orders: []Order{}}
}

// AddItem returns st with qty units of ref added. An existing line item for
// ref.ID only has its quantity increased; its price and display data are kept
// as they were at first add. A non-positive qty, or one that would overflow
// the line item's quantity, leaves st unchanged.
func AddItem(st State, ref ProductRef, qty int) State {
	if qty <= 0 {
		return st
	}
	out := st.Clone()
	for i := range out.Items {
		if out.Items[i].ID == ref.ID {
			if out.Items[i].Quantity > math.MaxInt-qty {
				return st
			}
			out.Items[i].Quantity += qty
			return out
		}
	}
	out.Items = append(out.Items, LineItem{
		ID:            ref.ID,
		Slug:          ref.Slug,
		Name:          ref.Name,
		Category:      ref.Category,
		Image:         ref.Image,
		Price:         ref.Price,
		OriginalPrice: cloneDecimal(ref.OriginalPrice),
		Quantity:      qty,
	})
	return out
}

// RemoveItem returns st without the line item for id. Unknown ids are a no-op.
func RemoveItem(st State, id int64) State {
	out := st.Clone()
	items := out.Items[:0]
	for _, it := range out.Items {
		if it.ID != id {
			items = append(items, it)
		}
	}
	out.Items = items
	return out
}

// UpdateQuantity sets the quantity of the line item for id. A quantity of
// zero or less removes the line item.
func UpdateQuantity(st State, id int64, qty int) State {
	if qty <= 0 {
		return RemoveItem(st, id)
	}
	out := st.Clone()
	for i := range out.Items {
		if out.Items[i].ID == id {
			out.Items[i].Quantity = qty
			break
		}
	}
	return out
}

// ClearCart empties the items and keeps the orders.
func ClearCart(st State) State {
	out := st.Clone()
	out.Items = []LineItem{}
	return out
}

// PrependOrder returns st with o placed at the front of the order list.
func PrependOrder(st State, o Order) State {
	out := st.Clone()
	out.Orders = append([]Order{o.clone()}, out.Orders...)
	return out
}

// Total returns the sum of price × quantity over all line items.
func Total(st State) decimal.Decimal {
	total := decimal.Zero
	for _, it := range st.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// ItemCount returns the sum of quantities over all line items.
func ItemCount(st State) int {
	n := 0
	for _, it := range st.Items {
		n += it.Quantity
	}
	return n
}
