package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

// createOrderRequest is the optional body of CreateOrder.
type createOrderRequest struct {
	Items     []cart.LineItem
	HasItems  bool
	Total     decimal.Decimal
	HasTotal  bool
	ClearCart bool
}

// ListOrders returns the session's orders, most recent first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	s := h.open(w, r)

	var e jx.Encoder
	e.ArrStart()
	for _, o := range s.Orders() {
		cart.EncodeOrder(&e, o)
	}
	e.ArrEnd()
	respondRaw(w, http.StatusOK, e.Bytes())
}

// CreateOrder records an order. Items and total default to the current
// cart; when only items are given the total is their sum. With "clearCart"
// set the cart is emptied after the order is recorded.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := decodeCreateOrder(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	s := h.open(w, r)

	items := req.Items
	if !req.HasItems {
		items = s.Items()
	}
	if len(items) == 0 {
		respondError(w, http.StatusBadRequest, "order has no items")
		return
	}
	total := req.Total
	if !req.HasTotal {
		total = cart.Total(cart.State{Items: items})
	}

	o := s.CreateOrder(ctx, items, total)
	if req.ClearCart {
		s.ClearCart(ctx)
	}

	var e jx.Encoder
	cart.EncodeOrder(&e, o)
	respondRaw(w, http.StatusCreated, e.Bytes())
}

func decodeCreateOrder(body []byte) (createOrderRequest, error) {
	var req createOrderRequest
	if len(body) == 0 {
		return req, nil
	}
	if err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "items":
			items, err := cart.DecodeLineItems(d)
			if err != nil {
				return errors.Wrap(err, "items")
			}
			req.Items, req.HasItems = items, true
		case "total":
			total, err := cart.DecodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "total")
			}
			req.Total, req.HasTotal = total, true
		case "clearCart":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "clearCart")
			}
			req.ClearCart = v
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return req, errors.Wrap(err, "invalid JSON body")
	}
	if req.HasTotal && req.Total.IsNegative() {
		return req, errors.New("total must not be negative")
	}
	return req, nil
}
