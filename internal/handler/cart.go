package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

// GetCart returns the cart of the session.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s := h.open(w, r)
	h.respondCart(w, http.StatusOK, s)
}

// AddItem adds a product to the cart. The body is the product with an
// optional "quantity" between 1 and maxQuantity (default 1).
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	ref, qty, err := cart.DecodeProductRef(jx.DecodeBytes(body))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateRef(ref); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if qty < 0 {
		respondError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	if qty > maxQuantity {
		respondError(w, http.StatusBadRequest, "quantity must be at most "+strconv.Itoa(maxQuantity))
		return
	}
	if qty == 0 {
		qty = 1
	}

	s := h.open(w, r)
	s.AddItems(r.Context(), ref, qty)
	h.respondCart(w, http.StatusOK, s)
}

// UpdateQuantity sets the quantity of a line item. Zero or less removes it.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	qty, err := decodeQuantity(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if qty > maxQuantity {
		respondError(w, http.StatusBadRequest, "quantity must be at most "+strconv.Itoa(maxQuantity))
		return
	}

	s := h.open(w, r)
	s.UpdateQuantity(r.Context(), id, qty)
	h.respondCart(w, http.StatusOK, s)
}

// RemoveItem drops a line item. Unknown ids leave the cart unchanged.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	s := h.open(w, r)
	s.RemoveItem(r.Context(), id)
	h.respondCart(w, http.StatusOK, s)
}

// ClearCart empties the cart. Orders are kept.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s := h.open(w, r)
	s.ClearCart(r.Context())
	h.respondCart(w, http.StatusOK, s)
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

func validateRef(ref cart.ProductRef) error {
	if ref.ID == 0 {
		return errors.New("id is required")
	}
	if ref.Price.IsNegative() {
		return errors.New("price must not be negative")
	}
	if ref.OriginalPrice != nil && ref.OriginalPrice.IsNegative() {
		return errors.New("originalPrice must not be negative")
	}
	return nil
}

func decodeQuantity(body []byte) (int, error) {
	var (
		qty int
		set bool
	)
	if err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		if err != nil {
			return err
		}
		qty, set = v, true
		return nil
	}); err != nil {
		return 0, errors.New("invalid JSON body")
	}
	if !set {
		return 0, errors.New("quantity is required")
	}
	return qty, nil
}
