package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
)

// respondCart writes the cart snapshot with derived totals:
//
//	{"items":[...],"orders":[...],"total":n,"itemCount":n,"summary":{...}}
func (h *Handler) respondCart(w http.ResponseWriter, status int, s *cart.Store) {
	st := s.State()
	total := cart.Total(st)
	sum := cart.Summarize(total, h.taxRate)

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	cart.EncodeLineItems(&e, st.Items)
	e.FieldStart("orders")
	e.ArrStart()
	for _, o := range st.Orders {
		cart.EncodeOrder(&e, o)
	}
	e.ArrEnd()
	e.FieldStart("total")
	cart.EncodeDecimal(&e, total)
	e.FieldStart("itemCount")
	e.Int(cart.ItemCount(st))
	e.FieldStart("summary")
	e.ObjStart()
	e.FieldStart("subtotal")
	cart.EncodeDecimal(&e, sum.Subtotal)
	e.FieldStart("tax")
	cart.EncodeDecimal(&e, sum.Tax)
	e.FieldStart("grandTotal")
	cart.EncodeDecimal(&e, sum.GrandTotal)
	e.ObjEnd()
	e.ObjEnd()
	respondRaw(w, status, e.Bytes())
}

// respondError writes {"code":status,"message":msg}.
func respondError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	respondRaw(w, status, e.Bytes())
}

func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// readBody reads at most maxBodySize bytes, answering 400 on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		zctx.From(r.Context()).Debug("Read request body", zap.Error(err))
		respondError(w, http.StatusBadRequest, "unreadable request body")
		return nil, false
	}
	return body, true
}
