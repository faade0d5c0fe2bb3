package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xenking/citricloud-cart/internal/domain/cart"
	"github.com/xenking/citricloud-cart/internal/session"
	"github.com/xenking/citricloud-cart/internal/storage/cookie"
	"github.com/xenking/citricloud-cart/internal/storage/memory"
)

// --- Mock implementations ---

// staticResolver sends every request to the same slot.
type staticResolver struct {
	storage cart.Storage
	key     string
}

func (s staticResolver) Resolve(http.ResponseWriter, *http.Request) (cart.Storage, string) {
	return s.storage, s.key
}

// --- Helpers ---

const mugJSON = `{"id":1,"slug":"mug","name":"Mug","price":9.99,"image":"/img/mug.png","category":"kitchen"}`

func newTestServer(t *testing.T, subs ...cart.Subscriber) (http.Handler, *memory.Storage) {
	t.Helper()
	storage := memory.New(cart.DefaultTTL)
	h := NewHandler(Config{
		TaxRate:      cart.DefaultTaxRate,
		StoreOptions: []cart.Option{cart.WithClock(func() time.Time { return time.UnixMilli(1773500966535) })},
	}, staticResolver{storage: storage, key: "cart"}, subs...)
	return h.Routes(), storage
}

func do(t *testing.T, h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

// cartView is the part of the cart response the tests look at.
type cartView struct {
	ItemIDs    []int64
	Quantities []int
	Orders     int
	Total      string
	ItemCount  int
	GrandTotal string
}

func parseCart(t *testing.T, body []byte) cartView {
	t.Helper()
	var v cartView
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "items":
			items, err := cart.DecodeLineItems(d)
			if err != nil {
				return err
			}
			for _, it := range items {
				v.ItemIDs = append(v.ItemIDs, it.ID)
				v.Quantities = append(v.Quantities, it.Quantity)
			}
		case "orders":
			return d.Arr(func(d *jx.Decoder) error {
				v.Orders++
				return d.Skip()
			})
		case "total":
			n, err := d.Num()
			if err != nil {
				return err
			}
			v.Total = string(n)
		case "itemCount":
			n, err := d.Int()
			if err != nil {
				return err
			}
			v.ItemCount = n
		case "summary":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				if string(key) != "grandTotal" {
					return d.Skip()
				}
				n, err := d.Num()
				if err != nil {
					return err
				}
				v.GrandTotal = string(n)
				return nil
			})
		default:
			return d.Skip()
		}
		return nil
	})
	require.NoError(t, err, string(body))
	return v
}

func parseOrder(t *testing.T, body []byte) cart.Order {
	t.Helper()
	o, err := cart.DecodeOrder(jx.DecodeBytes(body))
	require.NoError(t, err, string(body))
	return o
}

// --- Tests ---

func TestGetCart_Empty(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	v := parseCart(t, w.Body.Bytes())
	assert.Empty(t, v.ItemIDs)
	assert.Equal(t, 0, v.Orders)
	assert.Equal(t, "0", v.Total)
	assert.Equal(t, 0, v.ItemCount)
}

func TestAddItem_MergesAndPersists(t *testing.T) {
	h, storage := newTestServer(t)

	w := do(t, h, http.MethodPost, "/cart/items", mugJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, h, http.MethodPost, "/cart/items", strings.TrimSuffix(mugJSON, "}")+`,"quantity":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	v := parseCart(t, w.Body.Bytes())
	assert.Equal(t, []int64{1}, v.ItemIDs)
	assert.Equal(t, []int{3}, v.Quantities)
	assert.Equal(t, "29.97", v.Total)
	assert.Equal(t, 3, v.ItemCount)
	assert.Equal(t, "36.26", v.GrandTotal)

	raw, ok, err := storage.GetItem(context.Background(), "cart")
	require.NoError(t, err)
	require.True(t, ok)
	st, err := cart.Unmarshal([]byte(raw))
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	assert.Equal(t, 3, st.Items[0].Quantity)
}

func TestAddItem_BadRequest(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"id":`},
		{name: "missing id", body: `{"name":"Mug","price":1}`},
		{name: "negative price", body: `{"id":1,"price":-1}`},
		{name: "negative quantity", body: `{"id":1,"price":1,"quantity":-2}`},
		{name: "not an object", body: `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/cart/items", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"code":400`)
		})
	}
}

func TestAddItem_QuantityLimit(t *testing.T) {
	h, storage := newTestServer(t)

	w := do(t, h, http.MethodPost, "/cart/items", `{"id":1,"price":9.99,"quantity":9999}`)
	require.Equal(t, http.StatusOK, w.Code)

	for _, qty := range []string{"10000", "9223372036854775807"} {
		w = do(t, h, http.MethodPost, "/cart/items", `{"id":1,"price":9.99,"quantity":`+qty+`}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, qty)
		assert.Contains(t, w.Body.String(), "at most 9999")

		w = do(t, h, http.MethodPut, "/cart/items/1", `{"quantity":`+qty+`}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, qty)
	}

	got := parseCart(t, do(t, h, http.MethodGet, "/cart", "").Body.Bytes())
	assert.Equal(t, []int{9999}, got.Quantities)
	assert.Equal(t, 9999, got.ItemCount)

	raw, ok, err := storage.GetItem(context.Background(), "cart")
	require.NoError(t, err)
	require.True(t, ok)
	st, err := cart.Unmarshal([]byte(raw))
	require.NoError(t, err)
	require.Len(t, st.Items, 1)
	assert.Equal(t, 9999, st.Items[0].Quantity)
}

func TestUpdateQuantity(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/cart/items", mugJSON)

	w := do(t, h, http.MethodPut, "/cart/items/1", `{"quantity":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{5}, parseCart(t, w.Body.Bytes()).Quantities)

	w = do(t, h, http.MethodPut, "/cart/items/1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, parseCart(t, w.Body.Bytes()).ItemIDs)

	w = do(t, h, http.MethodPut, "/cart/items/abc", `{"quantity":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPut, "/cart/items/1", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveItem_UnknownIsNoop(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/cart/items", mugJSON)

	w := do(t, h, http.MethodDelete, "/cart/items/42", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{1}, parseCart(t, w.Body.Bytes()).ItemIDs)

	w = do(t, h, http.MethodDelete, "/cart/items/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, parseCart(t, w.Body.Bytes()).ItemIDs)
}

func TestCreateOrder_FromCartThenClear(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/cart/items", mugJSON)

	w := do(t, h, http.MethodPost, "/orders", `{"clearCart":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	o := parseOrder(t, w.Body.Bytes())
	assert.Regexp(t, `^ORD-1773500966535-[0-9A-Z]{9}$`, o.OrderNumber)
	assert.Equal(t, cart.StatusCompleted, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("9.99")))
	require.Len(t, o.Items, 1)
	require.NotNil(t, o.Invoice)
	assert.Equal(t, cart.DefaultInvoiceURLPrefix+o.Invoice.InvoiceNumber+".pdf", o.Invoice.DownloadURL)

	v := parseCart(t, do(t, h, http.MethodGet, "/cart", "").Body.Bytes())
	assert.Empty(t, v.ItemIDs)
	assert.Equal(t, 1, v.Orders)
}

func TestCreateOrder_ExplicitItemsKeepCart(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/cart/items", mugJSON)

	body := `{"items":[{"id":7,"slug":"pen","name":"Pen","price":2.5,"image":"","category":"office","quantity":2}],"total":6.05}`
	w := do(t, h, http.MethodPost, "/orders", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	o := parseOrder(t, w.Body.Bytes())
	assert.True(t, o.Total.Equal(decimal.RequireFromString("6.05")))
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(7), o.Items[0].ID)

	v := parseCart(t, do(t, h, http.MethodGet, "/cart", "").Body.Bytes())
	assert.Equal(t, []int64{1}, v.ItemIDs)
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	h, _ := newTestServer(t)

	w := do(t, h, http.MethodPost, "/orders", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListOrders_MostRecentFirst(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/cart/items", mugJSON)
	first := parseOrder(t, do(t, h, http.MethodPost, "/orders", "").Body.Bytes())
	second := parseOrder(t, do(t, h, http.MethodPost, "/orders", "").Body.Bytes())

	w := do(t, h, http.MethodGet, "/orders", "")
	require.Equal(t, http.StatusOK, w.Code)

	var ids []string
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Arr(func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "id" {
				return d.Skip()
			}
			id, err := d.Str()
			ids = append(ids, id)
			return err
		})
	}))
	assert.Equal(t, []string{second.ID, first.ID}, ids)
}

func TestClearCart_KeepsOrders(t *testing.T) {
	h, _ := newTestServer(t)
	do(t, h, http.MethodPost, "/cart/items", mugJSON)
	do(t, h, http.MethodPost, "/orders", "")

	w := do(t, h, http.MethodDelete, "/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	v := parseCart(t, w.Body.Bytes())
	assert.Empty(t, v.ItemIDs)
	assert.Equal(t, 1, v.Orders)
}

func TestCookieSession_RoundTrip(t *testing.T) {
	h := NewHandler(Config{TaxRate: cart.DefaultTaxRate},
		session.NewCookieResolver(cart.DefaultStorageKey, cookie.Options{Scope: cookie.ScopeParentDomain}),
	).Routes()

	r := httptest.NewRequest(http.MethodPost, "https://shop.citricloud.com/cart/items", strings.NewReader(mugJSON))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var stored *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cart.DefaultStorageKey {
			stored = c
		}
	}
	require.NotNil(t, stored)
	assert.Equal(t, "citricloud.com", stored.Domain)

	// Another subdomain sends the same cookie back.
	r = httptest.NewRequest(http.MethodGet, "https://dashboard.citricloud.com/cart", nil)
	r.AddCookie(&http.Cookie{Name: stored.Name, Value: stored.Value})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{1}, parseCart(t, w.Body.Bytes()).ItemIDs)
}

func TestOperationCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	counter, err := OperationCounter(provider.Meter("test"))
	require.NoError(t, err)

	h, _ := newTestServer(t, counter)
	do(t, h, http.MethodPost, "/cart/items", mugJSON)
	do(t, h, http.MethodPost, "/cart/items", mugJSON)
	do(t, h, http.MethodDelete, "/cart", "")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, "cart.operations", m.Name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		op, _ := dp.Attributes.Value("op")
		counts[op.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{
		string(cart.OpAddItem):   2,
		string(cart.OpClearCart): 1,
	}, counts)
}
