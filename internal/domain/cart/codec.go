package cart

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Version is the envelope version written by Marshal. Payloads with another
// version are discarded on load.
const Version = 0

// dateLayout matches JavaScript's Date.prototype.toISOString.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrVersionMismatch is returned by Unmarshal for envelopes of another version.
var ErrVersionMismatch = errors.New("cart payload version mismatch")

// Marshal encodes st into the persisted envelope:
//
//	{"state":{"items":[...],"orders":[...]},"version":0}
func Marshal(st State) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("state")
	EncodeState(&e, st)
	e.FieldStart("version")
	e.Int(Version)
	e.ObjEnd()
	return e.Bytes()
}

// Unmarshal decodes a persisted envelope. Unknown fields are ignored.
func Unmarshal(data []byte) (State, error) {
	var (
		st       = Empty()
		version  = Version
		hasState bool
	)
	d := jx.DecodeBytes(data)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "state":
			hasState = true
			return decodeState(d, &st)
		case "version":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "version")
			}
			version = v
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return Empty(), errors.Wrap(err, "decode cart payload")
	}
	if version != Version {
		return Empty(), errors.Wrapf(ErrVersionMismatch, "got %d, want %d", version, Version)
	}
	if !hasState {
		return Empty(), errors.New("decode cart payload: missing state")
	}
	return st, nil
}

// EncodeState writes {"items":[...],"orders":[...]}.
func EncodeState(e *jx.Encoder, st State) {
	e.ObjStart()
	e.FieldStart("items")
	EncodeLineItems(e, st.Items)
	e.FieldStart("orders")
	e.ArrStart()
	for _, o := range st.Orders {
		EncodeOrder(e, o)
	}
	e.ArrEnd()
	e.ObjEnd()
}

// EncodeLineItems writes a JSON array of line items; nil encodes as [].
func EncodeLineItems(e *jx.Encoder, items []LineItem) {
	e.ArrStart()
	for _, it := range items {
		EncodeLineItem(e, it)
	}
	e.ArrEnd()
}

// EncodeLineItem writes one line item with camelCase field names.
func EncodeLineItem(e *jx.Encoder, it LineItem) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(it.ID)
	e.FieldStart("slug")
	e.Str(it.Slug)
	e.FieldStart("name")
	e.Str(it.Name)
	e.FieldStart("price")
	EncodeDecimal(e, it.Price)
	if it.OriginalPrice != nil {
		e.FieldStart("originalPrice")
		EncodeDecimal(e, *it.OriginalPrice)
	}
	e.FieldStart("image")
	e.Str(it.Image)
	e.FieldStart("category")
	e.Str(it.Category)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	e.ObjEnd()
}

// EncodeOrder writes one order.
func EncodeOrder(e *jx.Encoder, o Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("orderNumber")
	e.Str(o.OrderNumber)
	e.FieldStart("date")
	e.Str(o.Date.UTC().Format(dateLayout))
	e.FieldStart("total")
	EncodeDecimal(e, o.Total)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("items")
	EncodeLineItems(e, o.Items)
	if o.Invoice != nil {
		e.FieldStart("invoice")
		e.ObjStart()
		e.FieldStart("invoiceNumber")
		e.Str(o.Invoice.InvoiceNumber)
		e.FieldStart("downloadUrl")
		e.Str(o.Invoice.DownloadURL)
		e.ObjEnd()
	}
	e.ObjEnd()
}

// EncodeDecimal writes v as a JSON number.
func EncodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func decodeState(d *jx.Decoder, st *State) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "items":
			items, err := DecodeLineItems(d)
			if err != nil {
				return errors.Wrap(err, "items")
			}
			st.Items = items
			return nil
		case "orders":
			orders := []Order{}
			if err := d.Arr(func(d *jx.Decoder) error {
				o, err := DecodeOrder(d)
				if err != nil {
					return err
				}
				orders = append(orders, o)
				return nil
			}); err != nil {
				return errors.Wrap(err, "orders")
			}
			st.Orders = orders
			return nil
		default:
			return d.Skip()
		}
	})
}

// DecodeLineItems reads a JSON array of line items. Entries with a
// non-positive quantity are dropped.
func DecodeLineItems(d *jx.Decoder) ([]LineItem, error) {
	items := []LineItem{}
	if err := d.Arr(func(d *jx.Decoder) error {
		it, err := decodeLineItem(d)
		if err != nil {
			return err
		}
		if it.Quantity > 0 {
			items = append(items, it)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeLineItem(d *jx.Decoder) (LineItem, error) {
	var it LineItem
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "quantity" {
			q, err := decodeInt64(d)
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			it.Quantity = int(q)
			return nil
		}
		return decodeProductField(d, key, &it.ID, &it.Slug, &it.Name, &it.Category, &it.Image, &it.Price, &it.OriginalPrice)
	})
	return it, err
}

// DecodeProductRef reads a product object. The returned quantity is the
// optional "quantity" field, zero when absent.
func DecodeProductRef(d *jx.Decoder) (ProductRef, int, error) {
	var (
		ref ProductRef
		qty int
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "quantity" {
			q, err := decodeInt64(d)
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			qty = int(q)
			return nil
		}
		return decodeProductField(d, key, &ref.ID, &ref.Slug, &ref.Name, &ref.Category, &ref.Image, &ref.Price, &ref.OriginalPrice)
	})
	return ref, qty, err
}

func decodeProductField(
	d *jx.Decoder,
	key []byte,
	id *int64,
	slug, name, category, image *string,
	price *decimal.Decimal,
	originalPrice **decimal.Decimal,
) error {
	var err error
	switch string(key) {
	case "id":
		*id, err = decodeInt64(d)
	case "slug":
		*slug, err = decodeOptStr(d)
	case "name":
		*name, err = decodeOptStr(d)
	case "category":
		*category, err = decodeOptStr(d)
	case "image":
		*image, err = decodeOptStr(d)
	case "price":
		*price, err = DecodeDecimal(d)
	case "originalPrice":
		if d.Next() == jx.Null {
			return d.Null()
		}
		var v decimal.Decimal
		v, err = DecodeDecimal(d)
		*originalPrice = &v
	default:
		return d.Skip()
	}
	if err != nil {
		return errors.Wrap(err, string(key))
	}
	return nil
}

// DecodeOrder reads one order object. Unknown fields are skipped.
func DecodeOrder(d *jx.Decoder) (Order, error) {
	var o Order
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			o.ID, err = decodeOptStr(d)
		case "orderNumber":
			o.OrderNumber, err = decodeOptStr(d)
		case "date":
			var s string
			if s, err = d.Str(); err == nil {
				o.Date, err = time.Parse(time.RFC3339Nano, s)
			}
		case "total":
			o.Total, err = DecodeDecimal(d)
		case "status":
			var s string
			if s, err = d.Str(); err == nil {
				o.Status = Status(s)
				if !o.Status.Valid() {
					err = errors.Errorf("unknown status %q", s)
				}
			}
		case "items":
			o.Items, err = DecodeLineItems(d)
		case "invoice":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var inv Invoice
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var err error
				switch string(key) {
				case "invoiceNumber":
					inv.InvoiceNumber, err = d.Str()
				case "downloadUrl":
					inv.DownloadURL, err = d.Str()
				default:
					return d.Skip()
				}
				return err
			})
			o.Invoice = &inv
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
	if err == nil && o.Items == nil {
		o.Items = []LineItem{}
	}
	return o, err
}

// DecodeDecimal reads a JSON number, or a string holding a number.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

func decodeInt64(d *jx.Decoder) (int64, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		return strconv.ParseInt(s, 10, 64)
	default:
		return d.Int64()
	}
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}
