package cart

import (
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frontendPayload is what the web shop stores in the cart cookie.
const frontendPayload = `{"state":{"items":[` +
	`{"id":3,"slug":"vps-small","name":"VPS Small","price":9.99,"originalPrice":14.99,"image":"/img/vps.png","category":"servers","quantity":2},` +
	`{"id":4,"slug":"domain","name":"Domain","price":"12.5","image":"/img/domain.png","category":"domains","quantity":1,"extra":true}` +
	`],"orders":[{"id":"1767225600000","orderNumber":"ORD-1767225600000-ABCDEFGHI","date":"2026-01-01T00:00:00.000Z",` +
	`"total":12.5,"status":"completed","items":[{"id":4,"slug":"domain","name":"Domain","price":12.5,"image":"","category":"domains","quantity":1}],` +
	`"invoice":{"invoiceNumber":"INV-1767225600000-JKLMNOPQR","downloadUrl":"/api/invoices/INV-1767225600000-JKLMNOPQR.pdf"}}]},"version":0}`

func TestUnmarshal_FrontendPayload(t *testing.T) {
	st, err := Unmarshal([]byte(frontendPayload))
	require.NoError(t, err)

	require.Len(t, st.Items, 2)
	assert.Equal(t, int64(3), st.Items[0].ID)
	assert.Equal(t, "vps-small", st.Items[0].Slug)
	assert.True(t, decimal.RequireFromString("9.99").Equal(st.Items[0].Price))
	require.NotNil(t, st.Items[0].OriginalPrice)
	assert.True(t, decimal.RequireFromString("14.99").Equal(*st.Items[0].OriginalPrice))
	assert.Equal(t, 2, st.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("12.5").Equal(st.Items[1].Price))
	assert.Nil(t, st.Items[1].OriginalPrice)

	require.Len(t, st.Orders, 1)
	o := st.Orders[0]
	assert.Equal(t, "1767225600000", o.ID)
	assert.Equal(t, StatusCompleted, o.Status)
	assert.True(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Equal(o.Date))
	require.NotNil(t, o.Invoice)
	assert.Equal(t, "/api/invoices/INV-1767225600000-JKLMNOPQR.pdf", o.Invoice.DownloadURL)
	assert.Len(t, o.Items, 1)

	assert.True(t, decimal.RequireFromString("32.48").Equal(Total(st)))
	assert.Equal(t, 3, ItemCount(st))
}

func TestMarshal_Format(t *testing.T) {
	st := AddItem(Empty(), ProductRef{
		ID:            1,
		Slug:          "s",
		Name:          "n",
		Category:      "c",
		Image:         "i",
		Price:         decimal.RequireFromString("10.5"),
		OriginalPrice: decimalPtr("12"),
	}, 2)

	want := `{"state":{"items":[{"id":1,"slug":"s","name":"n","price":10.5,"originalPrice":12,` +
		`"image":"i","category":"c","quantity":2}],"orders":[]},"version":0}`
	assert.Equal(t, want, string(Marshal(st)))
}

func TestMarshal_EmptyStateUsesArrays(t *testing.T) {
	assert.Equal(t, `{"state":{"items":[],"orders":[]},"version":0}`, string(Marshal(State{})))
}

func TestUnmarshal_DropsNonPositiveQuantities(t *testing.T) {
	st, err := Unmarshal([]byte(`{"state":{"items":[{"id":1,"price":1,"quantity":0},{"id":2,"price":1,"quantity":-1},{"id":3,"price":1,"quantity":1}]},"version":0}`))
	require.NoError(t, err)

	require.Len(t, st.Items, 1)
	assert.Equal(t, int64(3), st.Items[0].ID)
	assert.NotNil(t, st.Orders)
}

func TestUnmarshal_Errors(t *testing.T) {
	for _, tt := range []struct {
		name    string
		payload string
	}{
		{name: "NotJSON", payload: `cart`},
		{name: "Truncated", payload: `{"state":{"items":[`},
		{name: "MissingState", payload: `{"version":0}`},
		{name: "BadPrice", payload: `{"state":{"items":[{"id":1,"price":"ten","quantity":1}]},"version":0}`},
		{name: "BadStatus", payload: `{"state":{"orders":[{"id":"1","status":"shipped"}]},"version":0}`},
		{name: "BadDate", payload: `{"state":{"orders":[{"id":"1","date":"yesterday"}]},"version":0}`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestUnmarshal_VersionMismatch(t *testing.T) {
	_, err := Unmarshal([]byte(`{"state":{"items":[]},"version":1}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVersionMismatch))
}
