package cart

import "github.com/shopspring/decimal"

// DefaultTaxRate is the VAT rate applied on the cart and checkout pages.
var DefaultTaxRate = decimal.RequireFromString("0.21")

// Summary holds the checkout totals shown for a cart.
type Summary struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

// Summarize computes tax and grand total for subtotal, rounded to cents.
func Summarize(subtotal, taxRate decimal.Decimal) Summary {
	tax := subtotal.Mul(taxRate).Round(2)
	return Summary{
		Subtotal:   subtotal.Round(2),
		Tax:        tax,
		GrandTotal: subtotal.Round(2).Add(tax),
	}
}
