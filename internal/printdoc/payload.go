package printdoc

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payload is the normalized input of a receipt or Day/Z print. It lives only
// for the duration of one print action.
type Payload struct {
	Store   Store
	Meta    Meta
	Items   []Item
	Sales   Sales
	Pay     []Line
	Tax     []TaxLine
	Cashout Cashout
	Groups  []Group
}

// Meta identifies the printed transaction or shift.
type Meta struct {
	Title    string
	Number   string
	Date     time.Time
	From     time.Time
	To       time.Time
	Cashier  string
	Terminal string
	Customer string
	Footer   string
}

// Item is one sold line.
type Item struct {
	Code     string
	Name     string
	Qty      decimal.Decimal
	Price    decimal.Decimal
	Discount decimal.Decimal
	VAT      decimal.Decimal
	Amount   decimal.Decimal
}

// Sales summarizes the money of a receipt or shift.
type Sales struct {
	Count    int
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Returns  decimal.Decimal
	Net      decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Change   decimal.Decimal
}

// Line is a labelled amount, such as a payment method total.
type Line struct {
	Label  string
	Count  int
	Amount decimal.Decimal
}

// TaxLine is one VAT bucket.
type TaxLine struct {
	Label   string
	Rate    decimal.Decimal
	Taxable decimal.Decimal
	VAT     decimal.Decimal
}

// Cashout is the drawer reconciliation of a shift.
type Cashout struct {
	Opening   decimal.Decimal
	CashSales decimal.Decimal
	PaidIn    decimal.Decimal
	PaidOut   decimal.Decimal
	Expected  decimal.Decimal
	Counted   decimal.Decimal
	HasCount  bool
}

// Variance is counted minus expected cash.
func (c Cashout) Variance() decimal.Decimal {
	return c.Counted.Sub(c.Expected)
}

// IsZero reports whether the drawer section carries nothing to print.
func (c Cashout) IsZero() bool {
	return !c.HasCount && c.Opening.IsZero() && c.CashSales.IsZero() &&
		c.PaidIn.IsZero() && c.PaidOut.IsZero() && c.Expected.IsZero()
}

// Group is a named breakdown such as sales per category.
type Group struct {
	Name  string
	Lines []Line
}
