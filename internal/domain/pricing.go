package domain

import "math"

// LineAmounts is the priced form of one cart line, all in cents.
type LineAmounts struct {
	SubtotalCents int64
	TaxCents      int64
	DiscountCents int64
	TotalCents    int64
}

// PriceLine computes subtotal, tax and total for one line. Subtotal and
// tax are rounded half away from zero to the cent independently.
func PriceLine(unitPriceCents int64, quantity float64, taxRate float64, discountCents int64) LineAmounts {
	subtotal := int64(math.Round(float64(unitPriceCents) * quantity))
	tax := int64(math.Round(float64(subtotal) * taxRate))
	return LineAmounts{
		SubtotalCents: subtotal,
		TaxCents:      tax,
		DiscountCents: discountCents,
		TotalCents:    subtotal + tax - discountCents,
	}
}

type SaleTotals struct {
	SubtotalCents int64
	TaxCents      int64
	DiscountCents int64
	TotalCents    int64
}

func (t *SaleTotals) Add(line LineAmounts) {
	t.SubtotalCents += line.SubtotalCents
	t.TaxCents += line.TaxCents
	t.DiscountCents += line.DiscountCents
	t.TotalCents = t.SubtotalCents + t.TaxCents - t.DiscountCents
}

func ChangeDue(amountReceivedCents int64, totalCents int64) int64 {
	if amountReceivedCents <= totalCents {
		return 0
	}
	return amountReceivedCents - totalCents
}

// StockUnits is the whole number of stock units a line quantity consumes.
// Fractional quantities truncate toward zero, so 1.5 kg moves one unit.
func StockUnits(quantity float64) int {
	return int(quantity)
}

func IsWholeQuantity(quantity float64) bool {
	return quantity == math.Trunc(quantity)
}
