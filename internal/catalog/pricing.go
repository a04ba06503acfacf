package catalog

import "github.com/shopspring/decimal"

// Pricing holds the display-currency conversion rate and the sales tax rate.
// Defaults match the reference deployment: 1 USD = 6.96 Bs, 18% IGV.
type Pricing struct {
	ExchangeRate decimal.Decimal
	TaxRate      decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		ExchangeRate: decimal.NewFromFloat(6.96),
		TaxRate:      decimal.NewFromFloat(0.18),
	}
}

// Tax returns the IGV amount for a net subtotal, rounded to cents.
func (p Pricing) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(p.TaxRate).Round(2)
}

// Convert converts a USD amount into the display currency (Bs), rounded to cents.
func (p Pricing) Convert(usd decimal.Decimal) decimal.Decimal {
	return usd.Mul(p.ExchangeRate).Round(2)
}
