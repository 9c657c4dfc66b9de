/*
Package billing resolves what a completed period is worth.

PURPOSE:
  Pure money arithmetic for the billing trigger: which configured amount
  wins, how tax is computed, and how invoice numbers are formatted. The
  decision of WHEN to bill lives in the obligation package; this package
  only answers "for how much".

AMOUNT RESOLUTION ORDER:
  period override -> work billing_amount -> service default price.
  First non-nil positive value wins. If none resolves, the period is simply
  not billed; that is a skip, not a failure.

PRECISION:
  decimal.Decimal throughout. Tax is rounded to 2 decimals with bankers-free
  half-up rounding (decimal.Round), total = amount + tax.
*/
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/obligation-engine/engine"
)

// =============================================================================
// AMOUNT RESOLUTION
// =============================================================================

// ResolveAmount picks the effective billing amount for a period.
// Returns engine.ErrNoBillableAmount when nothing positive is configured.
func ResolveAmount(periodOverride, workAmount, serviceDefault *decimal.Decimal) (decimal.Decimal, error) {
	for _, candidate := range []*decimal.Decimal{periodOverride, workAmount, serviceDefault} {
		if candidate != nil && candidate.IsPositive() {
			return *candidate, nil
		}
	}
	return decimal.Zero, engine.ErrNoBillableAmount
}

// ComputeTax returns amount * rate% rounded to 2 decimals.
func ComputeTax(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(2)
}

// Quote is a fully priced invoice line for one period.
type Quote struct {
	Amount decimal.Decimal
	Tax    decimal.Decimal
	Total  decimal.Decimal
}

// QuoteFor prices a period given the resolution inputs and the service tax
// rate (percent). Returns engine.ErrNoBillableAmount when unbillable.
func QuoteFor(periodOverride, workAmount, serviceDefault *decimal.Decimal, taxRatePercent decimal.Decimal) (Quote, error) {
	amount, err := ResolveAmount(periodOverride, workAmount, serviceDefault)
	if err != nil {
		return Quote{}, err
	}
	tax := ComputeTax(amount, taxRatePercent)
	return Quote{Amount: amount, Tax: tax, Total: amount.Add(tax).Round(2)}, nil
}

// =============================================================================
// INVOICE NUMBERING
// =============================================================================

// NumberPolicy formats sequential invoice numbers. The policy (prefix,
// padding, starting number) is an external configuration collaborator; the
// engine only consumes it.
type NumberPolicy struct {
	Prefix  string
	Padding int
	Start   int
}

// DefaultNumberPolicy matches the common "INV-0001" shape.
func DefaultNumberPolicy() NumberPolicy {
	return NumberPolicy{Prefix: "INV-", Padding: 4, Start: 1}
}

// Format renders the nth issued invoice number (n is 1-based within the
// sequence, offset by the configured start).
func (p NumberPolicy) Format(n int) string {
	seq := p.Start + n - 1
	if p.Padding > 0 {
		return fmt.Sprintf("%s%0*d", p.Prefix, p.Padding, seq)
	}
	return fmt.Sprintf("%s%d", p.Prefix, seq)
}
