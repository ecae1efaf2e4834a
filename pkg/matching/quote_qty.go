package matching

import "math/big"

// PriceDecimals is the fixed-point base every price in this package is
// expressed in, matching entities.priceFromSpentReceived's scale.
const PriceDecimals = 8

// cent is the rounding granularity for quote-qty derivation (spec §4.2.2
// "round the quote-qty up to the nearest cent (1e4 units)").
const cent = 10_000

// deriveBaseQtyFromQuote converts a market-bid's quote-qty into the base
// qty to match against the ask book, given the ask's rounded price (spec
// §4.2.2): quote_qty * 10^(base_dec+price_dec-quote_dec) / price.
func deriveBaseQtyFromQuote(quoteQty uint64, price uint64, baseDec, quoteDec uint8) uint64 {
	if price == 0 {
		return 0
	}
	exp := int64(baseDec) + PriceDecimals - int64(quoteDec)
	scale := pow10(exp)
	num := new(big.Int).Mul(new(big.Int).SetUint64(quoteQty), scale)
	return new(big.Int).Div(num, new(big.Int).SetUint64(price)).Uint64()
}

// roundQuoteQty rounds the remaining quote-qty to the book's cent
// granularity: bids round up (never under-spend the taker's quote budget
// on the next iteration), asks round down.
func roundQuoteQty(side Side, quoteQty uint64) uint64 {
	if side == Bid {
		return ((quoteQty + cent - 1) / cent) * cent
	}
	return (quoteQty / cent) * cent
}

func pow10(exp int64) *big.Int {
	if exp < 0 {
		// not expected in practice (decimal tables keep this non-negative);
		// fall back to 1 to avoid a negative exponent panic.
		return big.NewInt(1)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)
}

// deriveAmendedAmount recomputes the amount held on the non-fixed side of
// an order so that fixedAmount / result == newPrice, at PriceDecimals
// fixed point. Both bid and ask amendments call this one helper (spec §9
// "either side should use the same derivation keyed by which amount is
// held fixed" — the source instead called two diverging helpers).
func deriveAmendedAmount(fixedAmount uint64, newPrice uint64, fixedDec, resultDec uint8) uint64 {
	if newPrice == 0 {
		return 0
	}
	exp := int64(resultDec) + PriceDecimals - int64(fixedDec)
	scale := pow10(exp)
	num := new(big.Int).Mul(new(big.Int).SetUint64(fixedAmount), scale)
	return new(big.Int).Div(num, new(big.Int).SetUint64(newPrice)).Uint64()
}
