package executor

import (
	"strconv"

	"github.com/hyperlicked/invisible-core/pkg/matching"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// impactNotional is the fixed notional used to sample a book's impact
// price for the minute-level funding step (spec §4.3.7
// "per_minute_funding_updates accumulates impact_prices from the order
// books").
const impactNotional = 1_000 * priceUnit

// fundingRateScale is the fixed-point denominator a funding rate premium
// is expressed in (parts per priceUnit), matching applyFunding's
// rate*size/price accrual in perp_swap.go.
const fundingRateScale = priceUnit

// FundingUpdateInput is one minute-level oracle step across every
// perpetual market with a live order book.
type FundingUpdateInput struct {
	Books map[uint32]*matching.OrderBook // synthetic token -> its perp book
}

type FundingUpdateResult struct {
	Rates  map[uint32]int64
	Prices map[uint32]uint64
}

// PerMinuteFundingUpdate derives one (rate, price) observation per
// synthetic token from its book's bid/ask impact prices and appends it to
// the funding series (spec §4.3.7).
func PerMinuteFundingUpdate(m *state.Model, in FundingUpdateInput) (*FundingUpdateResult, *witness.Record, error) {
	if len(in.Books) == 0 {
		return nil, nil, validationErr("funding update requires at least one book")
	}

	rates := make(map[uint32]int64, len(in.Books))
	prices := make(map[uint32]uint64, len(in.Books))
	for token, book := range in.Books {
		bidImpact := book.ImpactPrice(matching.Bid, impactNotional)
		askImpact := book.ImpactPrice(matching.Ask, impactNotional)
		mid := book.GetMidPrice()
		if mid == 0 {
			continue
		}
		premium := int64(bidImpact+askImpact)/2 - int64(mid)
		rates[token] = premium * fundingRateScale / int64(mid)
		prices[token] = mid
	}

	m.Funding.ApplyFundingUpdate(rates, prices)

	rec := witness.NewRecord("funding_update")
	rec.SetUint("current_funding_idx", m.Funding.CurrentFundingIdx())
	for token, r := range rates {
		rec.Set(tokenKey(token, "rate"), strconv.FormatInt(r, 10))
	}
	for token, p := range prices {
		rec.SetUint(tokenKey(token, "price"), p)
	}
	return &FundingUpdateResult{Rates: rates, Prices: prices}, rec, nil
}

func tokenKey(token uint32, field string) string {
	return "token_" + strconv.FormatUint(uint64(token), 10) + "_" + field
}
