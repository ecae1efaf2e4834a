package executor

import (
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// IndexPriceUpdateInput is one oracle push of the latest index price per
// synthetic token (spec §6.4 "latest_index_price").
type IndexPriceUpdateInput struct {
	Prices map[uint32]uint64
}

// IndexPriceUpdate records a fresh oracle observation per synthetic token,
// used by liquidation checks and order-tab slippage guards.
func IndexPriceUpdate(m *state.Model, in IndexPriceUpdateInput) (*witness.Record, error) {
	if len(in.Prices) == 0 {
		return nil, validationErr("index price update requires at least one price")
	}
	for token, price := range in.Prices {
		m.IndexPrices.Update(token, price)
	}

	rec := witness.NewRecord("index_price_update")
	for token, price := range in.Prices {
		rec.SetUint(tokenKey(token, "index_price"), price)
	}
	return rec, nil
}
