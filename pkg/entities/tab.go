package entities

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

// TabHeader is the immutable half of an order tab: everything about a
// market-maker vault that never changes across its lifetime (spec §3
// "Order Tab").
type TabHeader struct {
	IsPerp           bool
	IsSmartContract  bool
	BaseToken        uint32
	QuoteToken       uint32
	BaseBlinding     *big.Int
	QuoteBlinding    *big.Int
	VLPToken         uint32
	PubKey           common.Address
}

func (h TabHeader) hash() crypto.Hash {
	isPerp, isSC := uint64(0), uint64(0)
	if h.IsPerp {
		isPerp = 1
	}
	if h.IsSmartContract {
		isSC = 1
	}
	baseBlind, quoteBlind := h.BaseBlinding, h.QuoteBlinding
	if baseBlind == nil {
		baseBlind = new(big.Int)
	}
	if quoteBlind == nil {
		quoteBlind = new(big.Int)
	}
	return crypto.H(
		new(big.Int).SetUint64(isPerp),
		new(big.Int).SetUint64(isSC),
		new(big.Int).SetUint64(uint64(h.BaseToken)),
		new(big.Int).SetUint64(uint64(h.QuoteToken)),
		baseBlind,
		quoteBlind,
		new(big.Int).SetUint64(uint64(h.VLPToken)),
		new(big.Int).SetBytes(h.PubKey.Bytes()),
	)
}

// OrderTab is a market-maker vault holding paired base/quote balances,
// living in the order-tabs tree at TabIdx (spec §3).
type OrderTab struct {
	TabIdx     uint64
	Header     TabHeader
	BaseAmount uint64
	QuoteAmount uint64
	VLPSupply  uint64
}

func (t OrderTab) IsEmpty() bool {
	return t.BaseAmount == 0 && t.QuoteAmount == 0 && t.VLPSupply == 0
}

// Hash binds the immutable header plus the mutable balances.
func (t OrderTab) Hash() crypto.Hash {
	if t.IsEmpty() {
		return crypto.Zero
	}
	return crypto.H(
		t.Header.hash().Big(),
		new(big.Int).SetUint64(t.BaseAmount),
		new(big.Int).SetUint64(t.QuoteAmount),
		new(big.Int).SetUint64(t.VLPSupply),
	)
}

// Nominal returns the tab's total value at the given (caller-reported)
// index price: base*price + quote, used by add/remove liquidity (spec
// §4.3.5).
func (t OrderTab) Nominal(indexPrice uint64) uint64 {
	return t.BaseAmount*indexPrice + t.QuoteAmount
}
