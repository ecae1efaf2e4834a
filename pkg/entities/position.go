package entities

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

// OrderSide mirrors spec §3's {Long, Short} for perpetual positions, and
// doubles as the matching engine's book side (spec §4.2 uses the same
// bid/ask duality).
type OrderSide int8

const (
	Long OrderSide = iota
	Short
)

func (s OrderSide) String() string {
	if s == Long {
		return "long"
	}
	return "short"
}

// Opposite returns the other side, used by perp-swap close/flip logic.
func (s OrderSide) Opposite() OrderSide {
	if s == Long {
		return Short
	}
	return Long
}

// Position is a perpetual futures position living in the perpetual tree at
// Index (spec §3 "Perpetual Position").
type Position struct {
	Index            uint64
	SyntheticToken   uint32
	CollateralToken  uint32
	PositionSize     uint64
	Side             OrderSide
	Margin           uint64
	EntryPrice       uint64
	LiquidationPrice uint64
	BankruptcyPrice  uint64
	LastFundingIdx   uint64
	PositionAddress  common.Address
	VLPSupply        uint64 // non-zero only for a smart-contract-MM position
}

// IsEmpty reports whether the position has been fully closed (zero leaf).
func (p Position) IsEmpty() bool {
	return p.PositionSize == 0
}

// Hash binds header, size, side, margin, entry price, liquidation price and
// funding index (spec §3 invariant: "hash == H(header, size, side, margin,
// entry_price, liq_price, funding_idx)").
func (p Position) Hash() crypto.Hash {
	if p.IsEmpty() {
		return crypto.Zero
	}
	header := headerHash(p.SyntheticToken, p.CollateralToken, p.PositionAddress)
	side := uint64(0)
	if p.Side == Short {
		side = 1
	}
	return crypto.H(
		header.Big(),
		new(big.Int).SetUint64(p.PositionSize),
		new(big.Int).SetUint64(side),
		new(big.Int).SetUint64(p.Margin),
		new(big.Int).SetUint64(p.EntryPrice),
		new(big.Int).SetUint64(p.LiquidationPrice),
		new(big.Int).SetUint64(p.LastFundingIdx),
	)
}

func headerHash(synthetic, collateral uint32, addr common.Address) crypto.Hash {
	return crypto.H(
		new(big.Int).SetUint64(uint64(synthetic)),
		new(big.Int).SetUint64(uint64(collateral)),
		new(big.Int).SetBytes(addr.Bytes()),
	)
}

// Notional returns |size| * price.
func (p Position) Notional(price uint64) uint64 {
	return p.PositionSize * price
}

// Leverage returns notional/margin multiplied by levDec, which is the scale
// factor itself (e.g. 1_000_000), not an exponent. This is the general
// position-level view; the perp swap executor computes its leverage-cap
// check inline rather than through this method.
func (p Position) Leverage(price uint64, levDec uint64) uint64 {
	if p.Margin == 0 {
		return 0
	}
	return (p.Notional(price) * levDec) / p.Margin
}
