package entities

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
)

// SpotNoteInfo is present on a notes-backed limit order: the XOR
// counterpart of OrderTabIdx (spec §3 "exactly one of spot_note_info /
// order_tab is present").
type SpotNoteInfo struct {
	DestReceivedAddress  common.Address
	DestReceivedBlinding *big.Int
	NotesIn              []Note
	RefundNote           *Note // optional
}

// LimitOrder is a spot order, notes-backed or tab-backed (spec §3 "Limit
// Order").
type LimitOrder struct {
	OrderID             uint64
	ExpirationTimestamp  uint64
	TokenSpent           uint32
	TokenReceived        uint32
	AmountSpent          uint64
	AmountReceived       uint64
	FeeLimit             uint64

	SpotNoteInfo *SpotNoteInfo // XOR with OrderTabIdx
	OrderTabIdx  *uint64
}

func (o *LimitOrder) IsTabOrder() bool { return o.OrderTabIdx != nil }

// Hash is the order's signing hash, the same value WrapSpot(o).Hash() returns.
func (o *LimitOrder) Hash() crypto.Hash { return hashLimitOrder(o) }

// PositionEffectType classifies a perpetual order by what it does to the
// position it targets (spec §3 "Perpetual Order").
type PositionEffectType int8

const (
	Open PositionEffectType = iota
	Modify
	Close
	Liquidation
)

func (e PositionEffectType) String() string {
	switch e {
	case Open:
		return "open"
	case Modify:
		return "modify"
	case Close:
		return "close"
	case Liquidation:
		return "liquidation"
	default:
		return "unknown"
	}
}

// OpenOrderFields carries the data needed to create a brand-new position
// (spec §3 "OpenOrderFields").
type OpenOrderFields struct {
	InitialMargin             uint64
	CollateralToken           uint32
	NotesIn                   []Note
	RefundNote                *Note
	PositionAddress           common.Address
	AllowPartialLiquidations  bool
}

// CloseOrderFields carries the data needed to return collateral when a
// position closes (spec §3 "CloseOrderFields").
type CloseOrderFields struct {
	DestReceivedAddress  common.Address
	DestReceivedBlinding *big.Int
}

// PerpOrder is a perpetual futures order; which of OpenOrderFields /
// Position / CloseOrderFields are populated depends on PositionEffectType:
// Open carries OpenOrderFields, Modify and Liquidation carry Position, and
// Close carries both Position and CloseOrderFields (spec §3 "Perpetual
// Order").
type PerpOrder struct {
	OrderID              uint64
	ExpirationTimestamp   uint64
	PositionEffectType    PositionEffectType
	OrderSide             OrderSide
	SyntheticToken        uint32
	SyntheticAmount       uint64
	CollateralAmount      uint64
	FeeLimit              uint64

	OpenOrderFields  *OpenOrderFields  // Open
	Position         *Position         // Modify/Close/Liquidation
	CloseOrderFields *CloseOrderFields // Close
}

// Order is the capability set the matching engine is generic over, so a
// single book implementation serves both spot limit orders and perpetual
// orders (spec §9 "Polymorphism over {Spot limit, Perpetual} orders").
type Order interface {
	OrderAndPriceAssets() (spent, received uint32)
	Qty() uint64
	Price(decimals DecimalTable) uint64
	HasExpired(nowMs uint64) bool
	SetID(id uint64)
	ID() uint64
	Hash() crypto.Hash

	// SetAmendedAmount rewrites the order's non-fixed amount (spot's
	// amount_received, perp's collateral_amount) to amount, the result of
	// AmendOrder's deriveAmendedAmount (spec §4.2 "AmendOrder").
	SetAmendedAmount(amount uint64)
}

// DecimalTable supplies per-token decimal places, needed to turn a raw
// spent/received ratio into a fixed-point price (spec §4.2.2).
type DecimalTable map[uint32]uint8

type spotOrderAdapter struct{ *LimitOrder }

func (o spotOrderAdapter) OrderAndPriceAssets() (uint32, uint32) {
	return o.TokenSpent, o.TokenReceived
}
func (o spotOrderAdapter) Qty() uint64 { return o.AmountSpent }
func (o spotOrderAdapter) Price(dec DecimalTable) uint64 {
	return priceFromSpentReceived(o.AmountSpent, o.AmountReceived, dec[o.TokenSpent], dec[o.TokenReceived])
}
func (o spotOrderAdapter) HasExpired(nowMs uint64) bool { return nowMs >= o.ExpirationTimestamp }
func (o spotOrderAdapter) SetID(id uint64)              { o.OrderID = id }
func (o spotOrderAdapter) ID() uint64                   { return o.OrderID }
func (o spotOrderAdapter) Hash() crypto.Hash            { return hashLimitOrder(o.LimitOrder) }
func (o spotOrderAdapter) SetAmendedAmount(amount uint64) { o.AmountReceived = amount }

// WrapSpot adapts a LimitOrder to the generic Order interface.
func WrapSpot(o *LimitOrder) Order { return spotOrderAdapter{o} }

type perpOrderAdapter struct{ *PerpOrder }

func (o perpOrderAdapter) OrderAndPriceAssets() (uint32, uint32) {
	return o.SyntheticToken, 0 // collateral token resolved by the executor from order context
}
func (o perpOrderAdapter) Qty() uint64 { return o.SyntheticAmount }
func (o perpOrderAdapter) Price(dec DecimalTable) uint64 {
	return priceFromSpentReceived(o.CollateralAmount, o.SyntheticAmount, 0, dec[o.SyntheticToken])
}
func (o perpOrderAdapter) HasExpired(nowMs uint64) bool { return nowMs >= o.ExpirationTimestamp }
func (o perpOrderAdapter) SetID(id uint64)              { o.OrderID = id }
func (o perpOrderAdapter) ID() uint64                   { return o.OrderID }
func (o perpOrderAdapter) Hash() crypto.Hash            { return hashPerpOrder(o.PerpOrder) }
func (o perpOrderAdapter) SetAmendedAmount(amount uint64) { o.CollateralAmount = amount }

// WrapPerp adapts a PerpOrder to the generic Order interface.
func WrapPerp(o *PerpOrder) Order { return perpOrderAdapter{o} }

func priceFromSpentReceived(spent, received uint64, spentDec, receivedDec uint8) uint64 {
	if received == 0 {
		return 0
	}
	// price expressed in spent-per-received, scaled to a common decimal base
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(receivedDec)-int64(spentDec)+8), nil)
	num := new(big.Int).Mul(new(big.Int).SetUint64(spent), scale)
	return new(big.Int).Div(num, new(big.Int).SetUint64(received)).Uint64()
}

func hashLimitOrder(o *LimitOrder) crypto.Hash {
	elems := []*big.Int{
		new(big.Int).SetUint64(o.ExpirationTimestamp),
		new(big.Int).SetUint64(uint64(o.TokenSpent)),
		new(big.Int).SetUint64(uint64(o.TokenReceived)),
		new(big.Int).SetUint64(o.AmountSpent),
		new(big.Int).SetUint64(o.AmountReceived),
		new(big.Int).SetUint64(o.FeeLimit),
	}
	if o.SpotNoteInfo != nil {
		for _, n := range o.SpotNoteInfo.NotesIn {
			elems = append(elems, n.Hash().Big())
		}
	}
	if o.OrderTabIdx != nil {
		elems = append(elems, new(big.Int).SetUint64(*o.OrderTabIdx))
	}
	return crypto.H(elems...)
}

func hashPerpOrder(o *PerpOrder) crypto.Hash {
	side := uint64(0)
	if o.OrderSide == Short {
		side = 1
	}
	elems := []*big.Int{
		new(big.Int).SetUint64(o.ExpirationTimestamp),
		new(big.Int).SetUint64(uint64(o.PositionEffectType)),
		new(big.Int).SetUint64(side),
		new(big.Int).SetUint64(uint64(o.SyntheticToken)),
		new(big.Int).SetUint64(o.SyntheticAmount),
		new(big.Int).SetUint64(o.CollateralAmount),
		new(big.Int).SetUint64(o.FeeLimit),
	}
	switch {
	case o.OpenOrderFields != nil:
		for _, n := range o.OpenOrderFields.NotesIn {
			elems = append(elems, n.Hash().Big())
		}
	case o.Position != nil:
		elems = append(elems, o.Position.Hash().Big())
	}
	return crypto.H(elems...)
}
