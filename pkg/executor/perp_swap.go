package executor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/hyperlicked/invisible-core/pkg/crypto"
	"github.com/hyperlicked/invisible-core/pkg/entities"
	"github.com/hyperlicked/invisible-core/pkg/state"
	"github.com/hyperlicked/invisible-core/pkg/witness"
)

// PerpLegInput is one side of a two-order perpetual swap (spec §4.3.4).
// Exactly one of the four PositionEffectType branches applies to its
// order; ExistingPosition is required whenever the fill is not the first
// fill of a brand-new Open (the executor never reconstructs a Position
// from its tree hash alone — the caller always supplies the live value,
// same pattern as order-tab legs in spot swaps).
type PerpLegInput struct {
	Order            *entities.PerpOrder
	Signature        []byte
	FilledSynthetic  uint64
	FilledCollateral uint64
	FeeTaken         uint64
	LeverageCap      uint64
	ExistingPosition *entities.Position
}

// PerpSwapInput is both sides of a crossing pair of perpetual orders: A
// must be Long, B must be Short (spec §4.3.4, §6.1).
type PerpSwapInput struct {
	A, B PerpLegInput
	Dust uint64
}

// perpOrderSigner returns the address that must have signed the order's
// hash, chosen by PositionEffectType: a brand-new Open is authorized by
// the position address it declares, every other branch by the address on
// the position it targets (spec §4.3.4's signature binding).
func perpOrderSigner(order *entities.PerpOrder, existing *entities.Position) (common.Address, error) {
	if order.PositionEffectType == entities.Open && existing == nil {
		if order.OpenOrderFields == nil {
			return common.Address{}, validationErr("open order missing open_order_fields")
		}
		return order.OpenOrderFields.PositionAddress, nil
	}
	if existing == nil {
		return common.Address{}, validationErr("order missing existing_position")
	}
	return existing.PositionAddress, nil
}

func verifyPerpOrderSignature(order *entities.PerpOrder, sig []byte, existing *entities.Position) error {
	signer, err := perpOrderSigner(order, existing)
	if err != nil {
		return err
	}
	msg := entities.WrapPerp(order).Hash()
	if !crypto.VerifySignature(signer, msg[:], sig) {
		return validationErr("invalid order signature")
	}
	return nil
}

// PerpLegResult is what one side of the swap produced. PrevFundingIdx is
// the position's LastFundingIdx as observed before this fill touched it,
// used by PerpSwap to take the cross-leg min (spec §4.3.4
// "min(prev_funding_idx_a, prev_funding_idx_b)").
type PerpLegResult struct {
	Position       *entities.Position
	Complete       bool
	PrevFundingIdx uint64
}

type PerpSwapResult struct {
	A, B PerpLegResult
}

// PerpSwap executes two crossing perpetual orders against each other
// (spec §4.3.4, §6.1 "two PerpOrders A,B (A must be Long)"). Each side is
// resolved independently against its own position, but they share one
// consistency check, one funding-floor update, and one witness record
// since they are the two halves of a single trade.
func PerpSwap(m *state.Model, in PerpSwapInput) (*PerpSwapResult, *witness.Record, error) {
	if err := validatePerpSwap(in); err != nil {
		return nil, nil, err
	}

	resA, err := executePerpLeg(m, in.A, in.Dust)
	if err != nil {
		return nil, nil, err
	}
	resB, err := executePerpLeg(m, in.B, in.Dust)
	if err != nil {
		return nil, nil, err
	}

	synthToken := in.A.Order.SyntheticToken
	m.Funding.NoteMinFundingIdx(synthToken, resA.PrevFundingIdx)
	m.Funding.NoteMinFundingIdx(synthToken, resB.PrevFundingIdx)

	rec := witness.NewRecord("perp_swap")
	rec.SetUint("order_id_a", in.A.Order.OrderID)
	rec.SetUint("order_id_b", in.B.Order.OrderID)
	rec.Set("position_effect_a", in.A.Order.PositionEffectType.String())
	rec.Set("position_effect_b", in.B.Order.PositionEffectType.String())
	rec.SetUint("filled_synthetic_a", in.A.FilledSynthetic)
	rec.SetUint("filled_synthetic_b", in.B.FilledSynthetic)
	rec.SetUint("filled_collateral_a", in.A.FilledCollateral)
	rec.SetUint("filled_collateral_b", in.B.FilledCollateral)
	rec.SetUint("fee_a", in.A.FeeTaken)
	rec.SetUint("fee_b", in.B.FeeTaken)
	if resA.Position != nil {
		rec.SetUint("position_index_a", resA.Position.Index)
		rec.SetHash("position_hash_a", resA.Position.Hash())
	}
	if resB.Position != nil {
		rec.SetUint("position_index_b", resB.Position.Index)
		rec.SetHash("position_hash_b", resB.Position.Hash())
	}

	return &PerpSwapResult{A: *resA, B: *resB}, rec, nil
}

func validatePerpSwap(in PerpSwapInput) error {
	a, b := in.A.Order, in.B.Order
	if a.OrderSide != entities.Long || b.OrderSide != entities.Short {
		return consistencyErr("perp swap requires order_a long and order_b short")
	}
	if a.OrderID == b.OrderID {
		return consistencyErr("order ids must differ")
	}
	if a.SyntheticToken != b.SyntheticToken {
		return consistencyErr("order synthetic token mismatch")
	}
	if in.A.FilledSynthetic != in.B.FilledSynthetic {
		return consistencyErr("filled_synthetic must match across both legs")
	}
	if in.A.FeeTaken > a.FeeLimit || in.B.FeeTaken > b.FeeLimit {
		return validationErr("fee exceeds fee_limit")
	}
	if err := verifyPerpOrderSignature(a, in.A.Signature, in.A.ExistingPosition); err != nil {
		return err
	}
	if err := verifyPerpOrderSignature(b, in.B.Signature, in.B.ExistingPosition); err != nil {
		return err
	}
	return nil
}

func executePerpLeg(m *state.Model, leg PerpLegInput, dust uint64) (*PerpLegResult, error) {
	switch leg.Order.PositionEffectType {
	case entities.Open:
		return perpOpen(m, leg, dust)
	case entities.Modify:
		return perpModify(m, leg)
	case entities.Close:
		return perpClose(m, leg)
	case entities.Liquidation:
		return perpLiquidate(m, leg)
	default:
		return nil, validationErr("unknown position_effect_type")
	}
}

func perpOpen(m *state.Model, leg PerpLegInput, dust uint64) (*PerpLegResult, error) {
	order := leg.Order
	of := order.OpenOrderFields
	if of == nil {
		return nil, validationErr("open order missing open_order_fields")
	}

	prev, hadPrev := m.PerpPartialFills.Get(order.OrderID)
	if hadPrev && prev.Status != state.FillOpen {
		return nil, consistencyErr("order already terminally resolved")
	}
	if prev.SpentSynthetic+leg.FilledSynthetic > order.SyntheticAmount+dust {
		return nil, consistencyErr("fill exceeds remaining synthetic_amount")
	}

	marginThisFill := proportional(of.InitialMargin, leg.FilledSynthetic, order.SyntheticAmount)
	if marginThisFill == 0 {
		return nil, validationErr("zero margin segment for this fill")
	}
	leverage := leg.FilledCollateral / marginThisFill
	if leg.LeverageCap > 0 && leverage > leg.LeverageCap {
		return nil, validationErr("leverage exceeds cap")
	}

	prevFundingIdx := m.Funding.CurrentFundingIdx()
	if !hadPrev {
		if entities.SumAmounts(of.NotesIn) < of.InitialMargin {
			return nil, validationErr("notes_in sum below initial_margin")
		}
		if !entities.DistinctIndices(of.NotesIn) {
			return nil, validationErr("notes_in indices not pairwise distinct")
		}
		for _, n := range of.NotesIn {
			if n.Token != of.CollateralToken {
				return nil, validationErr("notes_in token mismatch")
			}
			if m.Notes.GetLeaf(n.Index) != n.Hash() {
				return nil, validationErr("notes_in entry not live in tree")
			}
		}
		if of.RefundNote != nil {
			refund := *of.RefundNote
			refund.Index = of.NotesIn[0].Index
			m.PutNote(refund)
		} else {
			m.ConsumeNote(of.NotesIn[0].Index)
		}
		for _, n := range of.NotesIn[1:] {
			m.ConsumeNote(n.Index)
		}
	} else {
		if leg.ExistingPosition == nil {
			return nil, consistencyErr("later open fill requires existing_position")
		}
		if m.Positions.GetLeaf(leg.ExistingPosition.Index) != leg.ExistingPosition.Hash() {
			return nil, validationErr("existing_position not live in tree")
		}
		prevFundingIdx = leg.ExistingPosition.LastFundingIdx
	}

	entryPrice := priceFromAmounts(leg.FilledCollateral, leg.FilledSynthetic)

	var pos entities.Position
	if hadPrev {
		pos = *leg.ExistingPosition
		pos.EntryPrice = weightedAverage(pos.EntryPrice, pos.PositionSize, entryPrice, leg.FilledSynthetic)
		pos.PositionSize += leg.FilledSynthetic
		pos.Margin += marginThisFill
	} else {
		pos = entities.Position{
			SyntheticToken:  order.SyntheticToken,
			CollateralToken: of.CollateralToken,
			PositionSize:    leg.FilledSynthetic,
			Side:            order.OrderSide,
			Margin:          marginThisFill,
			EntryPrice:      entryPrice,
			LastFundingIdx:  m.Funding.CurrentFundingIdx(),
			PositionAddress: of.PositionAddress,
		}
		pos.Index = m.Positions.Allocate(pos.Hash())
	}
	pos.LiquidationPrice = liquidationPrice(pos.Side, pos.EntryPrice, pos.Margin, pos.PositionSize)

	m.PutPosition(pos)

	newSpentSynthetic := prev.SpentSynthetic + leg.FilledSynthetic
	result := &PerpLegResult{Position: &pos, PrevFundingIdx: prevFundingIdx}
	if newSpentSynthetic+dust >= order.SyntheticAmount {
		result.Complete = true
		m.PerpPartialFills.Publish(order.OrderID, state.PerpPartialFillEntry{Status: state.FillComplete, SpentSynthetic: newSpentSynthetic, PositionIndex: pos.Index})
	} else {
		m.PerpPartialFills.Publish(order.OrderID, state.PerpPartialFillEntry{Status: state.FillOpen, SpentSynthetic: newSpentSynthetic, SpentMargin: prev.SpentMargin + marginThisFill, PositionIndex: pos.Index})
	}
	return result, nil
}

func perpModify(m *state.Model, leg PerpLegInput) (*PerpLegResult, error) {
	order := leg.Order
	pos := leg.ExistingPosition
	if pos == nil {
		return nil, validationErr("modify order missing existing_position")
	}
	if m.Positions.GetLeaf(pos.Index) != pos.Hash() {
		return nil, validationErr("existing_position not live in tree")
	}
	if order.OrderSide != pos.Side {
		return nil, consistencyErr("modify order side must match the position's side")
	}

	updated := *pos
	prevFundingIdx := updated.LastFundingIdx
	applyFunding(&updated, m.Funding)

	addedPrice := priceFromAmounts(leg.FilledCollateral, leg.FilledSynthetic)
	updated.EntryPrice = weightedAverage(updated.EntryPrice, updated.PositionSize, addedPrice, leg.FilledSynthetic)
	updated.PositionSize += leg.FilledSynthetic

	leverage := uint64(0)
	if updated.Margin > 0 {
		notional := updated.PositionSize * updated.EntryPrice / priceUnit
		leverage = notional / updated.Margin
	}
	if leg.LeverageCap > 0 && leverage > leg.LeverageCap {
		return nil, validationErr("leverage exceeds cap after modify")
	}
	updated.LiquidationPrice = liquidationPrice(updated.Side, updated.EntryPrice, updated.Margin, updated.PositionSize)

	m.PutPosition(updated)
	return &PerpLegResult{Position: &updated, Complete: true, PrevFundingIdx: prevFundingIdx}, nil
}

func perpClose(m *state.Model, leg PerpLegInput) (*PerpLegResult, error) {
	order := leg.Order
	pos := leg.ExistingPosition
	cf := order.CloseOrderFields
	if pos == nil || cf == nil {
		return nil, validationErr("close order missing existing_position or close_order_fields")
	}
	if m.Positions.GetLeaf(pos.Index) != pos.Hash() {
		return nil, validationErr("existing_position not live in tree")
	}
	if leg.FilledSynthetic > pos.PositionSize {
		return nil, consistencyErr("close fill exceeds position size")
	}

	updated := *pos
	prevFundingIdx := updated.LastFundingIdx
	applyFunding(&updated, m.Funding)

	closedFraction := proportional(updated.Margin, leg.FilledSynthetic, updated.PositionSize)
	updated.PositionSize -= leg.FilledSynthetic
	updated.Margin -= closedFraction

	payout := leg.FilledCollateral - leg.FeeTaken
	refund := entities.Note{Token: updated.CollateralToken, Amount: payout + closedFraction, Address: cf.DestReceivedAddress, Blinding: cf.DestReceivedBlinding}
	refund.Index = m.Notes.Allocate(refund.Hash())
	m.MarkUpdated("notes", refund.Index, refund.Hash())

	result := &PerpLegResult{Complete: true, PrevFundingIdx: prevFundingIdx}
	if updated.PositionSize == 0 {
		m.PutPosition(entities.Position{Index: updated.Index})
	} else {
		updated.LiquidationPrice = liquidationPrice(updated.Side, updated.EntryPrice, updated.Margin, updated.PositionSize)
		m.PutPosition(updated)
		result.Position = &updated
	}
	return result, nil
}

func perpLiquidate(m *state.Model, leg PerpLegInput) (*PerpLegResult, error) {
	pos := leg.ExistingPosition
	if pos == nil {
		return nil, validationErr("liquidation order missing existing_position")
	}
	if m.Positions.GetLeaf(pos.Index) != pos.Hash() {
		return nil, validationErr("existing_position not live in tree")
	}

	updated := *pos
	prevFundingIdx := updated.LastFundingIdx
	applyFunding(&updated, m.Funding)

	breached := (updated.Side == entities.Long && leg.FilledCollateral <= updated.LiquidationPrice*updated.PositionSize/priceUnit) ||
		(updated.Side == entities.Short && leg.FilledCollateral >= updated.LiquidationPrice*updated.PositionSize/priceUnit)
	if !breached {
		return nil, validationErr("position has not breached its liquidation price")
	}

	m.PutPosition(entities.Position{Index: updated.Index})
	return &PerpLegResult{Complete: true, PrevFundingIdx: prevFundingIdx}, nil
}

// applyFunding advances margin by Σ rate[i]*size/prices[i] over every
// funding idx since the position was last touched, sign by side (spec
// §4.3.7 "apply_funding").
func applyFunding(pos *entities.Position, funding *state.FundingState) {
	rates, prices := funding.RatesSince(pos.SyntheticToken, pos.LastFundingIdx)
	if len(rates) == 0 {
		pos.LastFundingIdx = funding.CurrentFundingIdx()
		return
	}
	var owed int64
	for i, r := range rates {
		if prices[i] == 0 {
			continue
		}
		owed += r * int64(pos.PositionSize) / int64(prices[i])
	}
	if pos.Side == entities.Long {
		owed = -owed
	}
	if owed < 0 && uint64(-owed) > pos.Margin {
		pos.Margin = 0
	} else {
		pos.Margin = uint64(int64(pos.Margin) + owed)
	}
	pos.LastFundingIdx = funding.CurrentFundingIdx()
}

func proportional(total, part, whole uint64) uint64 {
	if whole == 0 {
		return 0
	}
	return total * part / whole
}

// priceUnit is the fixed-point base every synthetic price is expressed in
// (spec §4.2.2 "prices are scaled to 8 implied decimal places").
const priceUnit = 100_000_000

func priceFromAmounts(collateral, synthetic uint64) uint64 {
	if synthetic == 0 {
		return 0
	}
	return collateral * priceUnit / synthetic
}

func weightedAverage(priceA uint64, sizeA uint64, priceB uint64, sizeB uint64) uint64 {
	total := sizeA + sizeB
	if total == 0 {
		return 0
	}
	return (priceA*sizeA + priceB*sizeB) / total
}

// liquidationPrice is the price at which margin is fully eroded, computed
// off the maintenance-free simplification margin/size == price delta
// tolerated before bankruptcy.
func liquidationPrice(side entities.OrderSide, entryPrice, margin, size uint64) uint64 {
	if size == 0 {
		return 0
	}
	cushion := margin * priceUnit / size
	if side == entities.Long {
		if cushion >= entryPrice {
			return 0
		}
		return entryPrice - cushion
	}
	return entryPrice + cushion
}
